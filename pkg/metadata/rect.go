package metadata

// Rect is a screen rectangle in pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns the rectangle's area.
func (r Rect) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlap of r and o, if any.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.W, o.X+o.W)
	y2 := min(r.Y+r.H, o.Y+o.H)
	if x1 < x2 && y1 < y2 {
		return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, true
	}
	return Rect{}, false
}

// Subtract returns the parts of r not covered by any rectangle in covered,
// as a set of non-overlapping rectangles.
func Subtract(r Rect, covered []Rect) []Rect {
	remaining := []Rect{r}
	for _, c := range covered {
		var next []Rect
		for _, piece := range remaining {
			in, ok := piece.Intersect(c)
			if !ok {
				next = append(next, piece)
				continue
			}
			x0, y0 := piece.X, piece.Y
			x1, y1 := piece.X+piece.W, piece.Y+piece.H
			ix0, iy0 := in.X, in.Y
			ix1, iy1 := in.X+in.W, in.Y+in.H

			// Full-width strips above and below, then the sides of the
			// intersection's band.
			if iy0 > y0 {
				next = append(next, Rect{X: x0, Y: y0, W: piece.W, H: iy0 - y0})
			}
			if iy1 < y1 {
				next = append(next, Rect{X: x0, Y: iy1, W: piece.W, H: y1 - iy1})
			}
			if ix0 > x0 {
				next = append(next, Rect{X: x0, Y: iy0, W: ix0 - x0, H: in.H})
			}
			if ix1 < x1 {
				next = append(next, Rect{X: ix1, Y: iy0, W: x1 - ix1, H: in.H})
			}
		}
		remaining = remaining[:0]
		for _, piece := range next {
			if piece.Area() > 0 {
				remaining = append(remaining, piece)
			}
		}
	}
	return remaining
}

// TotalArea sums the areas of rs, which must not overlap.
func TotalArea(rs []Rect) int {
	total := 0
	for _, r := range rs {
		total += r.Area()
	}
	return total
}
