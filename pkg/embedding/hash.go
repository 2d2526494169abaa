package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEngine embeds text by hashing lower-cased word unigrams and bigrams
// into a fixed number of signed buckets. It needs no model and is
// deterministic, which makes it the default for offline use.
type HashEngine struct {
	dims int
}

// NewHashEngine returns a HashEngine with the given dimensionality.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

// Embed returns a unit-length vector for text.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		e.add(v, w, 1)
		if i > 0 {
			e.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	return Normalize(v), nil
}

func (e *HashEngine) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

func (e *HashEngine) Dimensions() int { return e.dims }
func (e *HashEngine) Name() string    { return "hash" }
