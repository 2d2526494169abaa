package models

import "time"

// TriggerKind identifies what started a capture.
type TriggerKind string

const (
	TriggerHotkey TriggerKind = "hotkey"
	TriggerChat   TriggerKind = "chat"
)

// Trigger is a user-initiated request for a snapshot.
type Trigger struct {
	Kind    TriggerKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// Payload is the bounded snapshot submitted to the cache and decision engine.
type Payload struct {
	Query             string       `json:"query,omitempty"`
	Events            []InputEvent `json:"events"`
	WindowTitle       string       `json:"window_title"`
	UITreeSummary     string       `json:"ui_tree_summary"`
	Processes         []string     `json:"process_list"`
	ScreenshotCaption string       `json:"screenshot_caption"`
	Platform          string       `json:"platform,omitempty"`
	Hostname          string       `json:"hostname,omitempty"`
	Trigger           TriggerKind  `json:"trigger"`
	Timestamp         time.Time    `json:"timestamp"`
}

// Truncation reports which payload fields were shrunk to satisfy the size cap.
type Truncation struct {
	EventsDropped    int  `json:"events_dropped"`
	ProcessesDropped int  `json:"processes_dropped"`
	UITreeClipped    bool `json:"ui_tree_clipped"`
	CaptionClipped   bool `json:"caption_clipped"`
	TitleClipped     bool `json:"title_clipped"`
	QueryClipped     bool `json:"query_clipped"`
}

// Any reports whether any field was truncated.
func (t Truncation) Any() bool {
	return t.EventsDropped > 0 || t.ProcessesDropped > 0 || t.UITreeClipped ||
		t.CaptionClipped || t.TitleClipped || t.QueryClipped
}
