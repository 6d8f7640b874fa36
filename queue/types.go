package queue

import (
	"fmt"
	"time"

	"github.com/zero-day-ai/contextgraph/export"
	"github.com/zero-day-ai/contextgraph/persist"
)

// Default key names.
const (
	DefaultDocumentQueue = "contextgraph:documents"
	DefaultNoteQueue     = "contextgraph:notes"
	DefaultEventChannel  = "contextgraph:events"
)

// DocumentMessage carries a graph snapshot between processes.
type DocumentMessage struct {
	// Name identifies the snapshot, typically a run or dataset name.
	Name string `json:"name"`

	Document *persist.Document `json:"document"`

	// TraceID links the message to the producing trace, if any.
	TraceID string `json:"trace_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when the message was pushed.
	SubmittedAt int64 `json:"submitted_at"`
}

// NoteMessage carries one memory note.
type NoteMessage struct {
	Source      string      `json:"source"`
	Note        export.Note `json:"note"`
	SubmittedAt int64       `json:"submitted_at"`
}

// EventKind names a graph change.
type EventKind string

const (
	EventBuilt  EventKind = "built"
	EventLoaded EventKind = "loaded"
	EventPushed EventKind = "pushed"
)

// Event announces a change to a graph.
type Event struct {
	Kind  EventKind `json:"kind"`
	Name  string    `json:"name"`
	Nodes int       `json:"nodes"`
	Edges int       `json:"edges"`
	At    int64     `json:"at"`
}

// IsValid checks that the message can be loaded on the other side.
func (m *DocumentMessage) IsValid() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Document == nil {
		return fmt.Errorf("document is required")
	}
	if m.Document.Version != persist.Version {
		return fmt.Errorf("unsupported document version %d", m.Document.Version)
	}
	if m.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", m.SubmittedAt)
	}
	return nil
}

// Age returns the time since the message was submitted.
func (m *DocumentMessage) Age() time.Duration {
	if m.SubmittedAt <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixMilli()-m.SubmittedAt) * time.Millisecond
}

// IsValid checks that the note has an id.
func (m *NoteMessage) IsValid() error {
	if m.Note.ID == "" {
		return fmt.Errorf("note id is required")
	}
	if m.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", m.SubmittedAt)
	}
	return nil
}
