// Package history keeps the append-only log of applied edits. Each entry
// references the session's undo script so a later bulk-undo can reverse the
// visual change that the durable edit originated from.
package history

import (
	"context"
	"time"

	"github.com/viant/overlay/model/session"
)

// Entry records one durable edit.
type Entry struct {
	ID          string         `json:"id"`
	ContextID   string         `json:"contextId"`
	FilePath    string         `json:"filePath"`
	Diff        string         `json:"diff,omitempty"`
	GeneratedBy string         `json:"generatedBy"`
	UndoScript  session.Script `json:"undoScript"`
	AppliedAt   time.Time      `json:"appliedAt"`
}

// Service is the append-only edit history.
type Service interface {
	Append(ctx context.Context, entry *Entry) error

	List(ctx context.Context) ([]*Entry, error)
}
