package session

import (
	"time"

	"github.com/viant/overlay/internal/clock"
	"github.com/viant/overlay/internal/idgen"
)

// PatchStatus describes the generation state of a session's source patch.
type PatchStatus string

const (
	// StatusPreparing indicates patch generation is still in flight.
	StatusPreparing PatchStatus = "preparing"
	// StatusReady indicates the patch payload is available.
	StatusReady PatchStatus = "ready"
	// StatusError indicates generation failed or timed out; the only
	// remaining action is an explicit reject.
	StatusError PatchStatus = "error"
)

// Producer tags identifying which backend produced a patch.
const (
	GeneratedByFastPath  = "fast-path"
	GeneratedByAI        = "ai"
	GeneratedByFastApply = "fast-apply"
)

// DiffStats summarises a generated unified diff.
type DiffStats struct {
	Hunks      int `json:"hunks"`
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

// Patch is the durable source edit corresponding to a previewed visual
// change. It is attached to a session once generation succeeds.
type Patch struct {
	FilePath        string        `json:"filePath"`
	OriginalContent string        `json:"originalContent"`
	PatchedContent  string        `json:"patchedContent"`
	GeneratedBy     string        `json:"generatedBy"`
	Duration        time.Duration `json:"duration"`
	Diff            string        `json:"diff,omitempty"`
	Stats           DiffStats     `json:"stats,omitempty"`
}

// Session represents one proposed, previewed, not-yet-durable edit. It is
// created the instant the optimistic preview is applied and removed from the
// store on a terminal outcome (applied, rejected or cancelled).
type Session struct {
	ID           string            `json:"id"`
	ContextID    string            `json:"contextId"`
	Target       *TargetDescriptor `json:"target"`
	Delta        *VisualDelta      `json:"delta"`
	Scripts      *MutationScripts  `json:"-"`
	PatchStatus  PatchStatus       `json:"patchStatus"`
	Patch        *Patch            `json:"patch,omitempty"`
	PatchError   string            `json:"patchError,omitempty"`
	UserApproved bool              `json:"userApproved"`
	CreatedAt    time.Time         `json:"createdAt"`

	committing bool
}

// New creates a session in the preparing state with a freshly generated id.
func New(contextID string, target *TargetDescriptor, delta *VisualDelta, scripts *MutationScripts) *Session {
	return &Session{
		ID:          idgen.New(),
		ContextID:   contextID,
		Target:      target,
		Delta:       delta,
		Scripts:     scripts,
		PatchStatus: StatusPreparing,
		CreatedAt:   clock.Now(),
	}
}

// Ready transitions the session to the ready state with the supplied patch.
func (s *Session) Ready(patch *Patch) {
	s.Patch = patch
	s.PatchStatus = StatusReady
	s.PatchError = ""
}

// Fail transitions the session to the error state. The patch payload is
// cleared so that Patch != nil holds only in the ready state.
func (s *Session) Fail(reason string) {
	s.Patch = nil
	s.PatchStatus = StatusError
	s.PatchError = reason
}

// Resolved reports whether the session reached a generation outcome.
func (s *Session) Resolved() bool {
	return s.PatchStatus != StatusPreparing
}

// BeginCommit marks the session as committing and reports whether this call
// won the transition. The caller must hold the store lock; the flag makes the
// write-through fire at most once even when accept races the ready
// transition.
func (s *Session) BeginCommit() bool {
	if s.committing {
		return false
	}
	s.committing = true
	return true
}

// TargetRef returns the structural path identifying the edited element.
func (s *Session) TargetRef() string {
	if s.Target == nil {
		return ""
	}
	return s.Target.Path
}
