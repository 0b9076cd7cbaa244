// Package guard is the single choke point for cancellation. It keeps the set
// of approval ids that must not be finalised again and the per-id timeout
// tokens that invalidate stale asynchronous callbacks.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/overlay/internal/idgen"
	"github.com/viant/overlay/model/session"
	"github.com/viant/overlay/service/surface"
	"github.com/viant/overlay/service/telemetry"
)

// Reason identifies which trigger cancelled a session. It feeds telemetry
// only; cancellation behaviour is identical for all reasons.
type Reason string

const (
	ReasonSuperseded     Reason = "superseded"
	ReasonContextChange  Reason = "context_change"
	ReasonExplicitReject Reason = "explicit_reject"
)

// Guard tracks cancelled approval ids and generation timeout tokens.
type Guard struct {
	mu        sync.Mutex
	cancelled map[string]Reason
	tokens    map[string]string

	surface  surface.Executor
	recorder *telemetry.Recorder
}

// New creates a Guard reverting previews through the given surface executor
// and finalising telemetry through the given recorder.
func New(executor surface.Executor, recorder *telemetry.Recorder) *Guard {
	return &Guard{
		cancelled: make(map[string]Reason),
		tokens:    make(map[string]string),
		surface:   executor,
		recorder:  recorder,
	}
}

// IssueToken mints a fresh timeout token for the approval id, invalidating
// any previously issued one. Every generation attempt gets its own token.
func (g *Guard) IssueToken(id string) string {
	token := idgen.New()
	g.mu.Lock()
	g.tokens[id] = token
	g.mu.Unlock()
	return token
}

// TokenValid reports whether the supplied token is still the current one for
// the approval id. A timeout callback whose token no longer matches must not
// mutate any state.
func (g *Guard) TokenValid(id, token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	current, ok := g.tokens[id]
	return ok && current == token
}

// InvalidateToken drops the current token so any pending timeout callback
// for the id becomes a no-op.
func (g *Guard) InvalidateToken(id string) {
	g.mu.Lock()
	delete(g.tokens, id)
	g.mu.Unlock()
}

// Cancelled reports whether the approval id has been cancelled or superseded.
func (g *Guard) Cancelled(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.cancelled[id]
	return ok
}

// Cancel reverts the session's preview and finalises its telemetry. All
// three cancellation triggers (explicit reject, supersession, context change)
// funnel through here; the call is idempotent and the undo script runs at
// most once per approval id.
func (g *Guard) Cancel(ctx context.Context, sess *session.Session, reason Reason) error {
	if sess == nil {
		return nil
	}
	g.mu.Lock()
	if _, ok := g.cancelled[sess.ID]; ok {
		g.mu.Unlock()
		return nil
	}
	g.cancelled[sess.ID] = reason
	delete(g.tokens, sess.ID)
	g.mu.Unlock()

	var execErr error
	if sess.Scripts != nil {
		if _, err := g.surface.Execute(ctx, sess.Scripts.Undo); err != nil {
			execErr = fmt.Errorf("failed to revert preview for %v: %w", sess.ID, err)
		}
	}

	event := telemetry.EventAutoCancel
	outcome := telemetry.OutcomeCancelled
	if reason == ReasonExplicitReject {
		event = telemetry.EventUserReject
		outcome = telemetry.OutcomeRejected
	}
	g.recorder.RecordEvent(ctx, sess.ID, event)
	g.recorder.Finish(ctx, sess.ID, outcome)
	return execErr
}
