package approval

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/viant/overlay/internal/clock"
	"github.com/viant/overlay/model/session"
	"github.com/viant/overlay/service/dao"
	"github.com/viant/overlay/service/dao/criteria"
	"github.com/viant/overlay/service/dao/store"
	"github.com/viant/overlay/service/generator"
	"github.com/viant/overlay/service/guard"
	"github.com/viant/overlay/service/history"
	"github.com/viant/overlay/policy"
	"github.com/viant/overlay/service/surface"
	"github.com/viant/overlay/service/telemetry"
	"github.com/viant/overlay/service/writer"
)

func sessionKey(s *session.Session) string { return s.ID }

// Service is the approval session store. All state-machine transitions are
// serialised behind its mutex; asynchronous resumptions (generation results,
// timeouts) validate against the cancellation guard before mutating state,
// so late-arriving results for resolved sessions become no-ops.
type Service struct {
	mu        sync.Mutex
	sessions  dao.Service[string, session.Session]
	byContext map[string]string

	generator *generator.Service
	guard     *guard.Guard
	surface   surface.Executor
	writer    *writer.Service
	history   history.Service
	recorder  *telemetry.Recorder
}

// New creates the session store. Surface, generator, guard, writer and
// recorder are required; history is optional.
func New(options ...Option) (*Service, error) {
	s := &Service{
		sessions:  store.NewMemoryStore[string, session.Session](sessionKey),
		byContext: make(map[string]string),
	}
	for _, option := range options {
		option(s)
	}
	if s.surface == nil {
		return nil, fmt.Errorf("surface executor is required")
	}
	if s.generator == nil {
		return nil, fmt.Errorf("patch generator is required")
	}
	if s.guard == nil {
		return nil, fmt.Errorf("cancellation guard is required")
	}
	if s.writer == nil {
		return nil, fmt.Errorf("source writer is required")
	}
	if s.recorder == nil {
		return nil, fmt.Errorf("telemetry recorder is required")
	}
	return s, nil
}

// Start applies the optimistic preview, creates a session in the preparing
// state and launches patch generation. Any unresolved, non-approved session
// in the same context is superseded first: its undo script runs before the
// new session's apply script touches the surface. The session is returned
// synchronously so the caller can render pending UI immediately.
func (s *Service) Start(ctx context.Context, contextID string, target *session.TargetDescriptor, delta *session.VisualDelta, scripts *session.MutationScripts, instruction string) (*session.Session, error) {
	if contextID == "" {
		return nil, fmt.Errorf("approval: empty context id")
	}
	if scripts == nil {
		return nil, fmt.Errorf("approval: missing mutation scripts")
	}
	pol := policy.FromContext(ctx)
	if pol != nil {
		ref := ""
		if target != nil {
			ref = target.Path
		}
		if pol.Mode == policy.ModeDeny {
			return nil, fmt.Errorf("approval: sessions are blocked by policy")
		}
		if !pol.IsAllowed(ref) {
			return nil, fmt.Errorf("approval: target %v is blocked by policy", ref)
		}
	}

	s.mu.Lock()
	previous := s.currentLocked(ctx, contextID)
	if previous != nil && !previous.UserApproved {
		s.removeLocked(ctx, previous)
	} else {
		// approved sessions are never superseded - they run to completion
		previous = nil
	}
	s.mu.Unlock()

	if previous != nil {
		if err := s.guard.Cancel(ctx, previous, guard.ReasonSuperseded); err != nil {
			log.Printf("approval: revert of superseded session %v failed: %v", previous.ID, err)
		}
	}

	sess := session.New(contextID, target, delta, scripts)
	if pol != nil && pol.Mode == policy.ModeAuto {
		// auto mode pre-approves: the write-through fires on ready without
		// an explicit accept
		sess.UserApproved = true
	}
	if _, err := s.surface.Execute(ctx, scripts.Apply); err != nil {
		return nil, fmt.Errorf("approval: preview failed: %w", err)
	}
	s.recorder.Begin(ctx, sess.ID, contextID, sess.TargetRef())
	s.recorder.RecordEvent(ctx, sess.ID, telemetry.EventPreviewApplied)
	s.recorder.RecordEvent(ctx, sess.ID, telemetry.EventGenerationStarted)

	s.mu.Lock()
	_ = s.sessions.Save(ctx, sess)
	s.byContext[contextID] = sess.ID
	s.mu.Unlock()

	go s.generate(ctx, sess, instruction)
	return sess, nil
}

func (s *Service) generate(ctx context.Context, sess *session.Session, instruction string) {
	patch, err := s.generator.Generate(ctx, sess, instruction)
	s.onGenerated(ctx, sess.ID, patch, err)
}

// onGenerated resumes the session once generation resolves. A nil patch with
// nil error means the attempt timed out.
func (s *Service) onGenerated(ctx context.Context, id string, patch *session.Patch, err error) {
	s.mu.Lock()
	sess := s.lookupLocked(ctx, id)
	if sess == nil || s.guard.Cancelled(id) {
		// stale result for a resolved or superseded session
		s.mu.Unlock()
		return
	}
	if err != nil {
		sess.Fail(err.Error())
		_ = s.sessions.Save(ctx, sess)
		s.mu.Unlock()
		s.recorder.RecordEvent(ctx, id, telemetry.EventPatchFailed)
		return
	}
	if patch == nil {
		sess.Fail("patch generation timed out")
		_ = s.sessions.Save(ctx, sess)
		s.mu.Unlock()
		s.recorder.RecordEvent(ctx, id, telemetry.EventPatchFailed)
		return
	}
	sess.Ready(patch)
	_ = s.sessions.Save(ctx, sess)
	approved := sess.UserApproved
	s.mu.Unlock()

	s.recorder.RecordEvent(ctx, id, telemetry.EventPatchReady)
	if approved {
		if err := s.commit(ctx, sess); err != nil {
			log.Printf("approval: deferred write-through for %v failed: %v", id, err)
		}
		return
	}
	if pol := policy.FromContext(ctx); pol != nil && pol.Mode == policy.ModeAsk && pol.Decide != nil {
		// a headless embedder resolves the session programmatically
		if pol.Decide(ctx, sess.TargetRef(), patch.Diff, pol) {
			if err := s.Accept(ctx, id); err != nil {
				log.Printf("approval: policy accept for %v failed: %v", id, err)
			}
		} else if err := s.Reject(ctx, id); err != nil {
			log.Printf("approval: policy reject for %v failed: %v", id, err)
		}
	}
}

// Accept commits the user to the change. While the patch is still preparing
// it only flags the session; the write-through then fires exactly once as
// soon as the patch becomes ready, and never when generation fails. On a
// ready session the write-through runs immediately. On an errored session
// the stored failure is surfaced and nothing else happens.
func (s *Service) Accept(ctx context.Context, id string) error {
	s.mu.Lock()
	sess := s.lookupLocked(ctx, id)
	if sess == nil {
		s.mu.Unlock()
		return dao.ErrNotFound
	}
	switch sess.PatchStatus {
	case session.StatusError:
		reason := sess.PatchError
		s.mu.Unlock()
		return fmt.Errorf("approval: %v", reason)
	case session.StatusPreparing:
		sess.UserApproved = true
		_ = s.sessions.Save(ctx, sess)
		s.mu.Unlock()
		s.recorder.RecordEvent(ctx, id, telemetry.EventUserAccept)
		return nil
	default:
		sess.UserApproved = true
		_ = s.sessions.Save(ctx, sess)
		s.mu.Unlock()
		s.recorder.RecordEvent(ctx, id, telemetry.EventUserAccept)
		return s.commit(ctx, sess)
	}
}

// Reject reverts the preview and removes the session. Valid from preparing,
// ready and error states; rejecting an unknown id is a no-op.
func (s *Service) Reject(ctx context.Context, id string) error {
	s.mu.Lock()
	sess := s.lookupLocked(ctx, id)
	if sess == nil {
		s.mu.Unlock()
		return nil
	}
	s.removeLocked(ctx, sess)
	s.mu.Unlock()
	return s.guard.Cancel(ctx, sess, guard.ReasonExplicitReject)
}

// CancelCurrent cancels the unresolved, non-approved session of a context.
// Approved sessions are left alone - they must run to completion regardless
// of context churn.
func (s *Service) CancelCurrent(ctx context.Context, contextID string, reason guard.Reason) error {
	s.mu.Lock()
	sess := s.currentLocked(ctx, contextID)
	if sess == nil || sess.UserApproved {
		s.mu.Unlock()
		return nil
	}
	s.removeLocked(ctx, sess)
	s.mu.Unlock()
	return s.guard.Cancel(ctx, sess, reason)
}

// Current returns the live session of a context, or nil.
func (s *Service) Current(ctx context.Context, contextID string) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(ctx, contextID)
}

// Sessions returns live sessions, optionally filtered by a PatchStatus
// parameter, e.g. dao.NewParameter("PatchStatus", "ready").
func (s *Service) Sessions(ctx context.Context, parameters ...*dao.Parameter) ([]*session.Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(parameters) == 0 {
		return sessions, nil
	}
	filtered := make([]*session.Session, 0, len(sessions))
	for _, sess := range sessions {
		if criteria.FilterByStatus(string(sess.PatchStatus), parameters) {
			filtered = append(filtered, sess)
		}
	}
	return filtered, nil
}

// commit performs the write-through for an approved, ready session. The
// committing flag plus the cancellation check make it fire at most once per
// session even when an explicit accept races the ready transition.
func (s *Service) commit(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	if s.guard.Cancelled(sess.ID) || sess.Patch == nil || !sess.BeginCommit() {
		s.mu.Unlock()
		return nil
	}
	patch := sess.Patch
	s.mu.Unlock()

	s.recorder.RecordEvent(ctx, sess.ID, telemetry.EventWriteStarted)
	if err := s.writer.Write(ctx, patch.FilePath, patch.PatchedContent); err != nil {
		s.recorder.RecordEvent(ctx, sess.ID, telemetry.EventWriteFailed)
		s.recorder.Finish(ctx, sess.ID, telemetry.OutcomeWriteFailed)
		s.remove(ctx, sess)
		// the preview stays on the surface: the user already committed to
		// the change, only the durable write needs another attempt
		return fmt.Errorf("approval: failed to write %v: %w", patch.FilePath, err)
	}
	s.recorder.RecordEvent(ctx, sess.ID, telemetry.EventWriteSucceeded)

	if s.history != nil {
		entry := &history.Entry{
			ID:          sess.ID,
			ContextID:   sess.ContextID,
			FilePath:    patch.FilePath,
			Diff:        patch.Diff,
			GeneratedBy: patch.GeneratedBy,
			UndoScript:  sess.Scripts.Undo,
			AppliedAt:   clock.Now(),
		}
		if err := s.history.Append(ctx, entry); err != nil {
			log.Printf("approval: failed to append history for %v: %v", sess.ID, err)
		}
	}
	s.recorder.Finish(ctx, sess.ID, telemetry.OutcomeApplied)
	s.remove(ctx, sess)
	return nil
}

func (s *Service) lookupLocked(ctx context.Context, id string) *session.Session {
	sess, _ := s.sessions.Load(ctx, id)
	return sess
}

func (s *Service) currentLocked(ctx context.Context, contextID string) *session.Session {
	id, ok := s.byContext[contextID]
	if !ok {
		return nil
	}
	return s.lookupLocked(ctx, id)
}

func (s *Service) removeLocked(ctx context.Context, sess *session.Session) {
	_ = s.sessions.Delete(ctx, sess.ID)
	if s.byContext[sess.ContextID] == sess.ID {
		delete(s.byContext, sess.ContextID)
	}
}

func (s *Service) remove(ctx context.Context, sess *session.Session) {
	s.mu.Lock()
	s.removeLocked(ctx, sess)
	s.mu.Unlock()
}
