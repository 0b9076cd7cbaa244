// Package generator produces the durable source patch for a previewed visual
// change. A deterministic fast path handles unambiguous text substitutions;
// everything else goes to a pluggable generative backend raced against a
// fixed timeout.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/overlay/internal/clock"
	"github.com/viant/overlay/model/session"
	"github.com/viant/overlay/service/guard"
)

// DefaultTimeout bounds a single generation attempt. The budget is per
// attempt, not cumulative - there are no automatic retries.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNoBackend indicates no generative backend was configured and the
	// fast path did not produce a patch.
	ErrNoBackend = errors.New("generator: no backend configured")

	// ErrNoUniqueMatch indicates the fast path located the source but the
	// old text did not occur exactly once.
	ErrNoUniqueMatch = errors.New("generator: no unique match")
)

// Request carries everything a backend needs to produce a patch.
type Request struct {
	Target      *session.TargetDescriptor `json:"target"`
	Delta       *session.VisualDelta      `json:"delta"`
	Instruction string                    `json:"instruction,omitempty"`
}

// Backend produces a source patch for a visual change. Implementations are
// external (AI model invocations, heuristic rewriters).
type Backend interface {
	GeneratePatch(ctx context.Context, request *Request) (*session.Patch, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, request *Request) (*session.Patch, error)

func (f BackendFunc) GeneratePatch(ctx context.Context, request *Request) (*session.Patch, error) {
	return f(ctx, request)
}

// Service is the patch generator facade.
type Service struct {
	backend   Backend
	fastApply Backend
	locator   Locator
	timeout   time.Duration
	guard     *guard.Guard
}

// Option customises the facade.
type Option func(*Service)

// WithBackend sets the generative backend.
func WithBackend(backend Backend) Option {
	return func(s *Service) { s.backend = backend }
}

// WithFastApplyBackend sets a dedicated fast-apply sub-backend. When present
// it replaces the generative backend and its patches are tagged fast-apply.
func WithFastApplyBackend(backend Backend) Option {
	return func(s *Service) { s.fastApply = backend }
}

// WithLocator enables the fast path for pure text replacements.
func WithLocator(locator Locator) Option {
	return func(s *Service) { s.locator = locator }
}

// WithTimeout overrides the per-attempt generation budget.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// New creates the facade. The guard supplies timeout tokens so that stale
// timer callbacks cannot affect a restarted generation.
func New(g *guard.Guard, options ...Option) *Service {
	ret := &Service{timeout: DefaultTimeout, guard: g}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Generate produces the patch for a session. A nil patch with nil error
// means the attempt timed out - timeout is a soft failure, not an exception.
// Backend failures propagate as errors.
func (s *Service) Generate(ctx context.Context, sess *session.Session, instruction string) (*session.Patch, error) {
	started := clock.Now()

	if s.locator != nil && sess.Delta.TextOnly() {
		if patch, err := s.fastPath(ctx, sess, started); err == nil && patch != nil {
			return patch, nil
		}
		// fast-path misses fall through to the generative backend
	}

	backend := s.backend
	generatedBy := session.GeneratedByAI
	if s.fastApply != nil {
		backend = s.fastApply
		generatedBy = session.GeneratedByFastApply
	}
	if backend == nil {
		return nil, ErrNoBackend
	}

	token := s.guard.IssueToken(sess.ID)

	type outcome struct {
		patch *session.Patch
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		patch, err := backend.GeneratePatch(ctx, &Request{
			Target:      sess.Target,
			Delta:       sess.Delta,
			Instruction: instruction,
		})
		done <- outcome{patch: patch, err: err}
	}()

	timedOut := make(chan struct{})
	timer := time.AfterFunc(s.timeout, func() {
		// fires only while the captured token is still the current one;
		// a restarted generation for the same id invalidates it
		if s.guard.TokenValid(sess.ID, token) {
			close(timedOut)
		}
	})
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("patch generation failed: %w", out.err)
		}
		if out.patch == nil {
			return nil, fmt.Errorf("patch generation returned no result")
		}
		patch := out.patch
		if patch.GeneratedBy == "" {
			patch.GeneratedBy = generatedBy
		}
		patch.Duration = clock.Now().Sub(started)
		if patch.Diff == "" && patch.OriginalContent != patch.PatchedContent {
			if diffText, stats, err := buildDiff(patch.FilePath, patch.OriginalContent, patch.PatchedContent); err == nil {
				patch.Diff = diffText
				patch.Stats = stats
			}
		}
		return patch, nil
	case <-timedOut:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
