package overlay

import (
	"context"
	"fmt"

	"github.com/viant/overlay/model/session"
	"github.com/viant/overlay/service/approval"
	"github.com/viant/overlay/service/generator"
	"github.com/viant/overlay/service/guard"
	"github.com/viant/overlay/service/history"
	hmemory "github.com/viant/overlay/service/history/memory"
	"github.com/viant/overlay/service/messaging"
	mmemory "github.com/viant/overlay/service/messaging/memory"
	"github.com/viant/overlay/service/surface"
	"github.com/viant/overlay/service/telemetry"
	"github.com/viant/overlay/service/watcher"
	"github.com/viant/overlay/service/writer"
	"github.com/viant/overlay/tracing"
)

// Service is the pipeline entry point. It wires the approval session store
// with the generator facade, cancellation guard, context watcher, telemetry
// recorder, writer and history, and exposes the operations the editing
// feature invokes.
type Service struct {
	config    *Config
	surface   surface.Executor
	backend   generator.Backend
	fastApply generator.Backend
	locator   generator.Locator
	writer    *writer.Service
	history   history.Service
	recorder  *telemetry.Recorder
	guard     *guard.Guard
	generator *generator.Service
	approvals *approval.Service
	watcher   *watcher.Service
	signals   messaging.Queue[watcher.Signal]
	summaries messaging.Queue[telemetry.Summary]
}

// New creates and starts the pipeline. A surface executor is required; every
// other collaborator has an in-memory default.
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig()}
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.surface == nil {
		return nil, fmt.Errorf("surface executor is required")
	}
	if s.summaries == nil {
		s.summaries = mmemory.NewQueue[telemetry.Summary](queueConfig(s.config.Summaries))
	}
	if s.recorder == nil {
		s.recorder = telemetry.New(telemetry.WithSummaryQueue(s.summaries))
	}
	s.guard = guard.New(s.surface, s.recorder)

	generatorOptions := []generator.Option{generator.WithTimeout(s.config.GenerationTimeout())}
	if s.backend != nil {
		generatorOptions = append(generatorOptions, generator.WithBackend(s.backend))
	}
	if s.fastApply != nil {
		generatorOptions = append(generatorOptions, generator.WithFastApplyBackend(s.fastApply))
	}
	if s.locator != nil {
		generatorOptions = append(generatorOptions, generator.WithLocator(s.locator))
	}
	s.generator = generator.New(s.guard, generatorOptions...)

	if s.writer == nil {
		s.writer = writer.New()
	}
	if s.history == nil {
		s.history = hmemory.New()
	}

	approvals, err := approval.New(
		approval.WithSurface(s.surface),
		approval.WithGenerator(s.generator),
		approval.WithGuard(s.guard),
		approval.WithWriter(s.writer),
		approval.WithHistory(s.history),
		approval.WithRecorder(s.recorder),
	)
	if err != nil {
		return nil, err
	}
	s.approvals = approvals

	if s.signals == nil {
		s.signals = mmemory.NewQueue[watcher.Signal](queueConfig(s.config.Signals))
	}
	s.watcher = watcher.New(s.approvals, s.signals)
	s.watcher.Start()
	return s, nil
}

func queueConfig(c QueueConfig) mmemory.Config {
	config := mmemory.DefaultConfig()
	if c.Buffer > 0 {
		config.QueueBuffer = c.Buffer
	}
	return config
}

// Start creates an approval session for a previewed visual change and kicks
// off patch generation. The instruction is the natural-language description
// of the user's request, forwarded to the generative backend.
func (s *Service) Start(ctx context.Context, contextID string, target *session.TargetDescriptor, delta *session.VisualDelta, scripts *session.MutationScripts, instruction string) (*session.Session, error) {
	ctx, span := tracing.StartSpan(ctx, "overlay.start", "INTERNAL")
	sess, err := s.approvals.Start(ctx, contextID, target, delta, scripts, instruction)
	if sess != nil {
		span.WithAttributes(map[string]string{"approval.id": sess.ID, "context.id": contextID})
	}
	tracing.EndSpan(span, err)
	return sess, err
}

// Accept commits the user to the session's change.
func (s *Service) Accept(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "overlay.accept", "INTERNAL")
	span.WithAttributes(map[string]string{"approval.id": id})
	err := s.approvals.Accept(ctx, id)
	tracing.EndSpan(span, err)
	return err
}

// Reject reverts the session's preview and discards it.
func (s *Service) Reject(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "overlay.reject", "INTERNAL")
	span.WithAttributes(map[string]string{"approval.id": id})
	err := s.approvals.Reject(ctx, id)
	tracing.EndSpan(span, err)
	return err
}

// Current returns the live session of a context for UI rendering, or nil.
func (s *Service) Current(ctx context.Context, contextID string) *session.Session {
	return s.approvals.Current(ctx, contextID)
}

// Signal feeds an external context signal into the watcher.
func (s *Service) Signal(ctx context.Context, signal watcher.Signal) error {
	return s.signals.Publish(ctx, &signal)
}

// Summaries exposes the queue terminal telemetry summaries are published to.
func (s *Service) Summaries() messaging.Queue[telemetry.Summary] {
	return s.summaries
}

// History exposes the append-only edit history.
func (s *Service) History() history.Service {
	return s.history
}

// Shutdown stops the watcher pump. In-flight generations resolve against the
// guard and are dropped if their sessions are gone.
func (s *Service) Shutdown() {
	s.watcher.Stop()
}
