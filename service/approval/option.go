package approval

import (
	"github.com/viant/overlay/service/generator"
	"github.com/viant/overlay/service/guard"
	"github.com/viant/overlay/service/history"
	"github.com/viant/overlay/service/surface"
	"github.com/viant/overlay/service/telemetry"
	"github.com/viant/overlay/service/writer"
)

// Option customises the approval session store.
type Option func(*Service)

// WithSurface sets the live-surface executor.
func WithSurface(executor surface.Executor) Option {
	return func(s *Service) { s.surface = executor }
}

// WithGenerator sets the patch generator facade.
func WithGenerator(svc *generator.Service) Option {
	return func(s *Service) { s.generator = svc }
}

// WithGuard sets the cancellation guard.
func WithGuard(g *guard.Guard) Option {
	return func(s *Service) { s.guard = g }
}

// WithWriter sets the durable source writer.
func WithWriter(svc *writer.Service) Option {
	return func(s *Service) { s.writer = svc }
}

// WithHistory sets the append-only edit history.
func WithHistory(svc history.Service) Option {
	return func(s *Service) { s.history = svc }
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(recorder *telemetry.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}
