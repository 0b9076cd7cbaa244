package overlay

import (
	"github.com/viant/overlay/service/generator"
	"github.com/viant/overlay/service/history"
	"github.com/viant/overlay/service/messaging"
	"github.com/viant/overlay/service/surface"
	"github.com/viant/overlay/service/telemetry"
	"github.com/viant/overlay/service/watcher"
	"github.com/viant/overlay/service/writer"
)

// Option customises the pipeline service.
type Option func(s *Service)

// WithConfig sets the pipeline configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithSurface sets the live-surface executor (required).
func WithSurface(executor surface.Executor) Option {
	return func(s *Service) { s.surface = executor }
}

// WithBackend sets the generative patch backend.
func WithBackend(backend generator.Backend) Option {
	return func(s *Service) { s.backend = backend }
}

// WithFastApplyBackend sets a dedicated fast-apply sub-backend.
func WithFastApplyBackend(backend generator.Backend) Option {
	return func(s *Service) { s.fastApply = backend }
}

// WithLocator enables the deterministic fast path for text replacements.
func WithLocator(locator generator.Locator) Option {
	return func(s *Service) { s.locator = locator }
}

// WithWriter sets the durable source writer.
func WithWriter(svc *writer.Service) Option {
	return func(s *Service) { s.writer = svc }
}

// WithHistory sets the edit-history service.
func WithHistory(svc history.Service) Option {
	return func(s *Service) { s.history = svc }
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(recorder *telemetry.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithSignalQueue sets the queue context signals arrive on.
func WithSignalQueue(queue messaging.Queue[watcher.Signal]) Option {
	return func(s *Service) { s.signals = queue }
}

// WithSummaryQueue sets the queue telemetry summaries are published to.
func WithSummaryQueue(queue messaging.Queue[telemetry.Summary]) Option {
	return func(s *Service) { s.summaries = queue }
}
