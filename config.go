package overlay

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the pipeline configuration. The
// zero value is usable - nested fields inherit package defaults.
type Config struct {
	Generator GeneratorConfig `json:"generator" yaml:"generator"`
	Signals   QueueConfig     `json:"signals" yaml:"signals"`
	Summaries QueueConfig     `json:"summaries" yaml:"summaries"`
}

// GeneratorConfig bounds patch generation.
type GeneratorConfig struct {
	// TimeoutMs is the wall-clock budget of a single generation attempt.
	TimeoutMs int `json:"timeoutMs" yaml:"timeoutMs"`
}

// QueueConfig sizes an in-memory queue.
type QueueConfig struct {
	Buffer int `json:"buffer" yaml:"buffer"`
}

// DefaultConfig returns the defaults: a 30s generation budget and
// 100-message queue buffers.
func DefaultConfig() *Config {
	return &Config{
		Generator: GeneratorConfig{TimeoutMs: 30000},
		Signals:   QueueConfig{Buffer: 100},
		Summaries: QueueConfig{Buffer: 100},
	}
}

// Validate returns an error describing invalid settings, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Generator.TimeoutMs <= 0 {
		return fmt.Errorf("generator.timeoutMs must be > 0")
	}
	if c.Signals.Buffer < 0 || c.Summaries.Buffer < 0 {
		return fmt.Errorf("queue buffer must be >= 0")
	}
	return nil
}

// GenerationTimeout returns the generation budget as a duration.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutMs) * time.Millisecond
}

// LoadConfig reads a YAML config from any afs-supported URL and overlays it
// on the defaults.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
