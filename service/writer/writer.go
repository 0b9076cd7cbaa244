// Package writer persists approved patches through viant/afs, so the durable
// target can live on any supported scheme (file, mem, s3, gs...).
package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// Service writes patched source content to its durable location.
type Service struct {
	fs afs.Service
}

// Option customises the writer.
type Option func(*Service)

// WithFS overrides the afs service, mainly for tests using mem://.
func WithFS(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// New creates a writer service.
func New(options ...Option) *Service {
	ret := &Service{}
	for _, option := range options {
		option(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	return ret
}

// Write uploads content to URL, replacing the previous version.
func (s *Service) Write(ctx context.Context, URL, content string) error {
	if URL == "" {
		return fmt.Errorf("writer: empty target URL")
	}
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, strings.NewReader(content)); err != nil {
		return fmt.Errorf("writer: failed to write %v: %w", URL, err)
	}
	return nil
}

// Read downloads the current content of URL.
func (s *Service) Read(ctx context.Context, URL string) (string, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return "", fmt.Errorf("writer: failed to read %v: %w", URL, err)
	}
	return string(data), nil
}

// Exists reports whether URL currently exists.
func (s *Service) Exists(ctx context.Context, URL string) (bool, error) {
	return s.fs.Exists(ctx, URL)
}
