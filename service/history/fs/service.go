// Package fs persists the edit history as a JSON-lines file through
// viant/afs, one marshalled entry per line.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/overlay/service/history"
)

type service struct {
	fs  afs.Service
	URL string
	mu  sync.Mutex
}

// New creates a JSONL-backed history at the supplied URL.
func New(fs afs.Service, URL string) history.Service {
	return &service{fs: fs, URL: URL}
}

func (s *service) Append(ctx context.Context, entry *history.Entry) error {
	if entry == nil {
		return fmt.Errorf("history: nil entry")
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("history: failed to marshal entry %v: %w", entry.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	if ok, _ := s.fs.Exists(ctx, s.URL); ok {
		if data, err = s.fs.DownloadWithURL(ctx, s.URL); err != nil {
			return fmt.Errorf("history: failed to read %v: %w", s.URL, err)
		}
	}
	data = append(data, line...)
	data = append(data, '\n')
	if err := s.fs.Upload(ctx, s.URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("history: failed to write %v: %w", s.URL, err)
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]*history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, _ := s.fs.Exists(ctx, s.URL); !ok {
		return nil, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("history: failed to read %v: %w", s.URL, err)
	}
	var entries []*history.Entry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := &history.Entry{}
		if err := json.Unmarshal([]byte(line), entry); err != nil {
			return nil, fmt.Errorf("history: corrupted entry in %v: %w", s.URL, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
