// Package memory provides the in-memory edit-history used by tests and
// short-lived embedders.
package memory

import (
	"context"
	"sort"

	"github.com/viant/overlay/service/dao"
	"github.com/viant/overlay/service/dao/store"
	"github.com/viant/overlay/service/history"
)

type service struct {
	entries dao.Service[string, history.Entry]
}

func entryKey(e *history.Entry) string { return e.ID }

// New creates an in-memory history service.
func New() history.Service {
	return &service{entries: store.NewMemoryStore[string, history.Entry](entryKey)}
}

func (s *service) Append(ctx context.Context, entry *history.Entry) error {
	return s.entries.Save(ctx, entry)
}

func (s *service) List(ctx context.Context) ([]*history.Entry, error) {
	entries, err := s.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AppliedAt.Before(entries[j].AppliedAt)
	})
	return entries, nil
}
