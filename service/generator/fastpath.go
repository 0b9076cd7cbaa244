package generator

import (
	"context"
	"strings"
	"time"

	"github.com/viant/overlay/internal/clock"
	"github.com/viant/overlay/model/session"
)

// fastPath attempts a deterministic substitution for a pure text
// replacement: locate the source holding the old text, verify it occurs
// exactly once, substitute the new text. A (nil, nil) return means the fast
// path does not apply and the generative backend should run instead.
func (s *Service) fastPath(ctx context.Context, sess *session.Session, started time.Time) (*session.Patch, error) {
	text := sess.Delta.Text
	if text.Old == "" || text.Old == text.New {
		return nil, nil
	}
	fileURL, content, err := s.locator.Locate(ctx, sess.Target, text.Old)
	if err != nil {
		return nil, err
	}
	source := string(content)
	if strings.Count(source, text.Old) != 1 {
		return nil, ErrNoUniqueMatch
	}
	patched := strings.Replace(source, text.Old, text.New, 1)
	diffText, stats, err := buildDiff(fileURL, source, patched)
	if err != nil {
		return nil, err
	}
	return &session.Patch{
		FilePath:        fileURL,
		OriginalContent: source,
		PatchedContent:  patched,
		GeneratedBy:     session.GeneratedByFastPath,
		Duration:        clock.Now().Sub(started),
		Diff:            diffText,
		Stats:           stats,
	}, nil
}
