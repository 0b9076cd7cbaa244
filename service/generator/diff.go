package generator

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	sgdiff "github.com/sourcegraph/go-diff/diff"
	"github.com/viant/overlay/model/session"
)

// buildDiff renders a unified diff between the original and patched content
// and derives hunk statistics from it. The diff is parsed back to ensure the
// produced patch is well formed before it reaches the approval UI.
func buildDiff(path, original, patched string) (string, session.DiffStats, error) {
	if path == "" {
		path = "file"
	}
	unified := difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(patched),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	diffText, err := difflib.GetUnifiedDiffString(unified)
	if err != nil {
		return "", session.DiffStats{}, fmt.Errorf("diff generation: %w", err)
	}
	fileDiff, err := sgdiff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return "", session.DiffStats{}, fmt.Errorf("diff validation: %w", err)
	}
	stat := fileDiff.Stat()
	stats := session.DiffStats{
		Hunks:      len(fileDiff.Hunks),
		Insertions: int(stat.Added + stat.Changed),
		Deletions:  int(stat.Deleted + stat.Changed),
	}
	return diffText, stats, nil
}
