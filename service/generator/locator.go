package generator

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/overlay/model/session"
)

var (
	// ErrTextNotFound indicates no source file contains the searched text.
	ErrTextNotFound = errors.New("generator: text not found in workspace")

	// ErrAmbiguousLocation indicates the searched text occurs in more than
	// one source file, so the fast path cannot pick one deterministically.
	ErrAmbiguousLocation = errors.New("generator: text found in multiple files")
)

// Locator resolves the source file that holds the given rendered text.
type Locator interface {
	Locate(ctx context.Context, target *session.TargetDescriptor, text string) (string, []byte, error)
}

// Workspace is an afs-backed Locator scanning a project tree. Any afs scheme
// works (file, mem, s3...), which keeps the fast path testable without disk.
type Workspace struct {
	fs         afs.Service
	baseURL    string
	extensions map[string]bool
}

// NewWorkspace creates a workspace locator. When extensions are supplied
// only files with a matching extension are scanned.
func NewWorkspace(fs afs.Service, baseURL string, extensions ...string) *Workspace {
	ret := &Workspace{fs: fs, baseURL: baseURL}
	if len(extensions) > 0 {
		ret.extensions = make(map[string]bool)
		for _, ext := range extensions {
			ret.extensions[strings.ToLower(ext)] = true
		}
	}
	return ret
}

// Locate scans the workspace for files containing text. Exactly one file
// must match; otherwise the fast path falls back to the generative backend.
func (w *Workspace) Locate(ctx context.Context, _ *session.TargetDescriptor, text string) (string, []byte, error) {
	var matchURL string
	var matchData []byte
	matches := 0
	needle := []byte(text)

	err := w.walk(ctx, w.baseURL, func(URL string, data []byte) {
		if bytes.Contains(data, needle) {
			matches++
			matchURL, matchData = URL, data
		}
	})
	if err != nil {
		return "", nil, err
	}
	switch {
	case matches == 0:
		return "", nil, ErrTextNotFound
	case matches > 1:
		return "", nil, ErrAmbiguousLocation
	}
	return matchURL, matchData, nil
}

func (w *Workspace) walk(ctx context.Context, URL string, visit func(URL string, data []byte)) error {
	objects, err := w.fs.List(ctx, URL)
	if err != nil {
		return err
	}
	for _, object := range objects {
		if url.Equals(URL, object.URL()) {
			continue
		}
		if object.IsDir() {
			if err := w.walk(ctx, object.URL(), visit); err != nil {
				return err
			}
			continue
		}
		if w.extensions != nil && !w.extensions[strings.ToLower(path.Ext(object.URL()))] {
			continue
		}
		data, err := w.fs.Download(ctx, object)
		if err != nil {
			return err
		}
		visit(object.URL(), data)
	}
	return nil
}
