package session

// Script is an opaque mutation instruction executed against the live
// rendering surface. The pipeline never inspects script content; it only
// hands scripts to the surface executor.
type Script string

// MutationScripts pairs a forward script with its inverse. Each pair is
// exclusively owned by one session and never shared.
type MutationScripts struct {
	Apply Script `json:"apply"`
	Undo  Script `json:"undo"`
}

// TargetDescriptor identifies the element or region being edited. It is
// owned by the caller and treated as read-only by the pipeline.
type TargetDescriptor struct {
	Tag        string            `json:"tag,omitempty"`
	Path       string            `json:"path"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// TextReplacement swaps one text fragment for another.
type TextReplacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ResourceReplacement swaps the resource reference held by a property, for
// example an image source.
type ResourceReplacement struct {
	Property string `json:"property"`
	URL      string `json:"url"`
}

// VisualDelta is the set of changes already reflected on the live surface by
// the optimistic preview.
type VisualDelta struct {
	Styles   map[string]string    `json:"styles,omitempty"`
	Text     *TextReplacement     `json:"text,omitempty"`
	Resource *ResourceReplacement `json:"resource,omitempty"`
}

// TextOnly reports whether the delta is a pure text replacement, the one
// shape eligible for the deterministic fast path.
func (d *VisualDelta) TextOnly() bool {
	if d == nil || d.Text == nil {
		return false
	}
	return len(d.Styles) == 0 && d.Resource == nil
}
