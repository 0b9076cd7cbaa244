// Package policy provides an optional per-session approval layer that can be
// attached to the pipeline via context. It is deliberately decoupled from the
// rest of the pipeline so that using it is entirely opt-in - callers that do
// not embed a Policy in their context keep the default "ask" behaviour.
package policy

import (
	"context"
	"strings"
)

// Decision modes recognised by the pipeline.
const (
	ModeAsk  = "ask"  // wait for an explicit accept or reject (default)
	ModeAuto = "auto" // commit every session as soon as its patch is ready
	ModeDeny = "deny" // block new sessions entirely
)

// DecideFunc is invoked when Mode==ask and a patch becomes ready, letting a
// headless embedder resolve the session programmatically. Returning true
// accepts the patch, false rejects it. Implementations MAY mutate the policy
// (for example switching to ModeAuto after the first approval).
type DecideFunc func(
	ctx context.Context,
	target string, // target reference the session mutates
	diff string, // unified diff of the pending patch - may be empty
	p *Policy,
) bool

// Policy represents the approval settings of the current editing run.
//
//   - Mode controls the high-level behaviour (ask / auto / deny).
//   - AllowList, BlockList filter by target reference regardless of Mode.
//   - Decide is only used when Mode==ask.
//
// A nil *Policy means "ask for every session" and is therefore the zero-cost
// default.
type Policy struct {
	Mode      string     // ask / auto / deny      (default = ask)
	AllowList []string   // whitelist (empty => all targets)
	BlockList []string   // blacklist
	Decide    DecideFunc // used only when Mode==ask
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy (without
// DecideFunc).
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// IsAllowed evaluates AllowList / BlockList. Both lists match by exact,
// case-insensitive comparison of the target reference.
func (p *Policy) IsAllowed(target string) bool {
	if p == nil {
		return true
	}

	normalized := strings.ToLower(target)

	// BlockList has priority.
	for _, b := range p.BlockList {
		if normalized == strings.ToLower(b) {
			return false
		}
	}

	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if normalized == strings.ToLower(a) {
			return true
		}
	}
	return false
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy embedded in ctx, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
