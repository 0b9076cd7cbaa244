// Package surface defines the contract towards the live rendering surface.
// The surface executes opaque mutation scripts and reports their results;
// its implementation (browser, embedded renderer, remote device) lives
// outside this module.
package surface

import (
	"context"

	"github.com/viant/overlay/model/session"
)

// Executor runs a mutation or inverse script against the live surface. The
// returned value is surface-specific and informational; the pipeline only
// cares whether execution succeeded.
type Executor interface {
	Execute(ctx context.Context, script session.Script) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, script session.Script) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, script session.Script) (string, error) {
	return f(ctx, script)
}
