// Package memory provides an in-process surface executor that records every
// executed script. It backs unit tests and headless runs where no real
// rendering surface is attached.
package memory

import (
	"context"
	"sync"

	"github.com/viant/overlay/model/session"
)

// Executor records executed scripts in order. Failures can be injected per
// script to exercise error paths.
type Executor struct {
	mu       sync.Mutex
	executed []session.Script
	failures map[session.Script]error
}

// New creates a recording executor.
func New() *Executor {
	return &Executor{failures: make(map[session.Script]error)}
}

// FailOn makes the executor return err for the given script.
func (e *Executor) FailOn(script session.Script, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[script] = err
}

// Execute records the script and returns an injected failure when present.
func (e *Executor) Execute(_ context.Context, script session.Script) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.failures[script]; ok {
		return "", err
	}
	e.executed = append(e.executed, script)
	return "ok", nil
}

// Executed returns a copy of the scripts executed so far, in order.
func (e *Executor) Executed() []session.Script {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]session.Script, len(e.executed))
	copy(out, e.executed)
	return out
}

// Count returns how many times the given script was executed.
func (e *Executor) Count(script session.Script) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.executed {
		if s == script {
			n++
		}
	}
	return n
}
