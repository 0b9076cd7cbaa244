// Package approval owns the single active approval session per editing
// context and its state machine: optimistic preview, asynchronous patch
// generation, accept/reject, auto-apply on ready, supersession and
// context-triggered cancellation.
package approval
