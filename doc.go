// Package overlay implements a preview-approve-patch pipeline: it turns a
// live, reversible visual mutation of a rendered document into a durable,
// version-controlled source edit.
//
// A visual change is applied to the rendering surface immediately
// (optimistic preview) while a patch-producing backend generates the
// corresponding source edit in the background. The user can accept at any
// time - the write-through fires as soon as the patch is ready - or reject,
// which reverts the preview. Context changes (tab switches, re-selection)
// and rapid repeated edits cancel unresolved sessions; an unresolved preview
// is never silently abandoned.
//
// The pipeline is built from pluggable service layers:
//
//   - approval  – session store and state machine
//   - generator – fast-path substitution and generative backend facade
//   - guard     – idempotent cancellation and timeout tokens
//   - watcher   – context-signal driven cancellation
//   - telemetry – per-session event log and terminal summaries
//   - writer    – durable persistence through viant/afs
//   - history   – append-only log of applied edits
//   - policy    – opt-in ask/auto/deny approval policy, attached via context
//
// End-users interact via the root Service façade:
//
//	svc, _ := overlay.New(overlay.WithSurface(executor), overlay.WithBackend(backend))
//	sess, _ := svc.Start(ctx, tabID, target, delta, scripts, "make the title bold")
//	_ = svc.Accept(ctx, sess.ID)
package overlay
