package approval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/overlay/model/session"
	"github.com/viant/overlay/policy"
	"github.com/viant/overlay/service/approval"
	"github.com/viant/overlay/service/dao"
	"github.com/viant/overlay/service/generator"
	"github.com/viant/overlay/service/guard"
	hmemory "github.com/viant/overlay/service/history/memory"
	mmemory "github.com/viant/overlay/service/messaging/memory"
	smemory "github.com/viant/overlay/service/surface/memory"
	"github.com/viant/overlay/service/telemetry"
	"github.com/viant/overlay/service/writer"
)

type fixture struct {
	service   *approval.Service
	surface   *smemory.Executor
	guard     *guard.Guard
	recorder  *telemetry.Recorder
	summaries *mmemory.Queue[telemetry.Summary]
	writer    *writer.Service
}

func newFixture(t *testing.T, backend generator.Backend) *fixture {
	surface := smemory.New()
	summaries := mmemory.NewQueue[telemetry.Summary](mmemory.DefaultConfig())
	recorder := telemetry.New(telemetry.WithSummaryQueue(summaries))
	g := guard.New(surface, recorder)
	gen := generator.New(g,
		generator.WithBackend(backend),
		generator.WithTimeout(2*time.Second))
	w := writer.New(writer.WithFS(afs.New()))
	svc, err := approval.New(
		approval.WithSurface(surface),
		approval.WithGenerator(gen),
		approval.WithGuard(g),
		approval.WithWriter(w),
		approval.WithHistory(hmemory.New()),
		approval.WithRecorder(recorder))
	assert.NoError(t, err)
	return &fixture{
		service:   svc,
		surface:   surface,
		guard:     g,
		recorder:  recorder,
		summaries: summaries,
		writer:    w,
	}
}

func scripts(id string) *session.MutationScripts {
	return &session.MutationScripts{
		Apply: session.Script("apply-" + id),
		Undo:  session.Script("undo-" + id),
	}
}

func styleDelta() *session.VisualDelta {
	return &session.VisualDelta{Styles: map[string]string{"color": "red"}}
}

func target(path string) *session.TargetDescriptor {
	return &session.TargetDescriptor{Tag: "div", Path: path}
}

// blockingBackend resolves only when release is closed.
type blockingBackend struct {
	release chan struct{}
	patch   *session.Patch
	err     error
}

func (b *blockingBackend) GeneratePatch(ctx context.Context, _ *generator.Request) (*session.Patch, error) {
	select {
	case <-b.release:
		return b.patch, b.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fixture) consumeSummary(t *testing.T) *telemetry.Summary {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := f.summaries.Consume(ctx)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	_ = msg.Ack()
	return msg.T()
}

func TestService_StartAppliesPreview(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	f := newFixture(t, backend)
	ctx := context.Background()

	sess, err := f.service.Start(ctx, "tab-1", target("body/div[0]"), styleDelta(), scripts("s1"), "make it red")
	assert.NoError(t, err)
	if !assert.NotNil(t, sess) {
		return
	}
	assert.EqualValues(t, session.StatusPreparing, sess.PatchStatus)
	assert.EqualValues(t, []session.Script{"apply-s1"}, f.surface.Executed())

	current := f.service.Current(ctx, "tab-1")
	if assert.NotNil(t, current) {
		assert.EqualValues(t, sess.ID, current.ID)
	}

	_, ok := f.recorder.EventAt(ctx, sess.ID, telemetry.EventPreviewApplied)
	assert.True(t, ok)
	_, ok = f.recorder.EventAt(ctx, sess.ID, telemetry.EventGenerationStarted)
	assert.True(t, ok)
}

func TestService_RejectWhilePreparing(t *testing.T) {
	// Scenario: reject fires while the patch is still preparing - the undo
	// script runs, the session is removed and the late generation result is
	// discarded.
	backend := &blockingBackend{
		release: make(chan struct{}),
		patch:   &session.Patch{FilePath: "mem://localhost/reject/page.html", OriginalContent: "a", PatchedContent: "b"},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	sess, err := f.service.Start(ctx, "tab-1", target("body/div[0]"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)

	assert.NoError(t, f.service.Reject(ctx, sess.ID))
	assert.Nil(t, f.service.Current(ctx, "tab-1"))
	assert.EqualValues(t, 1, f.surface.Count("undo-s1"))

	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeRejected, summary.Outcome)

	// release the backend after the fact; its result must be a no-op
	close(backend.release)
	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, f.service.Current(ctx, "tab-1"))
	ok, err := f.writer.Exists(ctx, "mem://localhost/reject/page.html")
	assert.NoError(t, err)
	assert.False(t, ok, "discarded patch must never be written")

	// rejecting an already removed session is a no-op
	assert.NoError(t, f.service.Reject(ctx, sess.ID))
	assert.EqualValues(t, 1, f.surface.Count("undo-s1"))
}

func TestService_AcceptWhilePreparing(t *testing.T) {
	// Accept during preparing defers the write-through: it fires exactly
	// once as soon as the patch becomes ready.
	targetURL := "mem://localhost/accept/page.html"
	backend := &blockingBackend{
		release: make(chan struct{}),
		patch:   &session.Patch{FilePath: targetURL, OriginalContent: "<h1>a</h1>\n", PatchedContent: "<h1>b</h1>\n"},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	sess, err := f.service.Start(ctx, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)
	assert.NoError(t, f.service.Accept(ctx, sess.ID))

	// nothing written while the patch is still preparing
	ok, _ := f.writer.Exists(ctx, targetURL)
	assert.False(t, ok)

	close(backend.release)
	assert.Eventually(t, func() bool {
		ok, _ := f.writer.Exists(ctx, targetURL)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	content, err := f.writer.Read(ctx, targetURL)
	assert.NoError(t, err)
	assert.EqualValues(t, "<h1>b</h1>\n", content)

	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeApplied, summary.Outcome)
	_, ok = summary.Events[telemetry.EventWriteSucceeded]
	assert.True(t, ok)

	// session is dropped after the write-through
	assert.Nil(t, f.service.Current(ctx, "tab-1"))
	// the preview was never reverted
	assert.EqualValues(t, 0, f.surface.Count("undo-s1"))
}

func TestService_AcceptOnReady(t *testing.T) {
	targetURL := "mem://localhost/ready/page.html"
	backend := &blockingBackend{
		release: make(chan struct{}),
		patch:   &session.Patch{FilePath: targetURL, OriginalContent: "a\n", PatchedContent: "b\n"},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	sess, err := f.service.Start(ctx, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)

	close(backend.release)
	assert.Eventually(t, func() bool {
		current := f.service.Current(ctx, "tab-1")
		return current != nil && current.PatchStatus == session.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, f.service.Accept(ctx, sess.ID))
	content, err := f.writer.Read(ctx, targetURL)
	assert.NoError(t, err)
	assert.EqualValues(t, "b\n", content)
	assert.Nil(t, f.service.Current(ctx, "tab-1"))

	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeApplied, summary.Outcome)
}

func TestService_GenerationFailure(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{}), err: errors.New("model unavailable")}
	f := newFixture(t, backend)
	ctx := context.Background()

	sess, err := f.service.Start(ctx, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)

	close(backend.release)
	assert.Eventually(t, func() bool {
		current := f.service.Current(ctx, "tab-1")
		return current != nil && current.PatchStatus == session.StatusError
	}, 2*time.Second, 10*time.Millisecond)

	current := f.service.Current(ctx, "tab-1")
	assert.Contains(t, current.PatchError, "model unavailable")
	assert.Nil(t, current.Patch)

	// accept on an errored session only surfaces the stored error
	err = f.service.Accept(ctx, sess.ID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.NotNil(t, f.service.Current(ctx, "tab-1"), "error state requires an explicit dismiss")

	// dismiss reverts the preview
	assert.NoError(t, f.service.Reject(ctx, sess.ID))
	assert.EqualValues(t, 1, f.surface.Count("undo-s1"))
	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeRejected, summary.Outcome)
}

func TestService_GenerationTimeout(t *testing.T) {
	// a backend that never resolves leaves the session in the error state
	// with a timeout-flavoured message
	surface := smemory.New()
	recorder := telemetry.New()
	g := guard.New(surface, recorder)
	gen := generator.New(g,
		generator.WithBackend(generator.BackendFunc(func(ctx context.Context, _ *generator.Request) (*session.Patch, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})),
		generator.WithTimeout(50*time.Millisecond))
	svc, err := approval.New(
		approval.WithSurface(surface),
		approval.WithGenerator(gen),
		approval.WithGuard(g),
		approval.WithWriter(writer.New(writer.WithFS(afs.New()))),
		approval.WithRecorder(recorder))
	assert.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Start(ctx, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		current := svc.Current(ctx, "tab-1")
		return current != nil && current.PatchStatus == session.StatusError
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, svc.Current(ctx, "tab-1").PatchError, "timed out")
}

func TestService_Supersession(t *testing.T) {
	// Scenario: start is called twice in quick succession for the same
	// context - the first session's undo runs exactly once before the second
	// session's apply, and exactly one auto_cancel summary is emitted.
	backend := &blockingBackend{release: make(chan struct{})}
	f := newFixture(t, backend)
	ctx := context.Background()

	first, err := f.service.Start(ctx, "tab-1", target("body/div[0]"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)
	second, err := f.service.Start(ctx, "tab-1", target("body/div[1]"), styleDelta(), scripts("s2"), "")
	assert.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	assert.EqualValues(t, []session.Script{"apply-s1", "undo-s1", "apply-s2"}, f.surface.Executed())

	current := f.service.Current(ctx, "tab-1")
	if assert.NotNil(t, current) {
		assert.EqualValues(t, second.ID, current.ID)
	}

	summary := f.consumeSummary(t)
	assert.EqualValues(t, first.ID, summary.ID)
	assert.EqualValues(t, telemetry.OutcomeCancelled, summary.Outcome)
	_, ok := summary.Events[telemetry.EventAutoCancel]
	assert.True(t, ok)
	assert.EqualValues(t, 0, f.summaries.Size(), "exactly one auto_cancel for the superseded id")
}

func TestService_ApprovedSessionNotSuperseded(t *testing.T) {
	targetURL := "mem://localhost/approved/page.html"
	backend := &blockingBackend{
		release: make(chan struct{}),
		patch:   &session.Patch{FilePath: targetURL, OriginalContent: "a\n", PatchedContent: "b\n"},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	first, err := f.service.Start(ctx, "tab-1", target("body/div[0]"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)
	assert.NoError(t, f.service.Accept(ctx, first.ID))

	// a new edit in the same context must not cancel the approved session
	_, err = f.service.Start(ctx, "tab-1", target("body/div[1]"), styleDelta(), scripts("s2"), "")
	assert.NoError(t, err)
	assert.EqualValues(t, 0, f.surface.Count("undo-s1"))

	// the approved session still runs to completion
	close(backend.release)
	assert.Eventually(t, func() bool {
		ok, _ := f.writer.Exists(ctx, targetURL)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	summary := f.consumeSummary(t)
	assert.EqualValues(t, first.ID, summary.ID)
	assert.EqualValues(t, telemetry.OutcomeApplied, summary.Outcome)
}

func TestService_WriteFailureKeepsPreview(t *testing.T) {
	// the durable write fails but the preview stays on the surface
	backend := &blockingBackend{
		release: make(chan struct{}),
		patch:   &session.Patch{FilePath: "unknown://localhost/x.html", OriginalContent: "a\n", PatchedContent: "b\n"},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	sess, err := f.service.Start(ctx, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)

	close(backend.release)
	assert.Eventually(t, func() bool {
		current := f.service.Current(ctx, "tab-1")
		return current != nil && current.PatchStatus == session.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	err = f.service.Accept(ctx, sess.ID)
	assert.Error(t, err)

	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeWriteFailed, summary.Outcome)
	_, ok := summary.Events[telemetry.EventWriteFailed]
	assert.True(t, ok)
	assert.EqualValues(t, 0, f.surface.Count("undo-s1"), "preview must not be reverted on write failure")
	assert.Nil(t, f.service.Current(ctx, "tab-1"))
}

func TestService_CancelCurrent(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	f := newFixture(t, backend)
	ctx := context.Background()

	sess, err := f.service.Start(ctx, "tab-1", target("body/div[0]"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)
	_ = sess

	assert.NoError(t, f.service.CancelCurrent(ctx, "tab-1", guard.ReasonContextChange))
	assert.Nil(t, f.service.Current(ctx, "tab-1"))
	assert.EqualValues(t, 1, f.surface.Count("undo-s1"))

	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeCancelled, summary.Outcome)

	// cancelling an empty context is a no-op
	assert.NoError(t, f.service.CancelCurrent(ctx, "tab-1", guard.ReasonContextChange))
	assert.EqualValues(t, 1, f.surface.Count("undo-s1"))
}

func TestService_SessionsFilter(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	f := newFixture(t, backend)
	ctx := context.Background()

	_, err := f.service.Start(ctx, "tab-1", target("body/div[0]"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)
	_, err = f.service.Start(ctx, "tab-2", target("body/div[1]"), styleDelta(), scripts("s2"), "")
	assert.NoError(t, err)

	sessions, err := f.service.Sessions(ctx)
	assert.NoError(t, err)
	assert.Len(t, sessions, 2)

	preparing, err := f.service.Sessions(ctx, dao.NewParameter("PatchStatus", "preparing"))
	assert.NoError(t, err)
	assert.Len(t, preparing, 2)

	ready, err := f.service.Sessions(ctx, dao.NewParameter("PatchStatus", "ready"))
	assert.NoError(t, err)
	assert.Empty(t, ready)
}

func TestService_PolicyAutoMode(t *testing.T) {
	// auto mode commits without an explicit accept
	targetURL := "mem://localhost/policy/page.html"
	backend := &blockingBackend{
		release: make(chan struct{}),
		patch:   &session.Patch{FilePath: targetURL, OriginalContent: "a\n", PatchedContent: "b\n"},
	}
	f := newFixture(t, backend)
	ctx := policy.WithPolicy(context.Background(), &policy.Policy{Mode: policy.ModeAuto})

	_, err := f.service.Start(ctx, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)

	close(backend.release)
	assert.Eventually(t, func() bool {
		ok, _ := f.writer.Exists(ctx, targetURL)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeApplied, summary.Outcome)
}

func TestService_PolicyDenyAndBlockList(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	f := newFixture(t, backend)

	denied := policy.WithPolicy(context.Background(), &policy.Policy{Mode: policy.ModeDeny})
	_, err := f.service.Start(denied, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.Error(t, err)

	blocked := policy.WithPolicy(context.Background(), &policy.Policy{BlockList: []string{"body/h1"}})
	_, err = f.service.Start(blocked, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.Error(t, err)
	assert.Empty(t, f.surface.Executed(), "blocked sessions never touch the surface")
}

func TestService_PolicyDecide(t *testing.T) {
	// in ask mode a DecideFunc resolves the session once the patch is ready
	backend := &blockingBackend{
		release: make(chan struct{}),
		patch:   &session.Patch{FilePath: "mem://localhost/decide/page.html", OriginalContent: "a\n", PatchedContent: "b\n"},
	}
	f := newFixture(t, backend)
	ctx := policy.WithPolicy(context.Background(), &policy.Policy{
		Mode: policy.ModeAsk,
		Decide: func(ctx context.Context, target, diff string, p *policy.Policy) bool {
			return false
		},
	})

	_, err := f.service.Start(ctx, "tab-1", target("body/h1"), styleDelta(), scripts("s1"), "")
	assert.NoError(t, err)

	close(backend.release)
	assert.Eventually(t, func() bool {
		return f.service.Current(ctx, "tab-1") == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, f.surface.Count("undo-s1"))

	summary := f.consumeSummary(t)
	assert.EqualValues(t, telemetry.OutcomeRejected, summary.Outcome)
}
