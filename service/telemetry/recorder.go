// Package telemetry records named, timestamped events per approval id and
// emits one summary record when a session reaches its terminal outcome.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/viant/overlay/internal/clock"
	"github.com/viant/overlay/service/dao"
	"github.com/viant/overlay/service/dao/store"
	"github.com/viant/overlay/service/messaging"
	"github.com/viant/overlay/tracing"
)

// Recorder owns the per-session event logs. All operations are keyed by
// approval id; operations on unknown ids are no-ops so that late callbacks
// for resolved sessions cannot resurrect state.
type Recorder struct {
	records   dao.Service[string, Record]
	summaries messaging.Queue[Summary]
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithSummaryQueue attaches a queue that receives one Summary per resolved
// session. Without it summaries are computed and returned but not published.
func WithSummaryQueue(queue messaging.Queue[Summary]) Option {
	return func(r *Recorder) { r.summaries = queue }
}

func recordKey(r *Record) string { return r.ID }

// New creates a Recorder backed by an in-memory store.
func New(options ...Option) *Recorder {
	ret := &Recorder{
		records: store.NewMemoryStore[string, Record](recordKey),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Begin opens the event log for a new approval id.
func (r *Recorder) Begin(ctx context.Context, id, contextID, targetRef string) {
	record := &Record{
		ID:        id,
		ContextID: contextID,
		TargetRef: targetRef,
		CreatedAt: clock.Now(),
		Events:    make(map[Event]time.Time),
	}
	if err := r.records.Save(ctx, record); err != nil {
		log.Printf("telemetry: failed to open record %v: %v", id, err)
	}
}

// RecordEvent stamps the first occurrence of an event. Recording the same
// event again, or recording against an unknown id, is a no-op.
func (r *Recorder) RecordEvent(ctx context.Context, id string, event Event) {
	record, err := r.records.Load(ctx, id)
	if err != nil || record == nil {
		return
	}
	if _, ok := record.Events[event]; ok {
		return
	}
	record.Events[event] = clock.Now()
	_ = r.records.Save(ctx, record)
}

// EventAt returns the recorded timestamp for an event, if any.
func (r *Recorder) EventAt(ctx context.Context, id string, event Event) (time.Time, bool) {
	record, err := r.records.Load(ctx, id)
	if err != nil || record == nil {
		return time.Time{}, false
	}
	at, ok := record.Events[event]
	return at, ok
}

// Finish computes the terminal summary for an approval id, publishes it when
// a summary queue is attached, and deletes the record. A second Finish for
// the same id returns nil - the terminal summary is emitted exactly once.
func (r *Recorder) Finish(ctx context.Context, id string, outcome Outcome) *Summary {
	record, err := r.records.Load(ctx, id)
	if err != nil || record == nil {
		return nil
	}
	summary := summarize(record, outcome)
	_ = r.records.Delete(ctx, id)

	_, span := tracing.StartSpan(ctx, "overlay.resolve", "PRODUCER")
	span.WithAttributes(map[string]string{
		"approval.id":        summary.ID,
		"approval.outcome":   string(summary.Outcome),
		"latency.generation": summary.GenerationLatency.String(),
		"latency.decision":   summary.DecisionLatency.String(),
		"latency.write":      summary.WriteLatency.String(),
	})
	tracing.EndSpan(span, nil)

	if r.summaries != nil {
		if err := r.summaries.Publish(ctx, summary); err != nil {
			log.Printf("telemetry: failed to publish summary %v: %v", id, err)
		}
	}
	return summary
}

func summarize(record *Record, outcome Outcome) *Summary {
	summary := &Summary{
		ID:        record.ID,
		ContextID: record.ContextID,
		TargetRef: record.TargetRef,
		Outcome:   outcome,
		CreatedAt: record.CreatedAt,
		EndedAt:   clock.Now(),
		Events:    record.Events,
	}
	if started, ok := record.Events[EventGenerationStarted]; ok {
		if ended, ok := firstOf(record.Events, EventPatchReady, EventPatchFailed); ok {
			summary.GenerationLatency = ended.Sub(started)
		}
	}
	if previewed, ok := record.Events[EventPreviewApplied]; ok {
		if decided, ok := firstOf(record.Events, EventUserAccept, EventUserReject, EventAutoCancel); ok {
			summary.DecisionLatency = decided.Sub(previewed)
		}
	}
	if started, ok := record.Events[EventWriteStarted]; ok {
		if ended, ok := firstOf(record.Events, EventWriteSucceeded, EventWriteFailed); ok {
			summary.WriteLatency = ended.Sub(started)
		}
	}
	return summary
}

func firstOf(events map[Event]time.Time, candidates ...Event) (time.Time, bool) {
	for _, candidate := range candidates {
		if at, ok := events[candidate]; ok {
			return at, true
		}
	}
	return time.Time{}, false
}
