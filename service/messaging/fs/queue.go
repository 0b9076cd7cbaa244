// Package fs implements a filesystem-backed messaging.Queue through
// viant/afs. Each message is a JSON file moved between state directories, so
// queue content survives restarts and can land on any afs-supported scheme.
// It suits durable telemetry summaries; latency-sensitive consumers should
// prefer the memory implementation.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/overlay/internal/clock"
	"github.com/viant/overlay/internal/idgen"
	"github.com/viant/overlay/service/messaging"
)

// State tracks where a message sits in its lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Message implements messaging.Message for the filesystem queue.
type Message[T any] struct {
	ID        string    `json:"id"`
	Data      T         `json:"data"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Retries   int       `json:"retries"`

	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack marks the message processed and moves it to the completed directory.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = StateCompleted
	m.UpdatedAt = clock.Now()
	return m.queue.complete(context.Background(), m)
}

// Nack records a processing failure. The message is retried until the retry
// budget is exhausted, then parked in the dead-letter directory.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = StateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = clock.Now()
	return m.queue.fail(context.Background(), m)
}

// Config holds the filesystem queue settings.
type Config struct {
	BaseURL    string // base location of the queue directories
	MaxRetries int
}

// Queue is a filesystem-based messaging.Queue.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	completedDir  string
	failedDir     string
	dlqDir        string
	mu            sync.Mutex
}

// NewQueue creates a filesystem queue rooted at config.BaseURL and ensures
// its state directories exist.
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("fs queue: base URL cannot be empty")
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    url.Join(config.BaseURL, "pending"),
		processingDir: url.Join(config.BaseURL, "processing"),
		completedDir:  url.Join(config.BaseURL, "completed"),
		failedDir:     url.Join(config.BaseURL, "failed"),
		dlqDir:        url.Join(config.BaseURL, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.completedDir, q.failedDir, q.dlqDir} {
		if exists, _ := fs.Exists(ctx, dir); exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("fs queue: failed to create %v: %w", dir, err)
		}
	}
	return q, nil
}

// Publish writes a new message into the pending directory.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := clock.Now()
	message := &Message[T]{
		ID:        idgen.New(),
		Data:      *t,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
		queue:     q,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("fs queue: failed to marshal message: %w", err)
	}
	return q.upload(ctx, url.Join(q.pendingDir, fileName(message)), data)
}

// fileName prefixes the creation time so lexical order is arrival order.
func fileName[T any](m *Message[T]) string {
	return fmt.Sprintf("%020d-%v.json", m.CreatedAt.UnixNano(), m.ID)
}

// Consume takes the oldest message, preferring failed messages that are due
// for a retry. It returns (nil, nil) when the queue is empty.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	if message, err := q.takeFrom(ctx, q.failedDir, true); message != nil || err != nil {
		return orNil(message), err
	}
	message, err := q.takeFrom(ctx, q.pendingDir, false)
	return orNil(message), err
}

// orNil avoids returning a non-nil interface holding a nil pointer.
func orNil[T any](m *Message[T]) messaging.Message[T] {
	if m == nil {
		return nil
	}
	return m
}

// takeFrom claims the oldest eligible message of a state directory and moves
// it to processing. Retry-exhausted failed messages go to the dead-letter
// directory instead.
func (q *Queue[T]) takeFrom(ctx context.Context, dir string, retrying bool) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	objects, err := q.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("fs queue: failed to list %v: %w", dir, err)
	}
	var candidate storage.Object
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		if candidate == nil || object.Name() < candidate.Name() {
			candidate = object
		}
	}
	if candidate == nil {
		return nil, nil
	}

	message, err := q.read(ctx, candidate.URL())
	if err != nil {
		// quarantine undecodable content
		_ = q.fs.Move(ctx, candidate.URL(), url.Join(q.dlqDir, "invalid-"+candidate.Name()))
		return nil, err
	}
	if retrying && message.Retries > q.config.MaxRetries {
		if err := q.fs.Move(ctx, candidate.URL(), url.Join(q.dlqDir, candidate.Name())); err != nil {
			return nil, fmt.Errorf("fs queue: failed to park %v: %w", candidate.Name(), err)
		}
		return nil, nil
	}

	message.State = StateProcessing
	message.UpdatedAt = clock.Now()
	message.queue = q
	if err := q.move(ctx, message, candidate.URL(), q.processingDir); err != nil {
		return nil, err
	}
	return message, nil
}

func (q *Queue[T]) complete(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.move(ctx, m, url.Join(q.processingDir, fileName(m)), q.completedDir)
}

func (q *Queue[T]) fail(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	dest := q.failedDir
	if m.Retries > q.config.MaxRetries {
		dest = q.dlqDir
	}
	return q.move(ctx, m, url.Join(q.processingDir, fileName(m)), dest)
}

// move re-serialises the message into destDir and removes the previous copy.
// Upload happens first so a crash leaves a duplicate rather than a loss.
func (q *Queue[T]) move(ctx context.Context, m *Message[T], fromURL, destDir string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("fs queue: failed to marshal message %v: %w", m.ID, err)
	}
	if err := q.upload(ctx, url.Join(destDir, fileName(m)), data); err != nil {
		return err
	}
	if exists, _ := q.fs.Exists(ctx, fromURL); exists {
		if err := q.fs.Delete(ctx, fromURL); err != nil {
			return fmt.Errorf("fs queue: failed to delete %v: %w", fromURL, err)
		}
	}
	return nil
}

func (q *Queue[T]) upload(ctx context.Context, URL string, data []byte) error {
	if err := q.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("fs queue: failed to write %v: %w", URL, err)
	}
	return nil
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("fs queue: failed to read %v: %w", URL, err)
	}
	message := &Message[T]{}
	if err := json.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("fs queue: corrupted message %v: %w", URL, err)
	}
	return message, nil
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
