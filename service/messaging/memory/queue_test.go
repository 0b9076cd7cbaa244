package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testSignal struct {
	ID        string
	ContextID string
	Sequence  int
}

func TestQueue(t *testing.T) {
	config := DefaultConfig()
	config.RetryDelay = 10 * time.Millisecond
	queue := NewQueue[testSignal](config)

	ctx := context.Background()
	payload := testSignal{ID: "sig-1", ContextID: "tab-1", Sequence: 1}

	err := queue.Publish(ctx, &payload)
	assert.NoError(t, err)
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, message)
	assert.Equal(t, 0, queue.Size())

	received := message.T()
	assert.Equal(t, payload.ID, received.ID)
	assert.Equal(t, payload.ContextID, received.ContextID)
	assert.Equal(t, payload.Sequence, received.Sequence)

	assert.NoError(t, message.Ack())
	// double ack is rejected
	assert.Error(t, message.Ack())
}

func TestQueueRetriesAndDeadLetter(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 2
	config.RetryDelay = 10 * time.Millisecond
	queue := NewQueue[testSignal](config)

	ctx := context.Background()
	err := queue.Publish(ctx, &testSignal{ID: "retry"})
	assert.NoError(t, err)

	// nack through the retry budget
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		message, err := queue.Consume(cctx)
		cancel()
		assert.NoError(t, err)
		assert.NoError(t, message.Nack(fmt.Errorf("attempt %d failed", attempt)))
	}

	// the exhausted message lands in the dead-letter queue
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, 1, queue.DLQSize())
}

func TestQueueConcurrency(t *testing.T) {
	config := DefaultConfig()
	config.RetryDelay = 10 * time.Millisecond
	queue := NewQueue[testSignal](config)

	ctx := context.Background()
	producers := 10
	perProducer := 10

	var wg sync.WaitGroup
	wg.Add(producers * 2)

	var consumed int
	var mu sync.Mutex

	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				message, err := queue.Consume(ctx)
				if err != nil {
					t.Errorf("consume failed: %v", err)
					continue
				}
				assert.NoError(t, message.Ack())
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < producers; i++ {
		go func(producerID int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				payload := testSignal{
					ID:        fmt.Sprintf("p%d-m%d", producerID, j),
					ContextID: fmt.Sprintf("tab-%d", producerID),
					Sequence:  j,
				}
				if err := queue.Publish(ctx, &payload); err != nil {
					t.Errorf("publish failed: %v", err)
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("test timed out")
	}

	assert.Equal(t, producers*perProducer, consumed)
	assert.Equal(t, 0, queue.Size())
}

func TestQueueContextCancellation(t *testing.T) {
	queue := NewQueue[testSignal](DefaultConfig())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	payload := testSignal{ID: "sig"}
	assert.Error(t, queue.Publish(cancelled, &payload))

	ctxWithTimeout, cancelTimeout := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelTimeout()
	_, err := queue.Consume(ctxWithTimeout)
	assert.Error(t, err)

	// the queue stays usable after a cancelled operation
	ctx := context.Background()
	assert.NoError(t, queue.Publish(ctx, &payload))
	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, message)
}
