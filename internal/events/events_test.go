package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestBus(retries uint) *Bus {
	return NewBus(Config{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Logger:          logger.Nop(),
	})
}

func flush(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Flush(ctx))
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := newTestBus(1)
	defer b.Shutdown(context.Background())

	var (
		mu  sync.Mutex
		got []string
	)
	b.Subscribe("recorder", func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Reason)
		return nil
	})

	want := []string{"1", "2", "3", "4", "5"}
	for _, r := range want {
		b.Publish(Event{Type: AssignmentCreated, Reason: r})
	}
	flush(t, b)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestPublishFillsIdentity(t *testing.T) {
	b := newTestBus(1)
	defer b.Shutdown(context.Background())

	seen := make(chan Event, 1)
	b.Subscribe("watcher", func(_ context.Context, e Event) error {
		seen <- e
		return nil
	})
	b.Publish(Event{Type: AssignmentCancelled, EventID: primitive.NewObjectID()})

	select {
	case e := <-seen:
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newTestBus(1)
	defer b.Shutdown(context.Background())

	release := make(chan struct{})
	b.Subscribe("slow", func(context.Context, Event) error {
		<-release
		return nil
	})
	fast := make(chan struct{}, 1)
	b.Subscribe("fast", func(context.Context, Event) error {
		fast <- struct{}{}
		return nil
	})

	b.Publish(Event{Type: AssignmentCreated})
	select {
	case <-fast:
	case <-time.After(5 * time.Second):
		t.Fatal("fast subscriber was blocked")
	}
	close(release)
}

func TestHandlerRetriedUntilSuccess(t *testing.T) {
	b := newTestBus(5)
	defer b.Shutdown(context.Background())

	var calls atomic.Int32
	b.Subscribe("flaky", func(context.Context, Event) error {
		if calls.Add(1) < 3 {
			return apperrors.ErrStoreUnavailable
		}
		return nil
	})
	b.Publish(Event{Type: AssignmentCreated})
	flush(t, b)

	assert.Equal(t, int32(3), calls.Load())
}

func TestHandlerGivesUpAfterMaxRetries(t *testing.T) {
	b := newTestBus(3)
	defer b.Shutdown(context.Background())

	var calls atomic.Int32
	b.Subscribe("broken", func(context.Context, Event) error {
		calls.Add(1)
		return errors.New("still down")
	})
	b.Publish(Event{Type: AssignmentCreated})
	b.Publish(Event{Type: AssignmentCreated})
	flush(t, b)

	assert.Equal(t, int32(6), calls.Load())
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	b := newTestBus(5)
	defer b.Shutdown(context.Background())

	var calls atomic.Int32
	b.Subscribe("strict", func(context.Context, Event) error {
		calls.Add(1)
		return apperrors.ErrHistoryNotFound
	})
	b.Publish(Event{Type: AssignmentStatusChanged})
	flush(t, b)

	assert.Equal(t, int32(1), calls.Load())
}

func TestPanickingHandlerIsContained(t *testing.T) {
	b := newTestBus(1)
	defer b.Shutdown(context.Background())

	var after atomic.Int32
	b.Subscribe("panics", func(_ context.Context, e Event) error {
		if e.Reason == "boom" {
			panic("boom")
		}
		after.Add(1)
		return nil
	})
	b.Publish(Event{Reason: "boom"})
	b.Publish(Event{Reason: "ok"})
	flush(t, b)

	assert.Equal(t, int32(1), after.Load())
}

func TestShutdownDrainsQueues(t *testing.T) {
	b := newTestBus(1)

	var handled atomic.Int32
	b.Subscribe("counter", func(context.Context, Event) error {
		time.Sleep(time.Millisecond)
		handled.Add(1)
		return nil
	})
	for i := 0; i < 20; i++ {
		b.Publish(Event{Type: AssignmentCreated})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, int32(20), handled.Load())

	b.Publish(Event{Type: AssignmentCreated})
	assert.Equal(t, int32(20), handled.Load(), "publish after shutdown is dropped")
	assert.Error(t, b.Flush(context.Background()))
}
