// Package events is the in-process domain event bus of the assignment engine.
//
// The assignment service publishes an Event after its write has been
// committed. Every subscriber owns an unbounded FIFO queue drained by a
// single goroutine, so a slow or failing subscriber never blocks the
// publisher or its siblings, and events reach each subscriber in publish
// order. Failed handlers are retried with exponential backoff; events that
// still fail are logged and counted, never re-queued.
//
// Queues live in memory. Events still queued when the process dies are lost;
// the event document remains the source of truth.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/metrics"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Type represents the type of domain event
type Type string

const (
	AssignmentCreated       Type = "assignment.created"
	AssignmentCancelled     Type = "assignment.cancelled"
	AssignmentStatusChanged Type = "assignment.status_changed"
)

// Event carries the snapshot subscribers need, so none of them has to read
// the event document back.
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time

	EventID    primitive.ObjectID
	EventTitle string
	EventDate  time.Time

	VolunteerID   primitive.ObjectID
	VolunteerName string
	AssignmentID  primitive.ObjectID
	AssignedAt    time.Time

	Status         string
	PreviousStatus string
	Reason         string

	// barrier is closed once the subscriber reaches it; see Flush.
	barrier chan struct{}
}

// Handler consumes one event. Returning an *apperrors.Error whose code is
// not retryable stops the retries for that event.
type Handler func(ctx context.Context, e Event) error

type Config struct {
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          zerolog.Logger
}

// Bus fans published events out to named subscribers.
type Bus struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	subs   []*subscription
	closed bool

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type subscription struct {
	name    string
	handler Handler
	wake    chan struct{}

	mu    sync.Mutex
	queue []Event
}

func NewBus(cfg Config) *Bus {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "events").Logger(),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe registers h under name and starts its worker. Events published
// before the call are not delivered to it.
func (b *Bus) Subscribe(name string, h Handler) {
	s := &subscription{name: name, handler: h, wake: make(chan struct{}, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.subs = append(b.subs, s)
	b.wg.Add(1)
	go b.run(s)
}

// Publish enqueues e for every subscriber and returns immediately.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.log.Warn().Str("type", string(e.Type)).Str("event_id", e.EventID.Hex()).Msg("Bus closed, dropping domain event")
		return
	}
	for _, s := range b.subs {
		s.push(e)
	}
	metrics.DomainEventsPublished.WithLabelValues(string(e.Type)).Inc()
}

// Flush blocks until every subscriber has handled everything published
// before the call.
func (b *Bus) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bus closed")
	}
	barriers := make([]chan struct{}, 0, len(b.subs))
	for _, s := range b.subs {
		ch := make(chan struct{})
		s.push(Event{barrier: ch})
		barriers = append(barriers, ch)
	}
	b.mu.Unlock()

	for _, ch := range barriers {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown stops accepting events and drains the queues. If ctx expires
// first, in-flight retries are abandoned.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	b.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

func (s *subscription) push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	depth := len(s.queue)
	s.mu.Unlock()

	metrics.SubscriberQueueDepth.WithLabelValues(s.name).Set(float64(depth))
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	e := s.queue[0]
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	metrics.SubscriberQueueDepth.WithLabelValues(s.name).Set(float64(len(s.queue)))
	return e, true
}

func (b *Bus) run(s *subscription) {
	defer b.wg.Done()
	for {
		if e, ok := s.pop(); ok {
			b.deliver(s, e)
			continue
		}
		select {
		case <-s.wake:
		case <-b.done:
			// No pushes happen after done is closed.
			for e, ok := s.pop(); ok; e, ok = s.pop() {
				b.deliver(s, e)
			}
			return
		}
	}
}

func (b *Bus) deliver(s *subscription, e Event) {
	if e.barrier != nil {
		close(e.barrier)
		return
	}

	log := b.log.With().
		Str("subscriber", s.name).
		Str("type", string(e.Type)).
		Str("event_id", e.EventID.Hex()).
		Str("volunteer_id", e.VolunteerID.Hex()).
		Logger()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = b.cfg.InitialInterval
	expo.MaxInterval = b.cfg.MaxInterval

	attempt := 0
	_, err := backoff.Retry(b.ctx, func() (struct{}, error) {
		attempt++
		err := safeHandle(b.ctx, s.handler, e)
		if err == nil {
			return struct{}{}, nil
		}
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && !appErr.Code.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("Domain event handler failed, retrying")
		return struct{}{}, err
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(b.cfg.MaxRetries),
	)
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues(s.name).Inc()
		log.Error().Err(err).Int("attempts", attempt).Msg("Domain event handler gave up")
	}
}

func safeHandle(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}
