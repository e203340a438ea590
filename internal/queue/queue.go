// Package queue carries delivery tasks from the dispatch manager to the
// delivery workers.
//
// Every implementation is at-least-once. A received message stays hidden
// from other consumers for the visibility timeout. Ack deletes it, Nack makes
// it visible again right away, and a message that is neither acked nor
// nacked in time is redelivered. There is no terminal failed state and no
// backoff: dead-lettering is left to the backend's own configuration.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"user-notifier/internal/model"
)

var (
	// ErrMessageNotInFlight is returned by Ack/Nack when the receipt is stale:
	// the message was already acked or its visibility timeout expired.
	ErrMessageNotInFlight = errors.New("message is not in flight")

	ErrPayloadMarshal = errors.New("failed to marshal task to JSON")
)

const (
	DefaultVisibilityTimeout = 30 * time.Second
	DefaultPollTimeout       = 5 * time.Second
)

// Producer enqueues delivery tasks.
type Producer interface {
	Enqueue(ctx context.Context, task model.DeliveryTask) error
}

// Consumer hands out one message at a time.
type Consumer interface {
	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context) (*Message, error)
	Ack(ctx context.Context, msg *Message) error
	Nack(ctx context.Context, msg *Message) error
}

// Queue is both ends of a work queue.
type Queue interface {
	Producer
	Consumer
}

// Message is one received delivery. Body holds exactly one JSON encoded task.
type Message struct {
	ID           string
	Body         []byte
	ReceiveCount int

	receipt string
}

type options struct {
	visibility  time.Duration
	pollTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a queue implementation.
type Option func(*options)

// WithVisibilityTimeout sets how long a received message stays hidden.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.visibility = d
		}
	}
}

// WithPollTimeout bounds a single blocking poll against the backend.
// Receive keeps polling until ctx is done.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		visibility:  DefaultVisibilityTimeout,
		pollTimeout: DefaultPollTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func marshalTask(task model.DeliveryTask) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, errors.Join(ErrPayloadMarshal, err)
	}
	return data, nil
}

// MemoryQueue is a channel-based queue with visibility timers.
// Used for tests and single-process runs.
type MemoryQueue struct {
	ch         chan Message
	visibility time.Duration

	mu       sync.Mutex
	inflight map[string]*time.Timer
}

func NewMemoryQueue(size int, opts ...Option) *MemoryQueue {
	o := newOptions(opts)
	return &MemoryQueue{
		ch:         make(chan Message, size),
		visibility: o.visibility,
		inflight:   make(map[string]*time.Timer),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task model.DeliveryTask) error {
	data, err := marshalTask(task)
	if err != nil {
		return err
	}

	select {
	case q.ch <- Message{ID: uuid.NewString(), Body: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-q.ch:
		msg.ReceiveCount++
		msg.receipt = uuid.NewString()

		q.mu.Lock()
		q.inflight[msg.receipt] = time.AfterFunc(q.visibility, func() {
			// Visibility timeout expired without an ack
			if q.take(msg.receipt) {
				q.ch <- msg
			}
		})
		q.mu.Unlock()

		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(_ context.Context, msg *Message) error {
	if !q.take(msg.receipt) {
		return ErrMessageNotInFlight
	}
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, msg *Message) error {
	if !q.take(msg.receipt) {
		return ErrMessageNotInFlight
	}

	redelivered := *msg
	redelivered.receipt = ""
	select {
	case q.ch <- redelivered:
	default:
		// Buffer is full; hand off so the message is never dropped
		go func() { q.ch <- redelivered }()
	}
	return nil
}

// Len reports the number of visible messages.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// take removes the receipt from the in-flight set, reporting whether it was there.
func (q *MemoryQueue) take(receipt string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.inflight[receipt]
	if !ok {
		return false
	}
	t.Stop()
	delete(q.inflight, receipt)
	return true
}
