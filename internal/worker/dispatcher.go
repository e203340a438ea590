package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"user-notifier/internal/queue"
)

// Handler processes one message body. A nil error acks the message.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

// receiveBackoff is the pause after a failed Receive before polling again.
var receiveBackoff = time.Second

// Dispatcher runs a fixed pool of workers draining a queue.
type Dispatcher struct {
	WorkerPoolSize int
	Queue          queue.Consumer
	Handler        Handler
	Logger         *slog.Logger
}

func NewDispatcher(poolSize int, q queue.Consumer, h Handler, logger *slog.Logger) *Dispatcher {
	if poolSize < 1 {
		poolSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		WorkerPoolSize: poolSize,
		Queue:          q,
		Handler:        h,
		Logger:         logger,
	}
}

// Run blocks until ctx is done. A message being handled when ctx ends is
// finished before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.WorkerPoolSize; i++ {
		g.Go(func() error {
			d.worker(ctx, i)
			return nil
		})
	}
	d.Logger.InfoContext(ctx, "dispatcher started", slog.Int("workers", d.WorkerPoolSize))
	return g.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	log := d.Logger.With(slog.Int("worker", id))
	for {
		msg, err := d.Queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.ErrorContext(ctx, "receive failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		d.process(ctx, log, msg)
	}
}

func (d *Dispatcher) process(ctx context.Context, log *slog.Logger, msg *queue.Message) {
	// Settle the message even when shutdown cancelled ctx mid-delivery.
	settleCtx := context.WithoutCancel(ctx)

	if err := d.Handler.Handle(ctx, msg.Body); err != nil {
		log.WarnContext(ctx, "delivery failed, releasing message",
			slog.String("message_id", msg.ID),
			slog.Int("receive_count", msg.ReceiveCount),
			slog.String("error", err.Error()))
		if nackErr := d.Queue.Nack(settleCtx, msg); nackErr != nil {
			d.logSettleError(ctx, log, "nack", msg, nackErr)
		}
		return
	}

	if err := d.Queue.Ack(settleCtx, msg); err != nil {
		d.logSettleError(ctx, log, "ack", msg, err)
	}
}

func (d *Dispatcher) logSettleError(ctx context.Context, log *slog.Logger, op string, msg *queue.Message, err error) {
	// A stale receipt means the visibility timeout already expired and the
	// message is back in the queue; it will be delivered again.
	level := slog.LevelError
	if errors.Is(err, queue.ErrMessageNotInFlight) {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, op+" failed",
		slog.String("message_id", msg.ID),
		slog.String("error", err.Error()))
}
