package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"user-notifier/internal/model"
)

// DefaultRedisKey is the list holding visible messages.
const DefaultRedisKey = "notification_queue"

// RedisQueue is a reliable queue on Redis lists.
//
// Visible messages live in <key>. Receive moves one atomically into
// <key>:processing and records its visibility deadline in the sorted set
// <key>:inflight. Ack removes it from both. Nack and Requeue move it back
// to <key>. Cluster deployments need a hash-tagged key such as
// "{notifications}" so all three keys share a slot.
type RedisQueue struct {
	client     redis.UniversalClient
	pending    string
	processing string
	deadlines  string

	visibility  time.Duration
	pollTimeout time.Duration
	logger      *slog.Logger
}

// envelope is the stored form of a message.
type envelope struct {
	ID       string          `json:"id"`
	Task     json.RawMessage `json:"task"`
	Attempts int             `json:"attempts"`
}

func NewRedisQueue(client redis.UniversalClient, key string, opts ...Option) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	o := newOptions(opts)
	return &RedisQueue{
		client:      client,
		pending:     key,
		processing:  key + ":processing",
		deadlines:   key + ":inflight",
		visibility:  o.visibility,
		pollTimeout: o.pollTimeout,
		logger:      o.logger,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task model.DeliveryTask) error {
	data, err := marshalTask(task)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope{ID: uuid.NewString(), Task: data})
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}
	// LPUSH to the head, consumers pop from the tail
	return q.client.LPush(ctx, q.pending, raw).Err()
}

func (q *RedisQueue) Receive(ctx context.Context) (*Message, error) {
	for {
		raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis receive: %w", err)
		}

		deadline := time.Now().Add(q.visibility)
		if err := q.client.ZAdd(ctx, q.deadlines, redis.Z{Score: score(deadline), Member: raw}).Err(); err != nil {
			// The reaper adopts messages without a deadline
			q.logger.WarnContext(ctx, "failed to record visibility deadline", slog.String("error", err.Error()))
		}

		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			q.logger.ErrorContext(ctx, "dropping undecodable queue entry",
				slog.String("error", err.Error()),
				slog.String("raw", raw))
			_, _ = q.remove(ctx, raw)
			continue
		}

		return &Message{
			ID:           env.ID,
			Body:         env.Task,
			ReceiveCount: env.Attempts + 1,
			receipt:      raw,
		}, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, msg *Message) error {
	removed, err := q.remove(ctx, msg.receipt)
	if err != nil {
		return err
	}
	if !removed {
		return ErrMessageNotInFlight
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, msg *Message) error {
	moved, err := q.requeue(ctx, msg.receipt)
	if err != nil {
		return err
	}
	if !moved {
		return ErrMessageNotInFlight
	}
	return nil
}

// Requeue returns every in-flight message whose visibility deadline has
// passed to the visible list. It is safe to run from several processes.
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	if err := q.adoptOrphans(ctx); err != nil {
		return 0, err
	}

	expired, err := q.client.ZRangeByScore(ctx, q.deadlines, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(score(time.Now()), 'f', 0, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list expired: %w", err)
	}

	count := 0
	for _, raw := range expired {
		moved, err := q.requeue(ctx, raw)
		if err != nil {
			return count, err
		}
		if moved {
			count++
		}
	}
	return count, nil
}

// RunReaper calls Requeue every interval until ctx is done.
func (q *RedisQueue) RunReaper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := q.Requeue(ctx)
			if err != nil && ctx.Err() == nil {
				q.logger.ErrorContext(ctx, "requeue expired messages", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				q.logger.InfoContext(ctx, "requeued expired messages", slog.Int("count", n))
			}
		}
	}
}

// adoptScript gives a deadline to every processing entry that lacks one,
// e.g. when a consumer died between BLMOVE and ZADD. Reading the list and
// writing the deadlines happen in one step so an entry acked in between
// cannot pick up a deadline.
var adoptScript = redis.NewScript(`
local entries = redis.call('LRANGE', KEYS[1], 0, -1)
local adopted = 0
for _, raw in ipairs(entries) do
	adopted = adopted + redis.call('ZADD', KEYS[2], 'NX', ARGV[1], raw)
end
return adopted
`)

// requeueScript moves one in-flight entry back to the visible list. The
// caller that removes the deadline owns the move, and nothing is pushed
// unless the entry was still in the processing list.
var requeueScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
if redis.call('LREM', KEYS[2], 1, ARGV[1]) == 0 then
	return 0
end
redis.call('LPUSH', KEYS[3], ARGV[2])
return 1
`)

func (q *RedisQueue) adoptOrphans(ctx context.Context) error {
	deadline := strconv.FormatFloat(score(time.Now().Add(q.visibility)), 'f', 0, 64)
	err := adoptScript.Run(ctx, q.client, []string{q.processing, q.deadlines}, deadline).Err()
	if err != nil {
		return fmt.Errorf("redis adopt orphans: %w", err)
	}
	return nil
}

func (q *RedisQueue) remove(ctx context.Context, raw string) (bool, error) {
	var lrem *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		lrem = p.LRem(ctx, q.processing, 1, raw)
		p.ZRem(ctx, q.deadlines, raw)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis ack: %w", err)
	}
	return lrem.Val() > 0, nil
}

func (q *RedisQueue) requeue(ctx context.Context, raw string) (bool, error) {
	next := raw
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil {
		env.Attempts++
		if b, err := json.Marshal(env); err == nil {
			next = string(b)
		}
	}

	moved, err := requeueScript.Run(ctx, q.client,
		[]string{q.deadlines, q.processing, q.pending}, raw, next).Int()
	if err != nil {
		return false, fmt.Errorf("redis requeue: %w", err)
	}
	return moved == 1, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
