// Package app assembles stores, queues and transports from configuration
// and runs the API and worker processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"user-notifier/internal/config"
	"user-notifier/internal/connect"
	"user-notifier/internal/handler"
	"user-notifier/internal/manager"
	"user-notifier/internal/metrics"
	"user-notifier/internal/queue"
	"user-notifier/internal/store"
	"user-notifier/internal/transport"
	"user-notifier/internal/worker"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// App owns the backend handles shared by the API and the worker pool.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    store.PreferenceStore
	Queue    queue.Queue

	redisQueue *queue.RedisQueue
	checks     []handler.HealthCheck
	closers    []func(context.Context) error
}

// New connects every backend the configuration selects.
// Call Close when done, also after an error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		cfg:      cfg,
		logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}

	var (
		rdb    *redis.Client
		awsCfg aws.Config
		err    error
	)
	if cfg.UsesRedis() {
		if rdb, err = connect.Redis(ctx, cfg.Redis); err != nil {
			return a, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	}
	if cfg.UsesAWS() {
		if awsCfg, err = connect.AWS(ctx, cfg.AWS); err != nil {
			return a, err
		}
	}

	if a.Store, err = a.openStore(ctx, rdb, awsCfg); err != nil {
		return a, err
	}
	if a.Queue, err = a.openQueue(rdb, awsCfg); err != nil {
		return a, err
	}

	for _, c := range []any{a.Store, a.Queue} {
		if p, ok := c.(pinger); ok {
			a.checks = append(a.checks, p.Ping)
		}
	}

	logger.InfoContext(ctx, "backends ready",
		slog.String("store", cfg.Store.Driver),
		slog.String("queue", cfg.Queue.Driver))
	return a, nil
}

func (a *App) openStore(ctx context.Context, rdb *redis.Client, awsCfg aws.Config) (store.PreferenceStore, error) {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case config.DriverRedis:
		return store.NewRedisStore(rdb, cfg.Store.RedisPrefix), nil

	case config.DriverDynamoDB:
		return store.NewDynamoStoreFromConfig(awsCfg, cfg.Store.DynamoDBTable)

	case config.DriverPostgres:
		pool, err := connect.Postgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		if cfg.Store.MigrateOnStartup {
			if err := store.Migrate(ctx, pool, a.logger); err != nil {
				return nil, err
			}
		}
		return store.NewPostgresStore(pool), nil

	case config.DriverMongo:
		db, err := connect.Mongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
		return store.NewMongoStoreFromDatabase(db, cfg.Store.MongoCollection), nil

	default:
		a.logger.Warn("using in-memory preference store, records are lost on restart")
		return store.NewMemoryStore(), nil
	}
}

func (a *App) openQueue(rdb *redis.Client, awsCfg aws.Config) (queue.Queue, error) {
	cfg := a.cfg.Queue
	opts := []queue.Option{
		queue.WithVisibilityTimeout(cfg.VisibilityTimeout),
		queue.WithPollTimeout(cfg.PollTimeout),
		queue.WithLogger(a.logger),
	}

	switch cfg.Driver {
	case config.DriverRedis:
		a.redisQueue = queue.NewRedisQueue(rdb, cfg.RedisKey, opts...)
		return a.redisQueue, nil
	case config.DriverSQS:
		return queue.NewSQSQueueFromConfig(awsCfg, cfg.SQSQueueURL, opts...)
	default:
		a.logger.Warn("using in-memory queue, api and worker must run in the same process")
		return queue.NewMemoryQueue(cfg.MemorySize, opts...), nil
	}
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Manager builds the dispatch manager over the app's store and queue.
func (a *App) Manager() *manager.Manager {
	opts := []manager.Option{
		manager.WithLogger(a.logger),
		manager.WithMetrics(a.Metrics),
	}
	if a.cfg.Queue.ConcurrentFanOut {
		opts = append(opts, manager.WithConcurrentFanOut())
	}
	return manager.New(a.Store, a.Queue, opts...)
}

// Deliverer builds the worker's transports from configuration.
func (a *App) Deliverer() (*worker.Deliverer, error) {
	var (
		email    transport.EmailSender
		messages transport.MessageSender
		err      error
	)
	logSender := transport.NewLogSender(a.logger)

	switch a.cfg.Transport.Email {
	case config.EmailSMTP:
		email, err = transport.NewSMTPSender(a.cfg.SMTP)
	case config.EmailPostmark:
		email, err = transport.NewPostmarkSender(a.cfg.Postmark)
	default:
		email = logSender
	}
	if err != nil {
		return nil, fmt.Errorf("email transport: %w", err)
	}

	switch a.cfg.Transport.Messages {
	case config.MessagesTwilio:
		messages, err = transport.NewTwilioSender(a.cfg.Twilio)
	default:
		messages = logSender
	}
	if err != nil {
		return nil, fmt.Errorf("message transport: %w", err)
	}

	return worker.NewDeliverer(email, messages, a.cfg.Senders,
		worker.WithDelivererLogger(a.logger),
		worker.WithDelivererMetrics(a.Metrics)), nil
}

// Run starts the API server, the worker pool, or both, and blocks until ctx
// is cancelled or one of them fails.
func (a *App) Run(ctx context.Context, api, workers bool) error {
	var d *worker.Deliverer
	if workers {
		var err error
		if d, err = a.Deliverer(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if api {
		h := handler.NewNotifyHandler(a.Manager(), a.logger, a.Metrics)
		router := handler.NewRouter(h, a.Registry, a.logger, a.checks...)
		srv := handler.NewServer(a.cfg.App.HTTPAddr, router, a.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if workers {
		pool := worker.NewDispatcher(a.cfg.Queue.WorkerPoolSize, a.Queue, d, a.logger)
		g.Go(func() error { return pool.Run(ctx) })

		if a.redisQueue != nil {
			g.Go(func() error { return a.redisQueue.RunReaper(ctx, a.cfg.Queue.ReaperInterval) })
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
