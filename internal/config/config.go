// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"user-notifier/internal/connect"
	"user-notifier/internal/transport"
	"user-notifier/internal/worker"
)

var (
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Backend driver names.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQS      = "sqs"

	EmailSMTP     = "smtp"
	EmailPostmark = "postmark"
	EmailLog      = "log"

	MessagesTwilio = "twilio"
	MessagesLog    = "log"
)

type App struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_SERVICE_NAME" envDefault:"user-notifier"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL"`
	LogFormat   string `env:"LOG_FORMAT"`
}

type Store struct {
	Driver           string `env:"STORE_DRIVER" envDefault:"memory"`
	RedisPrefix      string `env:"REDIS_STORE_PREFIX" envDefault:"notifier:prefs:"`
	DynamoDBTable    string `env:"DYNAMODB_TABLE" envDefault:"UserPreferences"`
	MongoCollection  string `env:"MONGODB_COLLECTION" envDefault:"user_preferences"`
	MigrateOnStartup bool   `env:"PG_MIGRATE_ON_STARTUP" envDefault:"true"`
}

type Queue struct {
	Driver            string        `env:"QUEUE_DRIVER" envDefault:"memory"`
	MemorySize        int           `env:"QUEUE_MEMORY_SIZE" envDefault:"1024"`
	RedisKey          string        `env:"REDIS_QUEUE_KEY" envDefault:"notification_queue"`
	SQSQueueURL       string        `env:"SQS_QUEUE_URL"`
	VisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" envDefault:"30s"`
	PollTimeout       time.Duration `env:"QUEUE_POLL_TIMEOUT" envDefault:"5s"`
	ReaperInterval    time.Duration `env:"QUEUE_REAPER_INTERVAL" envDefault:"10s"`
	WorkerPoolSize    int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	ConcurrentFanOut  bool          `env:"DISPATCH_CONCURRENT_FANOUT" envDefault:"false"`
}

type Transport struct {
	Email    string `env:"EMAIL_TRANSPORT" envDefault:"log"`
	Messages string `env:"MESSAGE_TRANSPORT" envDefault:"log"`
}

// Config is the full service configuration.
type Config struct {
	App       App
	Store     Store
	Queue     Queue
	Transport Transport
	Senders   worker.Senders

	Redis    connect.RedisConfig
	Postgres connect.PostgresConfig
	Mongo    connect.MongoConfig
	AWS      connect.AWSConfig

	SMTP     transport.SMTPConfig
	Postmark transport.PostmarkConfig
	Twilio   transport.TwilioConfig
}

// Load reads the optional .env files (default ".env") and parses the
// environment into a Config. Variables already set in the environment win
// over values from the files.
func Load(envFiles ...string) (*Config, error) {
	// Missing files are fine
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown drivers and missing backend settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory, DriverRedis, DriverDynamoDB, DriverPostgres, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Queue.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQS:
		if c.Queue.SQSQueueURL == "" {
			errs = append(errs, errors.New("SQS_QUEUE_URL is required for the sqs queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QUEUE_DRIVER %q", c.Queue.Driver))
	}

	switch c.Transport.Email {
	case EmailSMTP, EmailPostmark, EmailLog:
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_TRANSPORT %q", c.Transport.Email))
	}

	switch c.Transport.Messages {
	case MessagesTwilio, MessagesLog:
	default:
		errs = append(errs, fmt.Errorf("unknown MESSAGE_TRANSPORT %q", c.Transport.Messages))
	}

	if c.Store.Driver == DriverPostgres && c.Postgres.ConnectionString == "" {
		errs = append(errs, errors.New("PG_CONN_URL is required for the postgres store"))
	}
	if c.Store.Driver == DriverMongo && c.Mongo.ConnectionURL == "" {
		errs = append(errs, errors.New("MONGODB_URL is required for the mongo store"))
	}
	if c.Queue.WorkerPoolSize < 1 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Store.Driver == DriverRedis || c.Queue.Driver == DriverRedis
}

// UsesAWS reports whether any component needs AWS credentials.
func (c *Config) UsesAWS() bool {
	return c.Store.Driver == DriverDynamoDB || c.Queue.Driver == DriverSQS
}
