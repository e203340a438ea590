package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"user-notifier/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrFailedToApplyMigrations = errors.New("failed to apply migrations")

// PostgresDB is the part of *pgxpool.Pool the store uses.
type PostgresDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore keeps preferences in the user_preferences table.
type PostgresStore struct {
	db PostgresDB
}

func NewPostgresStore(db PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	selectPreferences = `SELECT user_id, email, phone, email_enabled, sms_enabled, whatsapp_enabled
FROM user_preferences WHERE user_id = $1`

	upsertPreferences = `INSERT INTO user_preferences (user_id, email, phone, email_enabled, sms_enabled, whatsapp_enabled, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (user_id) DO UPDATE SET
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	email_enabled = EXCLUDED.email_enabled,
	sms_enabled = EXCLUDED.sms_enabled,
	whatsapp_enabled = EXCLUDED.whatsapp_enabled,
	updated_at = EXCLUDED.updated_at`
)

func (s *PostgresStore) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	var p model.UserPreferences
	err := s.db.QueryRow(ctx, selectPreferences, userID).Scan(
		&p.UserID, &p.Email, &p.Phone,
		&p.Subscriptions.Email, &p.Subscriptions.SMS, &p.Subscriptions.WhatsApp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %q: %w", userID, err)
	}
	return &p, nil
}

func (s *PostgresStore) Put(ctx context.Context, prefs *model.UserPreferences) error {
	if err := validate(prefs); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, upsertPreferences,
		prefs.UserID, prefs.Email, prefs.Phone,
		prefs.Subscriptions.Email, prefs.Subscriptions.SMS, prefs.Subscriptions.WhatsApp,
	)
	if err != nil {
		return fmt.Errorf("postgres put %q: %w", prefs.UserID, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Migrate applies the embedded schema migrations with goose.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// gooseLogger routes goose's Printf-style output through slog.
type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...))
}
