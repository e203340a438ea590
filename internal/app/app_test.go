package app_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-notifier/internal/app"
	"user-notifier/internal/config"
	"user-notifier/internal/model"
	"user-notifier/internal/queue"
	"user-notifier/internal/store"
	"user-notifier/internal/worker"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func memoryConfig() *config.Config {
	return &config.Config{
		App:   config.App{HTTPAddr: "127.0.0.1:0"},
		Store: config.Store{Driver: config.DriverMemory},
		Queue: config.Queue{
			Driver:            config.DriverMemory,
			MemorySize:        16,
			VisibilityTimeout: time.Minute,
			WorkerPoolSize:    2,
		},
		Transport: config.Transport{Email: config.EmailLog, Messages: config.MessagesLog},
		Senders: worker.Senders{
			Email:    "noreply@example.com",
			SMS:      "+15550000001",
			WhatsApp: "+15550000002",
		},
	}
}

func TestNew_MemoryBackends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := app.New(ctx, memoryConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(ctx)) }()

	assert.IsType(t, &store.MemoryStore{}, a.Store)
	assert.IsType(t, &queue.MemoryQueue{}, a.Queue)
}

func TestDeliverer_RejectsIncompleteTransportConfig(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig()
	cfg.Transport.Messages = config.MessagesTwilio

	ctx := context.Background()
	a, err := app.New(ctx, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer func() { _ = a.Close(ctx) }()

	_, err = a.Deliverer()
	assert.Error(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, memoryConfig(), logger)
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	m := a.Manager()
	email, phone := "a@b.com", "+1555"
	_, err = m.UpdateContact(ctx, "u1", model.ContactRequest{Email: &email, Phone: &phone})
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, "u1", model.SubscriptionRequest{Email: true, WhatsApp: true})
	require.NoError(t, err)

	resp, err := m.Notify(ctx, "u1", model.NotificationRequest{Text: "Order shipped", Subject: "Update"})
	require.NoError(t, err)
	require.Equal(t, model.Success(), resp)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, false, true) }()

	require.Eventually(t, func() bool {
		out := logs.String()
		return strings.Contains(out, "email delivered to log") &&
			strings.Contains(out, "to=whatsapp:+1555")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.NotContains(t, logs.String(), "to=+1555 ", "sms was not subscribed")
}
