package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-notifier/internal/model"
	"user-notifier/internal/store"
)

func newTestRedisStore(t *testing.T, prefix string) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedisStore(client, prefix), mr
}

func TestRedisStore_GetNotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t, "")
	prefs, err := s.Get(context.Background(), "missing")
	assert.Nil(t, prefs)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStore_PutGet(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, "")
	ctx := context.Background()

	in := &model.UserPreferences{
		UserID:        "u1",
		Email:         "a@b.com",
		Phone:         "+1555",
		Subscriptions: model.Subscriptions{Email: true, WhatsApp: true},
	}
	require.NoError(t, s.Put(ctx, in))
	assert.True(t, mr.Exists(store.DefaultRedisKeyPrefix+"u1"))

	out, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	in.Subscriptions.SMS = true
	require.NoError(t, s.Put(ctx, in))
	out, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, out.Subscriptions.SMS)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, "tenant-a:")
	require.NoError(t, s.Put(context.Background(), &model.UserPreferences{UserID: "u1"}))

	assert.True(t, mr.Exists("tenant-a:u1"))
	assert.False(t, mr.Exists(store.DefaultRedisKeyPrefix+"u1"))
}

func TestRedisStore_PutInvalid(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, "")
	assert.ErrorIs(t, s.Put(context.Background(), &model.UserPreferences{}), store.ErrInvalidRecord)
	assert.ErrorIs(t, s.Put(context.Background(), nil), store.ErrInvalidRecord)
	assert.Empty(t, mr.Keys())
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, "")
	require.NoError(t, mr.Set(store.DefaultRedisKeyPrefix+"u1", "{not json"))

	prefs, err := s.Get(context.Background(), "u1")
	assert.Nil(t, prefs)
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStore_Ping(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, "")
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
