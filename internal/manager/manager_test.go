package manager_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"user-notifier/internal/manager"
	"user-notifier/internal/model"
	"user-notifier/internal/store"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Enqueue(ctx context.Context, task model.DeliveryTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type failingStore struct {
	getErr error
	putErr error
	prefs  *model.UserPreferences
}

func (s *failingStore) Get(_ context.Context, _ string) (*model.UserPreferences, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	p := *s.prefs
	return &p, nil
}

func (s *failingStore) Put(_ context.Context, _ *model.UserPreferences) error {
	return s.putErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func u1() model.UserPreferences {
	return model.UserPreferences{
		UserID: "u1",
		Email:  "a@b.com",
		Phone:  "+1555",
		Subscriptions: model.Subscriptions{
			Email:    true,
			SMS:      true,
			WhatsApp: false,
		},
	}
}

func TestNotify_FansOutToSubscribedChannels(t *testing.T) {
	t.Parallel()

	q := new(MockProducer)
	defer q.AssertExpectations(t)

	q.On("Enqueue", mock.Anything, model.DeliveryTask{
		Channel: model.ChannelEmail, Recipient: "a@b.com", Text: "Order shipped", Subject: "Update",
	}).Return(nil).Once()
	q.On("Enqueue", mock.Anything, model.DeliveryTask{
		Channel: model.ChannelSMS, Recipient: "+1555", Text: "Order shipped",
	}).Return(nil).Once()

	m := manager.New(store.NewMemoryStore(u1()), q, manager.WithLogger(quietLogger()))
	resp, err := m.Notify(context.Background(), "u1", model.NotificationRequest{
		Type:    "email",
		To:      "someone-else@example.com",
		Text:    "Order shipped",
		Subject: "Update",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Response{StatusCode: 200, Body: "Success"}, resp)
	q.AssertNumberOfCalls(t, "Enqueue", 2)
}

func TestNotify_EmailOnly(t *testing.T) {
	t.Parallel()

	q := new(MockProducer)
	defer q.AssertExpectations(t)
	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task model.DeliveryTask) bool {
		return task.Channel == model.ChannelEmail
	})).Return(nil).Once()

	prefs := u1()
	prefs.Subscriptions.SMS = false
	m := manager.New(store.NewMemoryStore(prefs), q, manager.WithLogger(quietLogger()))

	resp, err := m.Notify(context.Background(), "u1", model.NotificationRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.Success(), resp)
	q.AssertNumberOfCalls(t, "Enqueue", 1)
}

func TestNotify_NoContactFields(t *testing.T) {
	t.Parallel()

	q := new(MockProducer)
	prefs := model.UserPreferences{
		UserID:        "u2",
		Subscriptions: model.Subscriptions{Email: true, SMS: true, WhatsApp: true},
	}
	m := manager.New(store.NewMemoryStore(prefs), q, manager.WithLogger(quietLogger()))

	resp, err := m.Notify(context.Background(), "u2", model.NotificationRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.Success(), resp)
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestNotify_UnknownUser(t *testing.T) {
	t.Parallel()

	q := new(MockProducer)
	m := manager.New(store.NewMemoryStore(), q, manager.WithLogger(quietLogger()))

	resp, err := m.Notify(context.Background(), "ghost", model.NotificationRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.Response{StatusCode: 404, Body: "Not found"}, resp)
	q.AssertNumberOfCalls(t, "Enqueue", 0)
}

func TestNotify_EnqueueFailureIsFailFast(t *testing.T) {
	t.Parallel()

	boom := errors.New("queue down")
	q := new(MockProducer)
	defer q.AssertExpectations(t)
	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task model.DeliveryTask) bool {
		return task.Channel == model.ChannelEmail
	})).Return(nil).Once()
	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task model.DeliveryTask) bool {
		return task.Channel == model.ChannelSMS
	})).Return(boom).Once()

	prefs := u1()
	prefs.Subscriptions.WhatsApp = true
	m := manager.New(store.NewMemoryStore(prefs), q, manager.WithLogger(quietLogger()))

	_, err := m.Notify(context.Background(), "u1", model.NotificationRequest{Text: "hi"})
	assert.ErrorIs(t, err, manager.ErrUpstream)
	assert.ErrorIs(t, err, boom)
	// WhatsApp is never attempted after the SMS failure
	q.AssertNumberOfCalls(t, "Enqueue", 2)
}

func TestNotify_ConcurrentFanOutAttemptsAll(t *testing.T) {
	t.Parallel()

	boom := errors.New("queue down")
	q := new(MockProducer)
	defer q.AssertExpectations(t)
	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task model.DeliveryTask) bool {
		return task.Channel == model.ChannelSMS
	})).Return(boom).Once()
	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task model.DeliveryTask) bool {
		return task.Channel != model.ChannelSMS
	})).Return(nil).Twice()

	prefs := u1()
	prefs.Subscriptions.WhatsApp = true
	m := manager.New(store.NewMemoryStore(prefs), q,
		manager.WithLogger(quietLogger()),
		manager.WithConcurrentFanOut())

	_, err := m.Notify(context.Background(), "u1", model.NotificationRequest{Text: "hi"})
	assert.ErrorIs(t, err, boom)
	q.AssertNumberOfCalls(t, "Enqueue", 3)
}

func TestNotify_StoreFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("table missing")
	q := new(MockProducer)
	m := manager.New(&failingStore{getErr: boom}, q, manager.WithLogger(quietLogger()))

	_, err := m.Notify(context.Background(), "u1", model.NotificationRequest{Text: "hi"})
	assert.ErrorIs(t, err, manager.ErrUpstream)
	assert.ErrorIs(t, err, boom)
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestPlan(t *testing.T) {
	t.Parallel()

	prefs := u1()
	prefs.Subscriptions.WhatsApp = true

	tasks := manager.Plan(&prefs, model.NotificationRequest{Text: "hello", Subject: "Hi"})
	require.Len(t, tasks, 3)
	assert.Equal(t, model.ChannelEmail, tasks[0].Channel)
	assert.Equal(t, "Hi", tasks[0].Subject)
	assert.Equal(t, model.ChannelSMS, tasks[1].Channel)
	assert.Empty(t, tasks[1].Subject, "subject is email only")
	assert.Equal(t, model.DeliveryTask{Channel: model.ChannelWhatsApp, Recipient: "+1555", Text: "hello"}, tasks[2])
}

func TestSubscribe_PartialMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	prefs := model.UserPreferences{
		UserID:        "u1",
		Email:         "a@b.com",
		Phone:         "+1555",
		Subscriptions: model.Subscriptions{Email: true, WhatsApp: true},
	}
	s := store.NewMemoryStore(prefs)
	m := manager.New(s, new(MockProducer), manager.WithLogger(quietLogger()))

	resp, err := m.Subscribe(ctx, "u1", model.SubscriptionRequest{SMS: true})
	require.NoError(t, err)
	assert.Equal(t, model.Success(), resp)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Subscriptions{Email: true, SMS: true, WhatsApp: true}, got.Subscriptions)
	assert.Equal(t, "a@b.com", got.Email)
}

func TestUnsubscribe_PartialMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore(u1())
	m := manager.New(s, new(MockProducer), manager.WithLogger(quietLogger()))

	resp, err := m.Unsubscribe(ctx, "u1", model.SubscriptionRequest{Email: true})
	require.NoError(t, err)
	assert.Equal(t, model.Success(), resp)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Subscriptions.Email)
	assert.True(t, got.Subscriptions.SMS)
}

func TestSubscribe_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore(u1())
	m := manager.New(s, new(MockProducer), manager.WithLogger(quietLogger()))

	for range 2 {
		_, err := m.Subscribe(ctx, "u1", model.SubscriptionRequest{WhatsApp: true})
		require.NoError(t, err)
	}
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Subscriptions{Email: true, SMS: true, WhatsApp: true}, got.Subscriptions)
}

func TestSubscribe_UnknownUser(t *testing.T) {
	t.Parallel()

	m := manager.New(store.NewMemoryStore(), new(MockProducer), manager.WithLogger(quietLogger()))

	resp, err := m.Subscribe(context.Background(), "ghost", model.SubscriptionRequest{SMS: true})
	require.NoError(t, err)
	assert.Equal(t, model.NotFound(), resp)

	resp, err = m.Unsubscribe(context.Background(), "ghost", model.SubscriptionRequest{SMS: true})
	require.NoError(t, err)
	assert.Equal(t, model.NotFound(), resp)
}

func TestSubscribe_PutFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("conditional check failed")
	prefs := u1()
	m := manager.New(&failingStore{prefs: &prefs, putErr: boom}, new(MockProducer), manager.WithLogger(quietLogger()))

	_, err := m.Subscribe(context.Background(), "u1", model.SubscriptionRequest{SMS: true})
	assert.ErrorIs(t, err, manager.ErrUpstream)
	assert.ErrorIs(t, err, boom)
}

func TestUpdateContact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore(u1())
	m := manager.New(s, new(MockProducer), manager.WithLogger(quietLogger()))

	phone := "+1999"
	_, err := m.UpdateContact(ctx, "u1", model.ContactRequest{Phone: &phone})
	require.NoError(t, err)

	got, err := m.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "+1999", got.Phone)
	assert.Equal(t, "a@b.com", got.Email)
	assert.True(t, got.Subscriptions.Email)

	email := "new@b.com"
	_, err = m.UpdateContact(ctx, "u3", model.ContactRequest{Email: &email})
	require.NoError(t, err)

	created, err := m.Preferences(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, &model.UserPreferences{UserID: "u3", Email: "new@b.com"}, created)
}

func TestPreferences_NotFound(t *testing.T) {
	t.Parallel()

	m := manager.New(store.NewMemoryStore(), new(MockProducer), manager.WithLogger(quietLogger()))
	prefs, err := m.Preferences(context.Background(), "ghost")
	assert.Nil(t, prefs)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, manager.ErrUpstream)
}
