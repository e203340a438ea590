// Package manager decides which channels a notification goes out on and
// applies subscription changes to stored preferences.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"user-notifier/internal/metrics"
	"user-notifier/internal/model"
	"user-notifier/internal/queue"
	"user-notifier/internal/store"
)

// ErrUpstream marks failures of the preference store or the work queue.
var ErrUpstream = errors.New("upstream failure")

// Manager is the dispatch manager. It holds no per-request state and is safe
// for concurrent use as long as its store and queue are.
type Manager struct {
	store      store.PreferenceStore
	queue      queue.Producer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	concurrent bool
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithConcurrentFanOut enqueues the tasks of one notification in parallel.
// Every task is attempted even if another fails, and all failures are
// reported together. Without it tasks are enqueued in channel order and the
// first failure stops the rest.
func WithConcurrentFanOut() Option {
	return func(m *Manager) { m.concurrent = true }
}

func New(s store.PreferenceStore, q queue.Producer, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		queue:  q,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify enqueues one delivery task per channel the user is subscribed to
// and has a contact address for. The caller's To and Type are ignored.
//
// A failed enqueue fails the whole call, but tasks already enqueued stay
// enqueued.
func (m *Manager) Notify(ctx context.Context, userID string, req model.NotificationRequest) (model.Response, error) {
	prefs, err := m.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.NotFound(), nil
	}
	if err != nil {
		return model.Response{}, upstream("fetch preferences", err)
	}

	tasks := Plan(prefs, req)
	if m.concurrent {
		err = m.enqueueAll(ctx, tasks)
	} else {
		err = m.enqueueInOrder(ctx, tasks)
	}
	if err != nil {
		return model.Response{}, err
	}

	m.logger.InfoContext(ctx, "notification dispatched",
		slog.String("user_id", userID),
		slog.Int("tasks", len(tasks)))
	return model.Success(), nil
}

// Plan returns the delivery tasks for prefs in channel order.
// The recipient always comes from the stored contact fields.
func Plan(prefs *model.UserPreferences, req model.NotificationRequest) []model.DeliveryTask {
	var tasks []model.DeliveryTask
	for _, ch := range model.Channels {
		if !prefs.Addressable(ch) {
			continue
		}
		task := model.DeliveryTask{
			Channel:   ch,
			Recipient: prefs.Contact(ch),
			Text:      req.Text,
		}
		if ch == model.ChannelEmail {
			task.Subject = req.Subject
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func (m *Manager) enqueueInOrder(ctx context.Context, tasks []model.DeliveryTask) error {
	for _, task := range tasks {
		if err := m.queue.Enqueue(ctx, task); err != nil {
			return upstream(fmt.Sprintf("enqueue %s task", task.Channel), err)
		}
		m.metrics.TaskEnqueued(string(task.Channel))
	}
	return nil
}

func (m *Manager) enqueueAll(ctx context.Context, tasks []model.DeliveryTask) error {
	errs := make([]error, len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			if err := m.queue.Enqueue(ctx, task); err != nil {
				errs[i] = upstream(fmt.Sprintf("enqueue %s task", task.Channel), err)
				return nil
			}
			m.metrics.TaskEnqueued(string(task.Channel))
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Subscribe turns on every channel flag that is set in req.
func (m *Manager) Subscribe(ctx context.Context, userID string, req model.SubscriptionRequest) (model.Response, error) {
	return m.setSubscriptions(ctx, userID, req, true)
}

// Unsubscribe turns off every channel flag that is set in req.
func (m *Manager) Unsubscribe(ctx context.Context, userID string, req model.SubscriptionRequest) (model.Response, error) {
	return m.setSubscriptions(ctx, userID, req, false)
}

// setSubscriptions is a read-modify-write without any concurrency control:
// concurrent updates for the same user race and the last Put wins.
func (m *Manager) setSubscriptions(ctx context.Context, userID string, req model.SubscriptionRequest, on bool) (model.Response, error) {
	prefs, err := m.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.NotFound(), nil
	}
	if err != nil {
		return model.Response{}, upstream("fetch preferences", err)
	}

	for _, ch := range model.Channels {
		if req.Requested(ch) {
			prefs.SetSubscription(ch, on)
		}
	}

	if err := m.store.Put(ctx, prefs); err != nil {
		return model.Response{}, upstream("store preferences", err)
	}

	m.logger.InfoContext(ctx, "subscriptions updated",
		slog.String("user_id", userID),
		slog.Bool("subscribe", on),
		slog.Bool("email", prefs.Subscriptions.Email),
		slog.Bool("sms", prefs.Subscriptions.SMS),
		slog.Bool("whatsapp", prefs.Subscriptions.WhatsApp))
	return model.Success(), nil
}

// Preferences returns the stored record. store.ErrNotFound is passed through.
func (m *Manager) Preferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	prefs, err := m.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, upstream("fetch preferences", err)
	}
	return prefs, err
}

// UpdateContact sets the contact fields present in req. A user without a
// record gets one with every subscription off.
func (m *Manager) UpdateContact(ctx context.Context, userID string, req model.ContactRequest) (model.Response, error) {
	prefs, err := m.store.Get(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		prefs = &model.UserPreferences{UserID: userID}
	case err != nil:
		return model.Response{}, upstream("fetch preferences", err)
	}

	if req.Email != nil {
		prefs.Email = *req.Email
	}
	if req.Phone != nil {
		prefs.Phone = *req.Phone
	}

	if err := m.store.Put(ctx, prefs); err != nil {
		return model.Response{}, upstream("store preferences", err)
	}
	return model.Success(), nil
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
