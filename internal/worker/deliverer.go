package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"user-notifier/internal/metrics"
	"user-notifier/internal/model"
	"user-notifier/internal/transport"
)

const whatsAppPrefix = "whatsapp:"

// Senders are the origin addresses stamped on outbound envelopes.
type Senders struct {
	Email    string `env:"FROM_EMAIL_ADDRESS"`
	SMS      string `env:"SMS_FROM_NUMBER"`
	WhatsApp string `env:"WHATSAPP_FROM_NUMBER"`
}

// Deliverer turns one queued task into one transport call.
type Deliverer struct {
	email    transport.EmailSender
	messages transport.MessageSender
	senders  Senders
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type DelivererOption func(*Deliverer)

func WithDelivererLogger(l *slog.Logger) DelivererOption {
	return func(d *Deliverer) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithDelivererMetrics(m *metrics.Metrics) DelivererOption {
	return func(d *Deliverer) { d.metrics = m }
}

func NewDeliverer(email transport.EmailSender, messages transport.MessageSender, senders Senders, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		email:    email,
		messages: messages,
		senders:  senders,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle delivers the task encoded in body.
//
// A nil return means the message may be acked. That covers tasks that can
// never succeed: undecodable bodies and unknown channels are logged and
// dropped so they do not circulate forever. Transport errors are returned
// and the message is redelivered.
func (d *Deliverer) Handle(ctx context.Context, body []byte) error {
	var task model.DeliveryTask
	if err := json.Unmarshal(body, &task); err != nil {
		d.logger.WarnContext(ctx, "dropping undecodable task",
			slog.String("error", err.Error()),
			slog.Int("size", len(body)))
		d.metrics.Delivery("unknown", "dropped")
		return nil
	}

	var err error
	switch task.Channel {
	case model.ChannelEmail:
		err = d.email.SendEmail(ctx, transport.Email{
			From:    d.senders.Email,
			To:      task.Recipient,
			Subject: task.Subject,
			Text:    task.Text,
			HTML:    task.Text,
		})
	case model.ChannelSMS:
		err = d.messages.SendMessage(ctx, transport.Message{
			From: d.senders.SMS,
			To:   task.Recipient,
			Body: task.Text,
		})
	case model.ChannelWhatsApp:
		err = d.messages.SendMessage(ctx, transport.Message{
			From: whatsAppPrefix + d.senders.WhatsApp,
			To:   whatsAppPrefix + task.Recipient,
			Body: task.Text,
		})
	default:
		d.logger.WarnContext(ctx, "dropping task with unknown channel",
			slog.String("channel", string(task.Channel)))
		d.metrics.Delivery(string(task.Channel), "dropped")
		return nil
	}

	if err != nil {
		d.metrics.Delivery(string(task.Channel), "failed")
		return fmt.Errorf("deliver %s task: %w", task.Channel, err)
	}

	d.metrics.Delivery(string(task.Channel), "sent")
	d.logger.DebugContext(ctx, "task delivered", slog.String("channel", string(task.Channel)))
	return nil
}
