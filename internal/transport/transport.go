// Package transport delivers a single message over one channel.
//
// Queued tasks are delivered at least once, so a transport may be asked to
// send the same envelope more than once. Implementations must tolerate that.
package transport

import (
	"context"
	"errors"
	"regexp"
)

var (
	ErrSendFailed    = errors.New("transport.errors.send_failed")
	ErrInvalidConfig = errors.New("transport.errors.invalid_config")
	ErrInvalidParams = errors.New("transport.errors.invalid_params")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email is the envelope handed to an EmailSender.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

func (e Email) Validate() error {
	if e.From == "" || e.To == "" {
		return errors.Join(ErrInvalidParams, errors.New("from and to are required"))
	}
	return nil
}

// Message is the envelope handed to a MessageSender (SMS or WhatsApp).
type Message struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (m Message) Validate() error {
	if m.From == "" || m.To == "" {
		return errors.Join(ErrInvalidParams, errors.New("from and to are required"))
	}
	return nil
}

type EmailSender interface {
	SendEmail(ctx context.Context, email Email) error
}

type MessageSender interface {
	SendMessage(ctx context.Context, msg Message) error
}
