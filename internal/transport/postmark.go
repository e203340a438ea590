package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type PostmarkConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
}

// postmarkAPI is the subset of the Postmark client used here.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkSender delivers email through Postmark's transactional API.
type PostmarkSender struct {
	client postmarkAPI
}

func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	return &PostmarkSender{client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken)}, nil
}

func (s *PostmarkSender) SendEmail(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	if !emailRegex.MatchString(email.From) {
		return fmt.Errorf("%w: sender must be a valid email address", ErrInvalidParams)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     email.From,
		To:       email.To,
		Subject:  email.Subject,
		TextBody: email.Text,
		HTMLBody: email.HTML,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}
