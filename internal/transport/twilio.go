package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
}

// TwilioMessagesAPI is the subset of the Twilio REST client used by TwilioSender.
type TwilioMessagesAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends SMS and WhatsApp messages. The channel is selected by
// the address scheme: WhatsApp addresses carry the "whatsapp:" prefix.
type TwilioSender struct {
	api TwilioMessagesAPI
}

func NewTwilioSender(cfg TwilioConfig) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: Twilio account SID and auth token are required", ErrInvalidConfig)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewTwilioSenderWithClient(client.Api), nil
}

func NewTwilioSenderWithClient(api TwilioMessagesAPI) *TwilioSender {
	return &TwilioSender{api: api}
}

func (s *TwilioSender) SendMessage(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	// The Twilio client has no context support
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(msg.From)
	params.SetTo(msg.To)
	params.SetBody(msg.Body)

	if _, err := s.api.CreateMessage(params); err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			return errors.Join(ErrSendFailed,
				fmt.Errorf("twilio error: %d (status %d) - %s", restErr.Code, restErr.Status, restErr.Message))
		}
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}
