package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// SMS sends text messages through the Twilio Messages API.
type SMS struct {
	api  messageCreator
	from string
	to   []string
}

func NewSMS(accountSID, authToken, from string, to []string) *SMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMS{api: client.Api, from: from, to: to}
}

func (s *SMS) Send(ctx context.Context, msg Message) error {
	if len(s.to) == 0 {
		return fmt.Errorf("sms: no recipients")
	}
	var errs []error
	for _, to := range s.to {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &openapi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.from)
		params.SetBody(msg.Text())
		if _, err := s.api.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Errorf("sms: send to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}
