package notifier

import (
	"errors"
	"fmt"
	"time"
)

// Settings holds the credentials and recipients for every transport.
type Settings struct {
	SMTPAddr       string
	SMTPUser       string
	SMTPPassword   string
	EmailTo        []string
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	SMSTo          []string
	TelegramToken  string
	TelegramChatID int64
}

// Build assembles the named transports, each wrapped in a Retry. It returns
// nil when transports is empty. A transport that fails to start is skipped
// and reported in the joined error.
func Build(transports []string, s Settings, attempts int, delay time.Duration) (Notifier, error) {
	var (
		out  Multi
		errs []error
	)
	wrap := func(n Notifier) Notifier {
		return Retry{Next: n, Attempts: attempts, Delay: delay}
	}
	for _, name := range transports {
		switch name {
		case "email":
			out = append(out, wrap(NewEmail(s.SMTPAddr, s.SMTPUser, s.SMTPPassword, s.EmailTo)))
		case "sms":
			out = append(out, wrap(NewSMS(s.TwilioSID, s.TwilioToken, s.TwilioFrom, s.SMSTo)))
		case "telegram":
			tg, err := NewTelegram(s.TelegramToken, s.TelegramChatID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, wrap(tg))
		default:
			errs = append(errs, fmt.Errorf("unknown transport %q", name))
		}
	}
	if len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	return out, errors.Join(errs...)
}
