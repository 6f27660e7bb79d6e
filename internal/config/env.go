package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// loadDotEnv exports the variables in path without overriding ones already
// set in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	setString("APCA_API_KEY_ID", &cfg.APIKey)
	setString("APCA_API_SECRET_KEY", &cfg.APISecret)
	setString("POLYGON_API_KEY", &cfg.PolygonKey)
	setString("SMTP_USER", &cfg.SMTPUser)
	setString("SMTP_PASSWORD", &cfg.SMTPPassword)
	setString("SMTP_HOST", &cfg.SMTPHost)
	setString("SMTP_PORT", &cfg.SMTPPort)
	setList("ALERT_EMAIL_TO", &cfg.AlertEmailTo)
	setString("TWILIO_ACCOUNT_SID", &cfg.TwilioSID)
	setString("TWILIO_AUTH_TOKEN", &cfg.TwilioToken)
	setString("TWILIO_FROM", &cfg.TwilioFrom)
	setList("ALERT_SMS_TO", &cfg.AlertSMSTo)
	setString("TELEGRAM_TOKEN", &cfg.TelegramToken)
	setString("POSTGRES_DSN", &cfg.PostgresDSN)

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.TelegramChatID = id
	}
	return nil
}
