package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"rsicross/internal/notifier"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeSchedule Mode = "schedule"
	ModeStream   Mode = "stream"
)

type Trading string

const (
	TradingDryRun Trading = "dry_run"
	TradingPaper  Trading = "paper"
)

const (
	NotifyEmail    = "email"
	NotifySMS      = "sms"
	NotifyTelegram = "telegram"
)

type Config struct {
	Mode        Mode     `yaml:"mode"`
	Trading     Trading  `yaml:"trading"`
	Symbols     []string `yaml:"symbols"`
	Window      int      `yaml:"window"`
	HistoryBars int      `yaml:"historyBars"`
	Timeframe   string   `yaml:"timeframe"`
	Provider    string   `yaml:"provider"`
	Feed        string   `yaml:"feed"`
	AllowShort  bool     `yaml:"allowShort"`
	LowRSI      float64  `yaml:"lowRSI"`
	HighRSI     float64  `yaml:"highRSI"`

	MaxQty            int           `yaml:"maxQty"`
	MaxNotional       float64       `yaml:"maxNotional"`
	Cooldown          time.Duration `yaml:"cooldown"`
	RebalanceOffset   time.Duration `yaml:"rebalanceOffset"`
	ReconcileInterval time.Duration `yaml:"reconcileInterval"`
	KillSwitch        bool          `yaml:"killSwitch"`
	ExtendedHours     bool          `yaml:"extendedHours"`
	OrderType         string        `yaml:"orderType"`
	TimeInForce       string        `yaml:"timeInForce"`

	DecisionsPath  string `yaml:"decisionsPath"`
	CheckpointPath string `yaml:"checkpointPath"`
	PaperBaseURL   string `yaml:"paperBaseURL"`
	MetricsAddr    string `yaml:"metricsAddr"`
	PostgresDSN    string `yaml:"postgresDSN"`
	LogLevel       string `yaml:"logLevel"`

	Notify        []string      `yaml:"notify"`
	NotifyRetries int           `yaml:"notifyRetries"`
	NotifyDelay   time.Duration `yaml:"notifyDelay"`

	APIKey         string   `yaml:"apiKey"`
	APISecret      string   `yaml:"apiSecret"`
	PolygonKey     string   `yaml:"polygonKey"`
	SMTPUser       string   `yaml:"smtpUser"`
	SMTPPassword   string   `yaml:"smtpPassword"`
	SMTPHost       string   `yaml:"smtpHost"`
	SMTPPort       string   `yaml:"smtpPort"`
	AlertEmailTo   []string `yaml:"alertEmailTo"`
	TwilioSID      string   `yaml:"twilioSID"`
	TwilioToken    string   `yaml:"twilioToken"`
	TwilioFrom     string   `yaml:"twilioFrom"`
	AlertSMSTo     []string `yaml:"alertSMSTo"`
	TelegramToken  string   `yaml:"telegramToken"`
	TelegramChatID int64    `yaml:"telegramChatID"`
}

// SMTPAddr joins host and port, falling back to the Gmail relay.
func (c Config) SMTPAddr() string {
	host, port := c.SMTPHost, c.SMTPPort
	if host == "" {
		host = "smtp.gmail.com"
	}
	if port == "" {
		port = "587"
	}
	return host + ":" + port
}

func (c Config) Notifies(transport string) bool {
	for _, n := range c.Notify {
		if n == transport {
			return true
		}
	}
	return false
}

// listValue is a comma separated flag.
type listValue struct{ items *[]string }

func (l listValue) String() string {
	if l.items == nil {
		return ""
	}
	return strings.Join(*l.items, ",")
}

func (l listValue) Set(s string) error {
	*l.items = splitList(s)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type modeValue struct{ p *Mode }

func (m modeValue) String() string {
	if m.p == nil {
		return ""
	}
	return string(*m.p)
}
func (m modeValue) Set(s string) error { *m.p = Mode(s); return nil }

type tradingValue struct{ p *Trading }

func (t tradingValue) String() string {
	if t.p == nil {
		return ""
	}
	return string(*t.p)
}
func (t tradingValue) Set(s string) error { *t.p = Trading(s); return nil }

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	cfg.Mode = ModeSchedule
	cfg.Trading = TradingDryRun
	cfg.Symbols = []string{"AAPL"}
	cfg.Notify = nil
	fs.Var(modeValue{&cfg.Mode}, "mode", "run mode: schedule or stream")
	fs.Var(tradingValue{&cfg.Trading}, "trading", "order handling: dry_run or paper")
	fs.Var(listValue{&cfg.Symbols}, "symbols", "comma separated symbols to trade")
	fs.IntVar(&cfg.Window, "window", 9, "RSI and EWMA window length")
	fs.IntVar(&cfg.HistoryBars, "history-bars", 20, "bars fetched per evaluation")
	fs.StringVar(&cfg.Timeframe, "timeframe", "1d", "bar timeframe: 1m, 1h or 1d")
	fs.StringVar(&cfg.Provider, "provider", "alpaca", "price history provider: alpaca or polygon")
	fs.StringVar(&cfg.Feed, "feed", "iex", "alpaca market data feed: iex or sip")
	fs.BoolVar(&cfg.AllowShort, "allow-short", false, "allow short positions on SHORT signals")
	fs.Float64Var(&cfg.LowRSI, "low-rsi", 30, "RSI at or below which a symbol is oversold")
	fs.Float64Var(&cfg.HighRSI, "high-rsi", 70, "RSI at or above which a symbol is overbought")
	fs.IntVar(&cfg.MaxQty, "max-qty", 100, "max absolute position size")
	fs.Float64Var(&cfg.MaxNotional, "max-notional", 10000, "max notional per order")
	fs.DurationVar(&cfg.Cooldown, "cooldown", 0, "cooldown between trades per symbol")
	fs.DurationVar(&cfg.RebalanceOffset, "rebalance-offset", 30*time.Minute, "delay after the open before rebalancing")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", 10*time.Second, "reconciliation interval")
	fs.BoolVar(&cfg.KillSwitch, "kill-switch", false, "if true, never place orders")
	fs.BoolVar(&cfg.ExtendedHours, "extended-hours", false, "allow extended hours (limit+day only)")
	fs.StringVar(&cfg.OrderType, "order-type", "market", "order type: market or limit")
	fs.StringVar(&cfg.TimeInForce, "time-in-force", "day", "time in force: day")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", "decisions.ndjson", "path to decisions log")
	fs.StringVar(&cfg.CheckpointPath, "checkpoint-path", "checkpoint.json", "path to checkpoint file")
	fs.StringVar(&cfg.PaperBaseURL, "paper-base-url", "https://paper-api.alpaca.markets", "paper trading base URL")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "prometheus listen address, empty to disable")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "postgres DSN for indicator records, empty to disable")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	fs.Var(listValue{&cfg.Notify}, "notify", "comma separated alert transports: email, sms, telegram")
	fs.IntVar(&cfg.NotifyRetries, "notify-retries", 3, "alert send attempts")
	fs.DurationVar(&cfg.NotifyDelay, "notify-delay", 5*time.Second, "delay between alert attempts")
}

// Load resolves the configuration from, lowest to highest precedence:
// defaults, the --config YAML file, .env, the environment and explicitly set
// flags.
func Load() (Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (Config, error) {
	var parsed Config
	var configPath string
	bindFlags(fs, &parsed)
	fs.StringVar(&configPath, "config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var cfg Config
	defaults := flag.NewFlagSet("defaults", flag.ContinueOnError)
	bindFlags(defaults, &cfg)

	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := loadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" || setErr != nil {
			return
		}
		setErr = defaults.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return cfg, setErr
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.Mode != ModeSchedule && cfg.Mode != ModeStream {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.Trading != TradingDryRun && cfg.Trading != TradingPaper {
		return fmt.Errorf("invalid trading: %s", cfg.Trading)
	}
	if cfg.Trading == TradingPaper && (cfg.APIKey == "" || cfg.APISecret == "") {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in paper trading")
	}
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if cfg.Window <= 0 {
		return fmt.Errorf("window must be > 0")
	}
	if cfg.HistoryBars < cfg.Window+1 {
		return fmt.Errorf("history-bars must be >= window+1")
	}
	switch cfg.Timeframe {
	case "1m", "1h", "1d":
	default:
		return fmt.Errorf("invalid timeframe: %s", cfg.Timeframe)
	}
	switch cfg.Provider {
	case "alpaca":
	case "polygon":
		if cfg.PolygonKey == "" {
			return fmt.Errorf("POLYGON_API_KEY is required for the polygon provider")
		}
	default:
		return fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if cfg.LowRSI >= cfg.HighRSI {
		return fmt.Errorf("low-rsi must be < high-rsi")
	}
	if cfg.MaxQty <= 0 {
		return fmt.Errorf("max-qty must be > 0")
	}
	if cfg.MaxNotional <= 0 {
		return fmt.Errorf("max-notional must be > 0")
	}
	if cfg.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile-interval must be > 0")
	}
	if cfg.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	if cfg.RebalanceOffset < 0 {
		return fmt.Errorf("rebalance-offset must be >= 0")
	}
	if cfg.OrderType != "market" && cfg.OrderType != "limit" {
		return fmt.Errorf("invalid order-type: %s", cfg.OrderType)
	}
	if cfg.TimeInForce != "day" {
		return fmt.Errorf("invalid time-in-force: %s", cfg.TimeInForce)
	}
	for _, n := range cfg.Notify {
		switch n {
		case NotifyEmail:
			if cfg.SMTPUser == "" || cfg.SMTPPassword == "" || len(cfg.AlertEmailTo) == 0 {
				return fmt.Errorf("SMTP_USER, SMTP_PASSWORD and ALERT_EMAIL_TO are required for email alerts")
			}
		case NotifySMS:
			if cfg.TwilioSID == "" || cfg.TwilioToken == "" || cfg.TwilioFrom == "" || len(cfg.AlertSMSTo) == 0 {
				return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM and ALERT_SMS_TO are required for sms alerts")
			}
		case NotifyTelegram:
			if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
				return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are required for telegram alerts")
			}
		default:
			return fmt.Errorf("invalid notify transport: %s", n)
		}
	}
	if cfg.NotifyRetries <= 0 {
		return fmt.Errorf("notify-retries must be > 0")
	}
	return nil
}

// FromEnv resolves defaults, .env and the environment without parsing flags
// or validating. Tools that share credentials with the bot use it.
func FromEnv() (Config, error) {
	var cfg Config
	bindFlags(flag.NewFlagSet("env", flag.ContinueOnError), &cfg)
	if err := loadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) NotifierSettings() notifier.Settings {
	return notifier.Settings{
		SMTPAddr:       c.SMTPAddr(),
		SMTPUser:       c.SMTPUser,
		SMTPPassword:   c.SMTPPassword,
		EmailTo:        c.AlertEmailTo,
		TwilioSID:      c.TwilioSID,
		TwilioToken:    c.TwilioToken,
		TwilioFrom:     c.TwilioFrom,
		SMSTo:          c.AlertSMSTo,
		TelegramToken:  c.TelegramToken,
		TelegramChatID: c.TelegramChatID,
	}
}
