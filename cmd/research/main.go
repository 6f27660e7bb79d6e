package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"rsicross/internal/config"
	"rsicross/internal/indicator"
	"rsicross/internal/md"
	"rsicross/internal/notifier"
	"rsicross/internal/util"

	"github.com/urfave/cli/v3"
)

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "symbol",
			Aliases:  []string{"t"},
			Usage:    "Stock ticker symbol",
			Required: true,
		},
		&cli.TimestampFlag{
			Name:    "start",
			Aliases: []string{"s"},
			Usage:   "Start date in `YYYY-MM-DD` format. Defaults to one year before end.",
			Config:  cli.TimestampConfig{Layouts: []string{"2006-01-02"}},
		},
		&cli.TimestampFlag{
			Name:    "end",
			Aliases: []string{"e"},
			Usage:   "End date in `YYYY-MM-DD` format. Defaults to now.",
			Config:  cli.TimestampConfig{Layouts: []string{"2006-01-02"}},
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Price source: alpaca, polygon or csv",
			Value: "alpaca",
		},
		&cli.StringFlag{
			Name:  "csv",
			Usage: "Path to a time,close CSV file for --source csv",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Output format: table or csv",
			Value: "table",
		},
	}
}

// loadPrices fetches daily closes for the command's symbol and date range.
func loadPrices(ctx context.Context, cmd *cli.Command, cfg config.Config) (indicator.PriceSeries, error) {
	end := time.Now().UTC()
	if cmd.IsSet("end") {
		end = cmd.Timestamp("end")
	}
	start := end.AddDate(-1, 0, 0)
	if cmd.IsSet("start") {
		start = cmd.Timestamp("start")
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start %s must be before end %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	var history md.HistoryProvider
	switch cmd.String("source") {
	case "alpaca":
		history = md.NewAlpacaHistory(cfg.APIKey, cfg.APISecret, cfg.Feed)
	case "polygon":
		poly, err := md.NewPolygonHistory(cfg.PolygonKey)
		if err != nil {
			return nil, err
		}
		history = poly
	case "csv":
		if cmd.String("csv") == "" {
			return nil, fmt.Errorf("--csv is required for --source csv")
		}
		history = md.NewCSVHistory(cmd.String("csv"))
	default:
		return nil, fmt.Errorf("unknown source %q", cmd.String("source"))
	}

	return history.Bars(ctx, md.Request{
		Symbol:    cmd.String("symbol"),
		Start:     start,
		End:       end,
		Timeframe: md.Day,
	})
}

func rsiAction(ctx context.Context, cmd *cli.Command) error {
	logger := util.NewLoggerTo(os.Stderr, cmd.String("log-level"))
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	symbol := cmd.String("symbol")
	prices, err := loadPrices(ctx, cmd, cfg)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	logger.Debug().Str("symbol", symbol).Int("bars", len(prices)).Msg("prices loaded")

	window := int(cmd.Int("window"))
	eval, err := indicator.Evaluate(prices, window)
	if err != nil && !errors.Is(err, indicator.ErrUndefinedInput) {
		return fmt.Errorf("evaluate %s: %w", symbol, err)
	}

	low, high := cmd.Float("low-rsi"), cmd.Float("high-rsi")
	if err := rsiReport(symbol, prices, eval, low, high).write(os.Stdout, cmd.String("format")); err != nil {
		return err
	}

	if !cmd.Bool("alert") {
		return nil
	}
	n, err := notifier.Build(cmd.StringSlice("notify"), cfg.NotifierSettings(), int(cmd.Int("notify-retries")), cfg.NotifyDelay)
	if err != nil {
		logger.Warn().Err(err).Msg("some alert transports are unavailable")
	}
	if n == nil {
		return fmt.Errorf("no alert transport available")
	}
	if err := n.Send(ctx, notifier.FormatSignal(symbol, eval, low, high)); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	logger.Info().Str("symbol", symbol).Str("direction", string(eval.Signal.Direction)).Msg("alert sent")
	return nil
}

func maAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	windows, err := parseWindows(cmd.String("windows"))
	if err != nil {
		return err
	}
	prices, err := loadPrices(ctx, cmd, cfg)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	r, err := maReport(cmd.String("symbol"), prices, windows)
	if err != nil {
		return err
	}
	return r.write(os.Stdout, cmd.String("format"))
}

func main() {
	cmd := &cli.Command{
		Name:  "research",
		Usage: "Inspect RSI crossover signals and moving averages for a symbol",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level for diagnostics on stderr",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "rsi",
				Usage: "Compute RSI, its EWMA and the crossover signal",
				Flags: append(sourceFlags(),
					&cli.IntFlag{
						Name:    "window",
						Aliases: []string{"w"},
						Usage:   "RSI and EWMA window length",
						Value:   14,
					},
					&cli.FloatFlag{
						Name:  "low-rsi",
						Usage: "Oversold threshold",
						Value: indicator.DefaultLowRSI,
					},
					&cli.FloatFlag{
						Name:  "high-rsi",
						Usage: "Overbought threshold",
						Value: indicator.DefaultHighRSI,
					},
					&cli.BoolFlag{
						Name:  "alert",
						Usage: "Send the latest reading through the alert transports",
					},
					&cli.StringSliceFlag{
						Name:  "notify",
						Usage: "Alert transports: email, sms, telegram",
						Value: []string{"email"},
					},
					&cli.IntFlag{
						Name:  "notify-retries",
						Usage: "Send attempts per transport",
						Value: 3,
					},
				),
				Action: rsiAction,
			},
			{
				Name:  "ma",
				Usage: "Compute simple moving averages of the close",
				Flags: append(sourceFlags(),
					&cli.StringFlag{
						Name:  "windows",
						Usage: "Comma separated window lengths",
						Value: "20,50,200",
					},
				),
				Action: maAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		l := util.NewLoggerTo(os.Stderr, "info")
		l.Fatal().Err(err).Msg("research failed")
	}
}
