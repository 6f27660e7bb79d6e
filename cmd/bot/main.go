package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rsicross/internal/broker"
	"rsicross/internal/config"
	"rsicross/internal/engine"
	"rsicross/internal/md"
	"rsicross/internal/notifier"
	"rsicross/internal/record"
	"rsicross/internal/risk"
	"rsicross/internal/state"
	"rsicross/internal/strategy"
	"rsicross/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := util.NewLogger("info")
		l.Fatal().Err(err).Msg("config error")
	}
	logger := util.NewLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
	logger.Info().Msg("bot shutdown complete")
}

// run owns every resource it opens, so deferred closes and the final
// checkpoint happen before main decides how to exit.
func run(cfg config.Config, logger zerolog.Logger) error {
	history, err := newHistory(cfg)
	if err != nil {
		return fmt.Errorf("history provider: %w", err)
	}

	runID := generateRunID()
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID)
	if err != nil {
		return err
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close decision logger")
		}
	}()

	store := state.NewStore()
	if err := store.Load(cfg.CheckpointPath); err == nil {
		logger.Info().Str("path", cfg.CheckpointPath).Msg("loaded checkpoint")
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("ignoring unreadable checkpoint")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)
	go func() {
		select {
		case <-signalChan:
			logger.Info().Msg("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	brokerClient := broker.New(logger, cfg.APIKey, cfg.APISecret, cfg.PaperBaseURL)

	recorder, stored, closeRecorder := newRecorder(ctx, cfg, logger)
	defer closeRecorder()
	if stored != nil {
		engine.SeedReadings(ctx, logger, stored, store, cfg.Symbols)
	}

	var alerts *notifier.Dispatcher
	if n := newNotifier(cfg, logger); n != nil {
		alerts = notifier.NewDispatcher(n, logger, 2*time.Minute)
	}

	engineImpl, err := engine.New(cfg, engine.Deps{
		Strategy:  strategy.RSICrossover{AllowShort: cfg.AllowShort},
		Gate:      risk.Gate{Log: logger.With().Str("component", "risk").Logger()},
		Broker:    brokerClient,
		History:   history,
		State:     store,
		Decisions: decisions,
		Recorder:  recorder,
		Alerts:    alerts,
		Log:       logger,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if cfg.Trading == config.TradingPaper {
		go engine.ReconcileLoop(ctx, logger, brokerClient, store, cfg.Symbols, cfg.ReconcileInterval)
	}

	saveCheckpoint := func() {
		if err := store.Save(cfg.CheckpointPath); err != nil {
			logger.Error().Err(err).Msg("failed to save checkpoint")
		}
	}

	logger.Info().
		Str("run_id", runID).
		Str("mode", string(cfg.Mode)).
		Str("trading", string(cfg.Trading)).
		Strs("symbols", cfg.Symbols).
		Int("window", cfg.Window).
		Msg("starting bot")

	switch cfg.Mode {
	case config.ModeSchedule:
		scheduler := &engine.Scheduler{
			Engine:  engineImpl,
			Broker:  brokerClient,
			Offset:  cfg.RebalanceOffset,
			Log:     logger.With().Str("component", "scheduler").Logger(),
			OnCycle: saveCheckpoint,
		}
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	case config.ModeStream:
		if err := md.StartStream(ctx, logger, cfg.APIKey, cfg.APISecret, cfg.Feed, cfg.Symbols, func(bar md.Bar) {
			engineImpl.OnBar(ctx, bar)
		}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("market data stream stopped")
		}
	}

	if alerts != nil {
		alerts.Wait()
	}
	saveCheckpoint()
	return nil
}

func newHistory(cfg config.Config) (md.HistoryProvider, error) {
	if cfg.Provider == "polygon" {
		poly, err := md.NewPolygonHistory(cfg.PolygonKey)
		if err != nil {
			return nil, err
		}
		return poly, nil
	}
	return md.NewAlpacaHistory(cfg.APIKey, cfg.APISecret, cfg.Feed), nil
}

func newRecorder(ctx context.Context, cfg config.Config, logger zerolog.Logger) (record.Recorder, *record.PostgresRecorder, func()) {
	var (
		recorders record.Multi
		stored    *record.PostgresRecorder
		closers   []func()
	)

	if cfg.MetricsAddr != "" {
		recorders = append(recorders, record.NewPrometheusRecorder(prometheus.DefaultRegisterer))
		srv := record.Serve(cfg.MetricsAddr, prometheus.DefaultGatherer)
		closers = append(closers, func() { _ = srv.Close() })
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	if cfg.PostgresDSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		db, err := record.OpenPostgres(connectCtx, cfg.PostgresDSN)
		if err != nil {
			logger.Error().Err(err).Msg("postgres recorder disabled")
		} else {
			pg := record.NewPostgresRecorder(db)
			if err := pg.EnsureSchema(connectCtx); err != nil {
				logger.Error().Err(err).Msg("postgres recorder disabled")
				_ = db.Close()
			} else {
				recorders = append(recorders, pg)
				stored = pg
				closers = append(closers, func() { _ = db.Close() })
			}
		}
	}

	return recorders, stored, func() {
		for _, c := range closers {
			c()
		}
	}
}

func newNotifier(cfg config.Config, logger zerolog.Logger) notifier.Notifier {
	n, err := notifier.Build(cfg.Notify, cfg.NotifierSettings(), cfg.NotifyRetries, cfg.NotifyDelay)
	if err != nil {
		logger.Error().Err(err).Msg("some alert transports are disabled")
	}
	return n
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
