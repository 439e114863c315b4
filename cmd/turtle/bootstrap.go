package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"turtle-trader/internal/broker"
	"turtle-trader/internal/engine"
	"turtle-trader/internal/engine/engineobs"
	"turtle-trader/internal/eod"
	"turtle-trader/internal/eod/eodobs"
	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/metrics"
	"turtle-trader/internal/recorder"
	"turtle-trader/internal/scheduler"
	"turtle-trader/internal/statestore"
	"turtle-trader/internal/store"
	"turtle-trader/internal/trace"
	"turtle-trader/internal/tradelog"
)

const version = "1.0.0"

// app holds everything main has to shut down.
type app struct {
	cfg      *store.Config
	state    interfaces.StateStore
	recorder interfaces.Recorder
	sched    *scheduler.Scheduler
	metrics  *http.Server
}

// initializeSystem loads .env and initializes logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(version); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads the YAML config from CONFIG_PATH (default config.yaml)
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	logger.Info(ctx, "Config loaded",
		"path", path,
		"mode", cfg.Mode,
		"platform", cfg.Platform,
		"markets", len(cfg.Universe.Symbols),
		"timezone", cfg.Timezone,
	)
	return cfg, nil
}

// build wires platform, storage, engine and scheduler.
func build(ctx context.Context, cfg *store.Config) (*app, error) {
	tradelog.SetLocation(cfg.Location())

	platform, err := broker.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rec, err := recorder.Open(ctx, cfg.Recorder.Driver, cfg.Recorder.DSN)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}

	if sr, ok := rec.(*recorder.SQLRecorder); ok {
		logLastSession(ctx, sr)
	}

	st, err := statestore.New(ctx, cfg)
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("state store: %w", err)
	}

	a := &app{cfg: cfg, state: st, recorder: rec}
	eng := engine.New(cfg, platform, st, rec)
	if err := eng.Restore(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if envBool("RESET_SESSION") {
		if err := eng.ResetSession(ctx); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("reset session: %w", err)
		}
	}

	summarizer, err := eod.NewSummarizer(cfg.Location(), cfg.Schedule.CloseTime)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.sched = scheduler.New(ctx, cfg.Location(), engineobs.Wrap(eng), eodobs.Wrap(summarizer))
	a.sched.SetLogRetention(envInt("TRADER_LOG_RETENTION_DAYS"))
	if err := a.sched.Register(cfg.Schedule.CycleCron, cfg.Schedule.EODCron); err != nil {
		a.close(ctx)
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		a.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	return a, nil
}

// logLastSession reports where the previous run left off.
func logLastSession(ctx context.Context, r *recorder.SQLRecorder) {
	last, drops, ok, err := r.LastSession(ctx)
	if err != nil {
		logger.Warn(ctx, "Cycle history unavailable", "error", err)
		return
	}
	if !ok {
		logger.Info(ctx, "No recorded cycles yet")
		return
	}
	logger.Info(ctx, "Last recorded cycle",
		"cycle_id", last.CycleID,
		"day", last.Day,
		"risk_capital", last.RiskCapital,
		"skipped", last.Skipped,
		"signals", last.Signals,
		"orders", last.Orders,
		"drops", last.Drops,
		"drop_reasons", drops,
	)
}

func (a *app) start(ctx context.Context) {
	if a.metrics != nil {
		go func() {
			logger.Info(ctx, "Metrics server listening", "addr", a.metrics.Addr)
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorWithErr(ctx, "Metrics server failed", err)
			}
		}()
	}
	a.sched.Start()
	if envBool("RUN_ON_START") {
		go a.sched.RunNow()
	}
}

// close stops the scheduler first so no cycle writes to closed stores.
func (a *app) close(ctx context.Context) {
	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "Metrics server shutdown failed", "error", err)
		}
	}
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			logger.Warn(ctx, "State store close failed", "error", err)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			logger.Warn(ctx, "Recorder close failed", "error", err)
		}
	}
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}
