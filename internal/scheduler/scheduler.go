package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"turtle-trader/internal/engine"
	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/tradelog"
)

// Scheduler runs the trading cycle and the EOD summary on cron specs with
// seconds, evaluated in the trading-day timezone.
type Scheduler struct {
	cron    *cron.Cron
	engine  interfaces.Engine
	eod     interfaces.EodSummarizer
	ctx     context.Context
	now     func() time.Time
	retainN int
}

// New creates a scheduler bound to ctx. Jobs that are still running when their
// next tick fires are skipped.
func New(ctx context.Context, loc *time.Location, eng interfaces.Engine, eod interfaces.EodSummarizer) *Scheduler {
	cl := cronLogger{ctx: ctx}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		engine: eng,
		eod:    eod,
		ctx:    ctx,
		now:    time.Now,
	}
}

// SetLogRetention enables gzip of trade logs older than days after each EOD run.
func (s *Scheduler) SetLogRetention(days int) {
	s.retainN = days
}

// Register adds the cycle and EOD jobs. An empty eodSpec disables the summary.
func (s *Scheduler) Register(cycleSpec, eodSpec string) error {
	if _, err := s.cron.AddFunc(cycleSpec, s.cycleTask); err != nil {
		return fmt.Errorf("register cycle task: %w", err)
	}
	if eodSpec == "" || s.eod == nil {
		return nil
	}
	if _, err := s.cron.AddFunc(eodSpec, s.eodTask); err != nil {
		return fmt.Errorf("register eod task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		logger.Info(s.ctx, "Scheduled job", "entry", int(e.ID), "next", e.Next)
	}
	logger.Info(s.ctx, "Scheduler started")
}

// Stop stops the cron and waits for running jobs up to the deadline of ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info(ctx, "Scheduler stopped")
	case <-ctx.Done():
		logger.Warn(ctx, "Scheduler stop timed out with jobs still running")
	}
}

// RunNow executes one trading cycle immediately (RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.cycleTask()
}

func (s *Scheduler) cycleTask() {
	_, err := s.engine.Cycle(s.ctx, s.now())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrCycleInProgress):
		logger.Warn(s.ctx, "Cycle skipped, previous cycle still running")
	default:
		logger.ErrorWithErr(s.ctx, "Scheduled cycle failed", err)
	}
}

func (s *Scheduler) eodTask() {
	if ok, _ := s.eod.ShouldRunNow(); !ok {
		return
	}
	if _, err := s.eod.SummarizeToday(s.ctx); err != nil {
		logger.ErrorWithErr(s.ctx, "EOD summary failed", err)
	}
	if s.retainN > 0 {
		if err := tradelog.CompressOlder(s.retainN); err != nil {
			logger.Warn(s.ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// cronLogger routes cron's own messages into the structured logger.
type cronLogger struct {
	ctx context.Context
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.ErrorWithErr(l.ctx, "cron: "+msg, err, keysAndValues...)
}
