// Package sweeper 周期性地删除已过期的职位。
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"gigboard/internal/clock"
	"gigboard/internal/metrics"
)

// Expirer 执行一次过期清理，返回被删除的职位 ID。
type Expirer interface {
	SweepExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Sweeper 基于 robfig/cron 定时触发清理；上一轮未结束时跳过本轮。
type Sweeper struct {
	cron     *cron.Cron
	expirer  Expirer
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

func New(expirer Expirer, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "sweeper"))
	cl := cronLogger{logger: logger}
	return &Sweeper{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		expirer:  expirer,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Start 注册定时任务并启动调度；ctx 会传递给每一轮清理。
func (s *Sweeper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("sweeper started", slog.String("spec", spec))
	return nil
}

// Stop 停止调度，返回的 ctx 在正在运行的清理结束后关闭。
func (s *Sweeper) Stop() context.Context {
	done := s.cron.Stop()
	s.logger.Info("sweeper stopped")
	return done
}

// RunOnce 立即执行一轮清理。
func (s *Sweeper) RunOnce(ctx context.Context) ([]string, error) {
	start := time.Now()
	removed, err := s.expirer.SweepExpired(ctx, s.clock.Now())
	elapsed := time.Since(start)
	metrics.SweepCompleted(len(removed), elapsed)

	if err != nil {
		s.logger.Error("sweep failed", slog.Any("error", err), slog.Int("removed", len(removed)))
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("sweep complete",
			slog.Int("removed", len(removed)),
			slog.Any("job_ids", removed),
			slog.Duration("elapsed", elapsed),
		)
	}
	return removed, nil
}

// cronLogger 将 cron 的日志接口转接到 slog。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
