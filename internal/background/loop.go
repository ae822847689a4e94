// Package background runs the periodic maintenance loop: markdown
// snapshot export, automated lesson mining, and rate-limit GC. One
// activity failing never cancels the others or the loop itself.
package background

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/metrics"
	"github.com/openclaw/memoryd/internal/ratelimit"
)

const (
	tickInterval = 5 * time.Minute
	exportBudget = 60 * time.Second
	miningBudget = 120 * time.Second

	// Idle agent windows older than this get evicted.
	limiterMaxAge = 10 * time.Minute
)

// Loop is the single cooperative background worker.
type Loop struct {
	store    *db.Client
	exporter *Exporter
	miner    *Miner
	limiter  *ratelimit.Limiter
	logger   *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates the background loop.
func NewLoop(store *db.Client, exporter *Exporter, miner *Miner, limiter *ratelimit.Limiter, logger *zap.Logger) *Loop {
	return &Loop{
		store:    store,
		exporter: exporter,
		miner:    miner,
		limiter:  limiter,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	go l.run()
	l.logger.Info("Background loop started",
		zap.Duration("interval", tickInterval))
}

// Stop signals the loop and waits for the current tick to finish.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
	l.logger.Info("Background loop stopped")
}

func (l *Loop) run() {
	defer close(l.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick consults settings once and runs each enabled activity with its
// own timeout.
func (l *Loop) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	settings, err := l.store.GetSettings(ctx)
	cancel()
	if err != nil {
		l.logger.Error("Background tick skipped, settings unavailable", zap.Error(err))
		return
	}

	if settings.OpenclawSyncEnabled {
		l.runActivity("export", exportBudget, func(ctx context.Context) error {
			return l.exporter.Run(ctx, settings)
		})
	}
	if settings.AutoLessonEnabled {
		l.runActivity("lesson_mining", miningBudget, func(ctx context.Context) error {
			return l.miner.Run(ctx, settings)
		})
	}

	removed := l.limiter.Sweep(limiterMaxAge)
	if removed > 0 {
		l.logger.Debug("Rate limiter windows evicted", zap.Int("removed", removed))
	}
}

func (l *Loop) runActivity(name string, budget time.Duration, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.BackgroundActivityDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		l.logger.Error("Background activity failed",
			zap.String("activity", name),
			zap.Error(err))
	}
}
