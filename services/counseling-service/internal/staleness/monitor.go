// Package staleness watches for requests left in Pendente for too long.
// It only reports; nothing is expired automatically.
package staleness

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
)

type PendingCounter interface {
	CountPendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Config struct {
	StaleAfter time.Duration
	Every      time.Duration
}

type Monitor struct {
	store   PendingCounter
	metrics *metrics.Collector
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

func NewMonitor(store PendingCounter, m *metrics.Collector, logger *slog.Logger, cfg Config) *Monitor {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 7 * 24 * time.Hour
	}
	if cfg.Every <= 0 {
		cfg.Every = 15 * time.Minute
	}
	return &Monitor{store: store, metrics: m, logger: logger, cfg: cfg, now: time.Now}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Every)
	defer ticker.Stop()
	for {
		if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("stale pending check failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check counts stale requests once and updates the gauge.
func (m *Monitor) Check(ctx context.Context) (int, error) {
	n, err := m.store.CountPendingBefore(ctx, m.now().Add(-m.cfg.StaleAfter))
	if err != nil {
		return 0, err
	}
	if m.metrics != nil {
		m.metrics.StalePending.Set(float64(n))
	}
	if n > 0 {
		m.logger.Warn("requests waiting for approval too long", "count", n, "older_than", m.cfg.StaleAfter.String())
	}
	return n, nil
}
