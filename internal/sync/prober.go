package sync

import (
	"context"
	"time"

	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/logger"
)

// DefaultProbeInterval is how often the server's /health is polled.
const DefaultProbeInterval = 15 * time.Second

// HealthChecker reports whether the remote answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Prober turns periodic health checks into the online signal the
// offline queue consumes.
type Prober struct {
	checker  HealthChecker
	clock    clock.Clock
	interval time.Duration
	onStatus func(online bool)
	online   *bool
}

// NewProber creates a prober calling onStatus after every check.
func NewProber(checker HealthChecker, interval time.Duration, clk clock.Clock, onStatus func(online bool)) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Prober{checker: checker, clock: clk, interval: interval, onStatus: onStatus}
}

// Run probes once right away and then on every interval until ctx is
// cancelled.
func (p *Prober) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			p.Probe(ctx)
		}
	}
}

// Probe runs one health check and reports the result.
func (p *Prober) Probe(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	err := p.checker.Health(checkCtx)
	online := err == nil

	if p.online == nil || *p.online != online {
		if online {
			logger.Info("Remote reachable")
		} else {
			logger.Warn("Remote unreachable", logger.F("error", err))
		}
	}
	p.online = &online

	if p.onStatus != nil {
		p.onStatus(online)
	}
	return online
}
