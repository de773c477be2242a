// Package sweeper runs the background cleanup passes that keep the
// registry and the credential store consistent: expired records, orphan
// records and directories, invalid credential directories, and
// abandoned in-flight sessions. Each pass runs on its own fixed
// interval.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/pairlink/core/config"
	"github.com/pairlink/core/internal/credstore"
	"github.com/pairlink/core/internal/registry"
	"github.com/pairlink/core/logging"
	"github.com/sirupsen/logrus"
)

// IdleReaper force-stops active sessions that never got scanned. The
// orchestrator implements it.
type IdleReaper interface {
	ReapIdle(maxAge time.Duration) int
}

// Sweeper owns the cleanup schedule.
type Sweeper struct {
	cfg    *config.Config
	reg    *registry.Registry
	creds  *credstore.Store
	reaper IdleReaper
	logger *logrus.Entry
}

// New creates a Sweeper.
func New(cfg *config.Config, reg *registry.Registry, creds *credstore.Store, reaper IdleReaper) *Sweeper {
	return &Sweeper{
		cfg:    cfg,
		reg:    reg,
		creds:  creds,
		reaper: reaper,
		logger: logging.NewLogger("sweeper"),
	}
}

// Run starts all four sweep loops and blocks until the context is
// cancelled. Each loop does one pass immediately, then on its interval.
func (s *Sweeper) Run(ctx context.Context) {
	var wg sync.WaitGroup

	loops := []struct {
		name     string
		interval time.Duration
		sweep    func() int
	}{
		{"expired", s.cfg.Sweeps.ExpiredInterval.Duration, s.SweepExpired},
		{"orphan", s.cfg.Sweeps.OrphanInterval.Duration, s.SweepOrphans},
		{"invalid", s.cfg.Sweeps.InvalidInterval.Duration, s.SweepInvalid},
		{"unscanned", s.cfg.Sweeps.UnscannedInterval.Duration, s.SweepUnscanned},
	}

	for _, loop := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration, sweep func() int) {
			defer wg.Done()
			s.loop(ctx, name, interval, sweep)
		}(loop.name, loop.interval, loop.sweep)
	}

	wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration, sweep func() int) {
	run := func() {
		if removed := sweep(); removed > 0 {
			s.logger.WithFields(logrus.Fields{"sweep": name, "removed": removed}).Info("Sweep removed sessions")
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
