// Package worker runs background maintenance: cache retention sweeps and
// optional pattern decay.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gavelhq/gavel/internal/cache"
	"github.com/gavelhq/gavel/internal/patterns"
)

// Sweeper periodically purges cache entries past the retention age and,
// when configured, decays patterns that have gone unobserved. Analysis
// requests never trigger retention work; it all happens here.
type Sweeper struct {
	cache    *cache.Store
	patterns *patterns.Store
	cfg      Config

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds sweeper configuration.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration

	// RetentionAge is the cache purge cutoff.
	RetentionAge time.Duration

	// DecayEnabled turns on pattern decay during sweeps.
	DecayEnabled bool

	// DecayFactor multiplies the confidence of stale patterns, in (0,1).
	DecayFactor float64

	// DecayAfter is how long a pattern may go unobserved before decaying.
	DecayAfter time.Duration
}

// NewSweeper creates a maintenance sweeper.
func NewSweeper(cacheStore *cache.Store, patternStore *patterns.Store, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.RetentionAge <= 0 {
		cfg.RetentionAge = 30 * 24 * time.Hour
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.9
	}
	if cfg.DecayAfter <= 0 {
		cfg.DecayAfter = 7 * 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		cache:    cacheStore,
		patterns: patternStore,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()

	slog.Info("maintenance sweeper started",
		"interval", s.cfg.Interval,
		"retention_age", s.cfg.RetentionAge,
		"decay_enabled", s.cfg.DecayEnabled,
	)
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep performs one maintenance pass. Exposed for on-demand runs via the
// maintenance endpoint.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.cache != nil {
		purged, err := s.cache.PurgeOlderThan(ctx, s.cfg.RetentionAge)
		if err != nil {
			slog.Error("cache purge failed", "error", err)
		} else if purged > 0 {
			slog.Info("cache entries purged", "count", purged)
		}
	}

	if s.cfg.DecayEnabled && s.patterns != nil {
		cutoff := time.Now().UTC().Add(-s.cfg.DecayAfter)
		decayed, err := s.patterns.Decay(ctx, s.cfg.DecayFactor, cutoff)
		if err != nil {
			slog.Error("pattern decay failed", "error", err)
		} else if decayed > 0 {
			slog.Info("patterns decayed", "count", decayed)
		}
	}
}

// Stop halts the sweep loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("maintenance sweeper stopped")
}
