// Package freshness decides when local data for a subject is recent enough
// and gates external refreshes by subscription tier.
package freshness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

var errNoRefreshSource = errors.New("no refresh source configured")

// Gate implements the freshness policy. Freshness is a best-effort
// optimization: a failed refresh never blocks a request, it only leaves the
// subject stale until the next window check.
type Gate struct {
	repo    domain.Repository
	source  domain.RefreshSource
	window  time.Duration
	timeout time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewGate creates a freshness gate. source may be nil when no external
// provider is wired; refreshes then report upstream-error.
func NewGate(repo domain.Repository, source domain.RefreshSource, window, timeout time.Duration) *Gate {
	if window <= 0 {
		window = 3 * 24 * time.Hour
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Gate{
		repo:    repo,
		source:  source,
		window:  window,
		timeout: timeout,
		now:     time.Now,
	}
}

// IsFresh reports whether at least one record for the subject falls inside
// the rolling freshness window. The boundary is inclusive: a record aged
// exactly one window is still fresh.
func (g *Gate) IsFresh(ctx context.Context, tenantID, subject string) (bool, error) {
	latest, err := g.repo.LatestSaleTime(ctx, tenantID, subject)
	if err != nil {
		return false, fmt.Errorf("freshness check failed: %w", err)
	}
	return freshAt(latest, g.now().UTC(), g.window), nil
}

// freshAt holds the boundary rule in one place.
func freshAt(latest, now time.Time, window time.Duration) bool {
	if latest.IsZero() {
		return false
	}
	cutoff := now.Add(-window)
	return !latest.Before(cutoff)
}

// CanRefresh reports whether a tier is entitled to trigger external
// refreshes. Staleness never overrides a denial.
func (g *Gate) CanRefresh(tier domain.Tier) bool {
	return tier.RefreshEntitled()
}

// Refresh attempts to pull fresh records for the subject from the external
// provider. Invoked only when the subject is stale and the tier qualifies;
// the gate re-checks entitlement regardless. The subject transitions to
// fresh only on a non-empty successful fetch.
func (g *Gate) Refresh(ctx context.Context, tenantID, subject string, f *domain.Filter, tier domain.Tier) domain.RefreshOutcome {
	if !g.CanRefresh(tier) {
		return domain.RefreshOutcome{Status: domain.RefreshDenied}
	}
	if g.source == nil {
		return domain.RefreshOutcome{Status: domain.RefreshUpstreamError, Err: errNoRefreshSource}
	}

	now := g.now().UTC()
	windowStart, err := g.repo.LatestSaleTime(ctx, tenantID, subject)
	if err != nil || windowStart.IsZero() {
		windowStart = now.Add(-g.window)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	records, err := g.source.FetchFresh(fetchCtx, subject, windowStart, now)
	if err != nil {
		slog.Warn("refresh fetch failed",
			"tenant_id", tenantID,
			"subject", subject,
			"error", err,
		)
		return domain.RefreshOutcome{Status: domain.RefreshUpstreamError, Err: err}
	}
	if len(records) == 0 {
		return domain.RefreshOutcome{Status: domain.RefreshNoNewData}
	}

	saved, err := g.repo.SaveRecords(ctx, tenantID, records)
	if err != nil {
		slog.Warn("refresh ingest failed",
			"tenant_id", tenantID,
			"subject", subject,
			"fetched", len(records),
			"error", err,
		)
		return domain.RefreshOutcome{Status: domain.RefreshUpstreamError, Err: err}
	}

	slog.Info("subject refreshed",
		"tenant_id", tenantID,
		"subject", subject,
		"records", saved,
	)
	return domain.RefreshOutcome{Status: domain.RefreshRefreshed, Count: saved}
}
