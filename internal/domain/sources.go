package domain

import (
	"context"
	"errors"
	"time"
)

// ErrTransient marks an upstream failure that is expected to clear on its
// own. Callers proceed with local data rather than surfacing it, unless no
// local data exists either.
var ErrTransient = errors.New("transient upstream error")

// RecordSource supplies sale records matching a filter, capped at limit.
// An empty result is distinct from a transient failure.
type RecordSource interface {
	Fetch(ctx context.Context, tenantID string, f *Filter, limit int) ([]*Record, error)
}

// RefreshSource pulls fresh records for a subject from the external auction
// data provider. Calls are bounded by the caller's context deadline.
type RefreshSource interface {
	FetchFresh(ctx context.Context, subject string, windowStart, windowEnd time.Time) ([]*Record, error)
}

// InsightWriter phrases an analysis result as human-readable prose.
// Best-effort: its absence or failure never changes structured output.
type InsightWriter interface {
	Describe(ctx context.Context, result *AnalysisResult) (string, error)
}

// RefreshStatus is the explicit outcome of a refresh attempt. Degraded
// outcomes are part of the return type, not swallowed.
type RefreshStatus string

const (
	RefreshRefreshed     RefreshStatus = "refreshed"
	RefreshNoNewData     RefreshStatus = "no-new-data"
	RefreshDenied        RefreshStatus = "denied"
	RefreshUpstreamError RefreshStatus = "upstream-error"
)

// RefreshOutcome reports what a refresh attempt did. Count is the number of
// records ingested when Status is RefreshRefreshed.
type RefreshOutcome struct {
	Status RefreshStatus `json:"status"`
	Count  int           `json:"count,omitempty"`
	Err    error         `json:"-"`
}
