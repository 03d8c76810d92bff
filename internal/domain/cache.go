package domain

import (
	"context"
	"time"
)

// CacheEntry is one stored analysis payload. Entries are write-once except
// for access bookkeeping; Put appends a new entry per identity rather than
// overwriting, so an identity keeps a lightweight history trail.
type CacheEntry struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenantId"`
	Subject      string       `json:"subject"`
	AnalysisType AnalysisType `json:"analysisType"`
	Identity     string       `json:"identity"`

	// Payload is the serialized AnalysisResult.
	Payload []byte `json:"payload"`

	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	AccessCount    int64     `json:"accessCount"`
}

// Age returns how old the entry is relative to now.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// ResultCache stores computed analysis payloads keyed by canonical identity.
// Implementations must tolerate concurrent readers and writers. Errors are
// advisory: the orchestrator treats a failing cache as a miss.
type ResultCache interface {
	// Get returns the most recent entry for the identity, or nil, nil on
	// miss. A hit bumps AccessCount and LastAccessedAt as an observable
	// side effect.
	Get(ctx context.Context, tenantID, identity string) (*CacheEntry, error)

	// Put appends a new entry. Existing entries for the same identity are
	// kept; reads resolve to the most recent.
	Put(ctx context.Context, entry *CacheEntry) error

	// History returns a tenant's entries for a subject, most recent first,
	// capped at limit.
	History(ctx context.Context, tenantID, subject string, limit int) ([]*CacheEntry, error)

	// PurgeOlderThan deletes entries created before now-age and returns the
	// number removed. Runs on a schedule, not per request.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for the result cache's hot layer.
// The durable layer is always the repository; the hot layer serves repeat
// reads inside the validity window without a database round trip.
type CacheConfig struct {
	// HotLayer is "memory" or "redis".
	HotLayer string

	// Memory hot layer (Community tier)
	LocalMaxSize int

	// Redis hot layer (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HotTTL bounds how long a hot entry is served without consulting the
	// durable layer. Defaults to the orchestrator's validity window.
	HotTTL time.Duration
}
