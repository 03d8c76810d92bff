// Package domain defines the core interfaces and types for Gavel.
package domain

import (
	"context"
	"time"
)

// Repository is the persistence boundary for sale records, cache entries,
// learned patterns, and screen configurations. The schema behind it is an
// implementation detail; the core stays correct (if slower) when it is
// unavailable, degrading to compute-only operation.
type Repository interface {
	// Sale record operations. Records are append-only.
	SaveRecords(ctx context.Context, tenantID string, records []*Record) (int, error)
	RecordsByFilter(ctx context.Context, tenantID string, f *Filter, limit int) ([]*Record, error)
	LatestSaleTime(ctx context.Context, tenantID, subject string) (time.Time, error)

	// Cache entry operations. Inserts append; reads resolve most recent.
	InsertCacheEntry(ctx context.Context, e *CacheEntry) error
	LatestCacheEntry(ctx context.Context, tenantID, identity string) (*CacheEntry, error)
	TouchCacheEntry(ctx context.Context, id string, accessedAt time.Time) error
	CacheHistory(ctx context.Context, tenantID, subject string, limit int) ([]*CacheEntry, error)
	PurgeCacheBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Pattern operations. The PatternStore layers identity locking and
	// confidence blending on top of these.
	GetPattern(ctx context.Context, identity string) (*Pattern, error)
	InsertPattern(ctx context.Context, identity string, p *Pattern) error
	UpdatePattern(ctx context.Context, identity string, confidence float64, frequency int, lastSeen time.Time) error
	PatternsByType(ctx context.Context, patternType PatternType) ([]*Pattern, error)
	TopPatterns(ctx context.Context, analysisType AnalysisType, limit int) ([]*Pattern, error)
	DecayPatterns(ctx context.Context, factor float64, olderThan time.Time) (int64, error)

	// Screen configuration operations.
	SaveScreen(ctx context.Context, tenantID string, s *ScreenConfig) error
	ListScreens(ctx context.Context, tenantID string) ([]*ScreenConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
