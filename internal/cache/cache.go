// Package cache implements the analysis result cache.
//
// The durable layer is the repository's analysis_cache table: puts append,
// reads resolve to the most recent entry per identity, and history survives
// restarts. A hot layer (in-process LRU or Redis) fronts reads inside the
// validity window so repeat requests skip the database lookup.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// Hot is the fast lookup layer in front of the durable store. Misses and
// errors both fall through to the repository.
type Hot interface {
	Get(ctx context.Context, tenantID, key string) ([]byte, error)
	Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store implements domain.ResultCache over a repository plus a hot layer.
type Store struct {
	repo   domain.Repository
	hot    Hot
	hotTTL time.Duration
}

// New creates a result cache based on configuration.
func New(cfg domain.CacheConfig, repo domain.Repository) (*Store, error) {
	hotTTL := cfg.HotTTL
	if hotTTL == 0 {
		hotTTL = 30 * time.Minute
	}

	var hot Hot
	switch cfg.HotLayer {
	case "", "memory":
		hot = NewLRUHot(cfg.LocalMaxSize)
	case "redis":
		redisHot, err := NewRedisHot(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis hot layer: %w", err)
		}
		hot = redisHot
	default:
		return nil, fmt.Errorf("unsupported hot layer: %s", cfg.HotLayer)
	}

	return &Store{
		repo:   repo,
		hot:    hot,
		hotTTL: hotTTL,
	}, nil
}

// Get returns the most recent entry for the identity, or nil, nil on miss.
// A hit bumps access bookkeeping in the durable store; bookkeeping failures
// are logged and do not fail the read.
func (s *Store) Get(ctx context.Context, tenantID, identity string) (*domain.CacheEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	now := time.Now().UTC()

	// Hot layer first. The hot copy is re-primed with the bumped
	// bookkeeping so the next hot hit keeps counting from it.
	if raw, err := s.hot.Get(ctx, tenantID, identity); err == nil && raw != nil {
		var entry domain.CacheEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			s.touch(ctx, &entry, now)
			s.populateHot(ctx, &entry)
			return &entry, nil
		}
		// Corrupt hot entry; drop it and fall through
		_ = s.hot.Delete(ctx, tenantID, identity)
	}

	entry, err := s.repo.LatestCacheEntry(ctx, tenantID, identity)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	s.touch(ctx, entry, now)
	s.populateHot(ctx, entry)
	return entry, nil
}

// touch records the hit on the durable entry. The returned copy always
// reflects the bump even when the durable update fails.
func (s *Store) touch(ctx context.Context, entry *domain.CacheEntry, now time.Time) {
	if err := s.repo.TouchCacheEntry(ctx, entry.ID, now); err != nil {
		slog.Warn("cache access bookkeeping failed",
			"entry_id", entry.ID,
			"error", err,
		)
	}
	entry.AccessCount++
	entry.LastAccessedAt = now
}

// Put appends a new entry to the durable store and primes the hot layer.
func (s *Store) Put(ctx context.Context, entry *domain.CacheEntry) error {
	if entry.TenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	if err := s.repo.InsertCacheEntry(ctx, entry); err != nil {
		return err
	}

	s.populateHot(ctx, entry)
	return nil
}

func (s *Store) populateHot(ctx context.Context, entry *domain.CacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.hot.Set(ctx, entry.TenantID, entry.Identity, raw, s.hotTTL); err != nil {
		slog.Debug("hot layer set failed",
			"identity", entry.Identity,
			"error", err,
		)
	}
}

// History returns a tenant's entries for a subject, most recent first.
func (s *Store) History(ctx context.Context, tenantID, subject string, limit int) ([]*domain.CacheEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	return s.repo.CacheHistory(ctx, tenantID, subject, limit)
}

// PurgeOlderThan deletes durable entries older than age. Hot entries expire
// on their own TTL.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	return s.repo.PurgeCacheBefore(ctx, cutoff)
}

// Ping checks both layers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.hot.Ping(ctx); err != nil {
		return fmt.Errorf("hot layer ping failed: %w", err)
	}
	return s.repo.Ping(ctx)
}

// Close closes the hot layer. The repository is owned by the caller.
func (s *Store) Close() error {
	return s.hot.Close()
}
