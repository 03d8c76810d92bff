// Package patterns implements the shared store of learned market patterns.
//
// The store is process-wide state: every analysis reads the current patterns
// and blends its own observations back in. Later analyses therefore see
// slightly different pattern state than earlier ones. That drift is the
// point, not a bug.
package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// Store persists patterns through the repository and serializes writes per
// pattern identity so concurrent upserts of the same identity never lose an
// observation.
type Store struct {
	repo domain.Repository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a pattern store over the repository.
func NewStore(repo domain.Repository) *Store {
	return &Store{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one pattern identity.
func (s *Store) lockFor(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		s.locks[identity] = l
	}
	return l
}

// Upsert blends an observation into the stored pattern with the same
// identity, or inserts it when absent. Blending averages the stored and
// observed confidence and increments frequency. The read-modify-write is
// atomic per identity.
func (s *Store) Upsert(ctx context.Context, p *domain.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	identity := p.Identity()
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.GetPattern(ctx, identity)
	if err != nil {
		return fmt.Errorf("pattern lookup failed: %w", err)
	}

	observedAt := p.LastSeen
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	if existing == nil {
		fresh := *p
		fresh.Frequency = 1
		fresh.FirstSeen = observedAt
		fresh.LastSeen = observedAt
		if err := s.repo.InsertPattern(ctx, identity, &fresh); err != nil {
			return fmt.Errorf("pattern insert failed: %w", err)
		}
		slog.Debug("pattern learned", "identity", identity, "confidence", fresh.Confidence)
		return nil
	}

	blended := clamp01((existing.Confidence + p.Confidence) / 2)
	frequency := existing.Frequency + 1

	if err := s.repo.UpdatePattern(ctx, identity, blended, frequency, observedAt); err != nil {
		return fmt.Errorf("pattern update failed: %w", err)
	}
	slog.Debug("pattern reinforced",
		"identity", identity,
		"confidence", blended,
		"frequency", frequency,
	)
	return nil
}

// TopByConfidence returns the strongest patterns for an analysis type.
func (s *Store) TopByConfidence(ctx context.Context, analysisType domain.AnalysisType, limit int) ([]*domain.Pattern, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.TopPatterns(ctx, analysisType, limit)
}

// ByType returns all patterns of one pattern type.
func (s *Store) ByType(ctx context.Context, patternType domain.PatternType) ([]*domain.Pattern, error) {
	return s.repo.PatternsByType(ctx, patternType)
}

// Decay multiplies the confidence of patterns last seen before the cutoff
// by factor. Runs only when explicitly requested.
func (s *Store) Decay(ctx context.Context, factor float64, olderThan time.Time) (int64, error) {
	n, err := s.repo.DecayPatterns(ctx, factor, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("patterns decayed", "count", n, "factor", factor)
	}
	return n, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
