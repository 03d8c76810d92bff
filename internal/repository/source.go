package repository

import (
	"context"

	"github.com/gavelhq/gavel/internal/domain"
)

// Source adapts a Repository into the domain.RecordSource consumed by the
// orchestrator, serving analysis samples from locally ingested records.
type Source struct {
	repo domain.Repository
}

// NewSource creates a record source backed by the repository.
func NewSource(repo domain.Repository) *Source {
	return &Source{repo: repo}
}

// Fetch returns up to limit records matching the filter.
func (s *Source) Fetch(ctx context.Context, tenantID string, f *domain.Filter, limit int) ([]*domain.Record, error) {
	return s.repo.RecordsByFilter(ctx, tenantID, f, limit)
}
