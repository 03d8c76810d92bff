// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRecords stores a batch of sale records with tenant isolation.
// Returns the number of records written.
func (r *SQLRepository) SaveRecords(ctx context.Context, tenantID string, records []*domain.Record) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO sale_records (
			id, tenant_id, subject, make, model, year,
			damage, location, source, price, status, sold_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	saved := 0
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.ID, tenantID, rec.Subject(), rec.Make, rec.Model, rec.Year,
			rec.Damage, rec.Location, rec.Source, rec.Price, rec.Status,
			rec.SoldAt, rec.CreatedAt,
		); err != nil {
			return 0, err
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return saved, nil
}

// RecordsByFilter retrieves sale records matching the filter, most recent
// first, capped at limit.
func (r *SQLRepository) RecordsByFilter(ctx context.Context, tenantID string, f *domain.Filter, limit int) ([]*domain.Record, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 1000
	}

	query, args := buildRecordQuery(tenantID, f, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.Make, &rec.Model, &rec.Year,
			&rec.Damage, &rec.Location, &rec.Source, &rec.Price, &rec.Status,
			&rec.SoldAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// buildRecordQuery assembles the WHERE clause from the sparse filter.
func buildRecordQuery(tenantID string, f *domain.Filter, limit int) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, tenant_id, make, model, year,
			   damage, location, source, price, status,
			   sold_at, created_at
		FROM sale_records
		WHERE tenant_id = ?
	`)
	args := []any{tenantID}

	if f != nil {
		addInClause(&sb, &args, "make", f.Makes)
		addInClause(&sb, &args, "model", f.Models)
		addInClause(&sb, &args, "damage", f.DamageTypes)
		addInClause(&sb, &args, "location", f.Locations)

		if f.YearFrom > 0 {
			sb.WriteString(" AND year >= ?")
			args = append(args, f.YearFrom)
		}
		if f.YearTo > 0 {
			sb.WriteString(" AND year <= ?")
			args = append(args, f.YearTo)
		}
		if f.PriceMin > 0 {
			sb.WriteString(" AND price >= ?")
			args = append(args, f.PriceMin)
		}
		if f.PriceMax > 0 {
			sb.WriteString(" AND price <= ?")
			args = append(args, f.PriceMax)
		}
	}

	sb.WriteString(" ORDER BY sold_at DESC LIMIT ?")
	args = append(args, limit)

	return sb.String(), args
}

func addInClause(sb *strings.Builder, args *[]any, column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, strings.ToLower(strings.TrimSpace(v)))
	}
	fmt.Fprintf(sb, " AND lower(%s) IN (%s)", column, strings.Join(placeholders, ", "))
}

// LatestSaleTime returns the newest sale timestamp for a subject, or the
// zero time when no records exist.
func (r *SQLRepository) LatestSaleTime(ctx context.Context, tenantID, subject string) (time.Time, error) {
	if tenantID == "" {
		return time.Time{}, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT sold_at FROM sale_records
		WHERE tenant_id = ? AND subject = ?
		ORDER BY sold_at DESC
		LIMIT 1
	`

	var soldAt time.Time
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subject).Scan(&soldAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return soldAt, nil
}

// InsertCacheEntry appends a cache entry. Existing entries for the same
// identity are never overwritten.
func (r *SQLRepository) InsertCacheEntry(ctx context.Context, e *domain.CacheEntry) error {
	if e.TenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO analysis_cache (
			id, tenant_id, subject, analysis_type, identity,
			payload, created_at, last_accessed_at, access_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		e.ID, e.TenantID, e.Subject, e.AnalysisType, e.Identity,
		e.Payload, e.CreatedAt, e.LastAccessedAt, e.AccessCount,
	)
	return err
}

// LatestCacheEntry retrieves the most recent entry for an identity, or nil
// when none exists.
func (r *SQLRepository) LatestCacheEntry(ctx context.Context, tenantID, identity string) (*domain.CacheEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, subject, analysis_type, identity,
			   payload, created_at, last_accessed_at, access_count
		FROM analysis_cache
		WHERE tenant_id = ? AND identity = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var e domain.CacheEntry
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, identity).Scan(
		&e.ID, &e.TenantID, &e.Subject, &e.AnalysisType, &e.Identity,
		&e.Payload, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// TouchCacheEntry bumps access bookkeeping for a hit.
func (r *SQLRepository) TouchCacheEntry(ctx context.Context, id string, accessedAt time.Time) error {
	query := `
		UPDATE analysis_cache
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), accessedAt, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CacheHistory retrieves a tenant's entries for a subject, most recent first.
func (r *SQLRepository) CacheHistory(ctx context.Context, tenantID, subject string, limit int) ([]*domain.CacheEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, subject, analysis_type, identity,
			   payload, created_at, last_accessed_at, access_count
		FROM analysis_cache
		WHERE tenant_id = ? AND subject = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.Subject, &e.AnalysisType, &e.Identity,
			&e.Payload, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// PurgeCacheBefore deletes cache entries created before the cutoff.
func (r *SQLRepository) PurgeCacheBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		r.rebind(`DELETE FROM analysis_cache WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetPattern retrieves a pattern by identity, or nil when absent.
func (r *SQLRepository) GetPattern(ctx context.Context, identity string) (*domain.Pattern, error) {
	query := `
		SELECT analysis_type, pattern_type, payload, confidence, frequency, first_seen, last_seen
		FROM market_patterns
		WHERE identity = ?
	`

	var p domain.Pattern
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), identity).Scan(
		&p.AnalysisType, &p.PatternType, &payload,
		&p.Confidence, &p.Frequency, &p.FirstSeen, &p.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return nil, fmt.Errorf("failed to parse pattern payload: %w", err)
	}
	return &p, nil
}

// InsertPattern stores a new pattern under its identity.
func (r *SQLRepository) InsertPattern(ctx context.Context, identity string, p *domain.Pattern) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO market_patterns (
			identity, analysis_type, pattern_type, payload,
			confidence, frequency, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		identity, p.AnalysisType, p.PatternType, string(payload),
		p.Confidence, p.Frequency, p.FirstSeen, p.LastSeen,
	)
	return err
}

// UpdatePattern rewrites the mutable fields of an existing pattern.
func (r *SQLRepository) UpdatePattern(ctx context.Context, identity string, confidence float64, frequency int, lastSeen time.Time) error {
	query := `
		UPDATE market_patterns
		SET confidence = ?, frequency = ?, last_seen = ?
		WHERE identity = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), confidence, frequency, lastSeen, identity)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// PatternsByType retrieves all patterns of a pattern type.
func (r *SQLRepository) PatternsByType(ctx context.Context, patternType domain.PatternType) ([]*domain.Pattern, error) {
	query := `
		SELECT analysis_type, pattern_type, payload, confidence, frequency, first_seen, last_seen
		FROM market_patterns
		WHERE pattern_type = ?
		ORDER BY confidence DESC, frequency DESC
	`

	return r.queryPatterns(ctx, query, patternType)
}

// TopPatterns retrieves the strongest patterns for an analysis type,
// ordered by confidence, ties broken by frequency.
func (r *SQLRepository) TopPatterns(ctx context.Context, analysisType domain.AnalysisType, limit int) ([]*domain.Pattern, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT analysis_type, pattern_type, payload, confidence, frequency, first_seen, last_seen
		FROM market_patterns
		WHERE analysis_type = ?
		ORDER BY confidence DESC, frequency DESC
		LIMIT ?
	`

	return r.queryPatterns(ctx, query, analysisType, limit)
}

func (r *SQLRepository) queryPatterns(ctx context.Context, query string, args ...any) ([]*domain.Pattern, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*domain.Pattern
	for rows.Next() {
		var p domain.Pattern
		var payload string
		if err := rows.Scan(
			&p.AnalysisType, &p.PatternType, &payload,
			&p.Confidence, &p.Frequency, &p.FirstSeen, &p.LastSeen,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
			return nil, fmt.Errorf("failed to parse pattern payload: %w", err)
		}
		patterns = append(patterns, &p)
	}

	return patterns, rows.Err()
}

// DecayPatterns scales down confidence for patterns not observed since the
// cutoff. Returns the number of patterns touched.
func (r *SQLRepository) DecayPatterns(ctx context.Context, factor float64, olderThan time.Time) (int64, error) {
	if factor <= 0 || factor >= 1 {
		return 0, fmt.Errorf("%w: decay factor must be in (0,1), got %v", ErrInvalidInput, factor)
	}

	query := `
		UPDATE market_patterns
		SET confidence = confidence * ?
		WHERE last_seen < ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), factor, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SaveScreen stores a screen configuration with tenant isolation.
func (r *SQLRepository) SaveScreen(ctx context.Context, tenantID string, s *domain.ScreenConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if s.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screens (
			id, tenant_id, name, description, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, tenantID, s.Name, s.Description, s.Expression, enabled, now, now,
	)
	return err
}

// ListScreens retrieves all active screen configurations for a tenant.
func (r *SQLRepository) ListScreens(ctx context.Context, tenantID string) ([]*domain.ScreenConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, enabled, created_at, updated_at
		FROM screens
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var screens []*domain.ScreenConfig
	for rows.Next() {
		var s domain.ScreenConfig
		var enabled int
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.Name, &s.Description, &s.Expression,
			&enabled, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		s.Enabled = enabled == 1
		screens = append(screens, &s)
	}

	return screens, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
