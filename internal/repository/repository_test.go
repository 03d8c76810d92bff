package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gavel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testRecord(id, mk string, year int, price float64, soldAt time.Time) *domain.Record {
	return &domain.Record{
		ID:        id,
		Make:      mk,
		Model:     "f-150",
		Year:      year,
		Damage:    "front-end",
		Location:  "dallas",
		Source:    "copart",
		Price:     price,
		Status:    domain.SaleSold,
		SoldAt:    soldAt,
		CreatedAt: soldAt,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndFilterRecords", func(t *testing.T) {
		records := []*domain.Record{
			testRecord("rec-001", "ford", 2018, 8000, now.Add(-time.Hour)),
			testRecord("rec-002", "ford", 2019, 9000, now.Add(-2*time.Hour)),
			testRecord("rec-003", "toyota", 2018, 11000, now.Add(-3*time.Hour)),
		}

		saved, err := repo.SaveRecords(ctx, tenantID, records)
		if err != nil {
			t.Fatalf("SaveRecords failed: %v", err)
		}
		if saved != 3 {
			t.Errorf("expected 3 saved, got %d", saved)
		}

		got, err := repo.RecordsByFilter(ctx, tenantID, &domain.Filter{Makes: []string{"Ford"}}, 100)
		if err != nil {
			t.Fatalf("RecordsByFilter failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 ford records, got %d", len(got))
		}
		// Most recent first
		if got[0].ID != "rec-001" {
			t.Errorf("expected rec-001 first, got %s", got[0].ID)
		}
	})

	t.Run("FilterByYearAndPrice", func(t *testing.T) {
		got, err := repo.RecordsByFilter(ctx, tenantID, &domain.Filter{
			YearFrom: 2019,
			PriceMin: 8500,
		}, 100)
		if err != nil {
			t.Fatalf("RecordsByFilter failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "rec-002" {
			t.Errorf("expected only rec-002, got %d records", len(got))
		}
	})

	t.Run("FilterLimit", func(t *testing.T) {
		got, err := repo.RecordsByFilter(ctx, tenantID, nil, 2)
		if err != nil {
			t.Fatalf("RecordsByFilter failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected limit of 2, got %d", len(got))
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		got, err := repo.RecordsByFilter(ctx, "tenant-002", nil, 100)
		if err != nil {
			t.Fatalf("RecordsByFilter failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no records for other tenant, got %d", len(got))
		}
	})

	t.Run("LatestSaleTime", func(t *testing.T) {
		latest, err := repo.LatestSaleTime(ctx, tenantID, "ford|f-150|2018")
		if err != nil {
			t.Fatalf("LatestSaleTime failed: %v", err)
		}
		if latest.IsZero() {
			t.Fatal("expected a timestamp for known subject")
		}

		latest, err = repo.LatestSaleTime(ctx, tenantID, "honda|civic|2020")
		if err != nil {
			t.Fatalf("LatestSaleTime failed: %v", err)
		}
		if !latest.IsZero() {
			t.Errorf("expected zero time for unknown subject, got %v", latest)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := repo.SaveRecords(ctx, "", []*domain.Record{testRecord("x", "ford", 2018, 1, now)}); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.RecordsByFilter(ctx, "", nil, 10); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestCacheEntries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC().Truncate(time.Second)

	entry := func(id, identity string, createdAt time.Time) *domain.CacheEntry {
		return &domain.CacheEntry{
			ID:             id,
			TenantID:       tenantID,
			Subject:        "ford|f-150|2018",
			AnalysisType:   domain.AnalysisMarketOverview,
			Identity:       identity,
			Payload:        []byte(`{"ok":true}`),
			CreatedAt:      createdAt,
			LastAccessedAt: createdAt,
		}
	}

	t.Run("AppendAndLatest", func(t *testing.T) {
		if err := repo.InsertCacheEntry(ctx, entry("ce-001", "id-a", now.Add(-2*time.Hour))); err != nil {
			t.Fatalf("InsertCacheEntry failed: %v", err)
		}
		if err := repo.InsertCacheEntry(ctx, entry("ce-002", "id-a", now.Add(-time.Hour))); err != nil {
			t.Fatalf("InsertCacheEntry failed: %v", err)
		}

		got, err := repo.LatestCacheEntry(ctx, tenantID, "id-a")
		if err != nil {
			t.Fatalf("LatestCacheEntry failed: %v", err)
		}
		if got == nil || got.ID != "ce-002" {
			t.Fatalf("expected most recent entry ce-002, got %+v", got)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		got, err := repo.LatestCacheEntry(ctx, tenantID, "id-missing")
		if err != nil {
			t.Fatalf("LatestCacheEntry failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil on miss, got %+v", got)
		}
	})

	t.Run("Touch", func(t *testing.T) {
		accessed := now.Add(time.Minute)
		if err := repo.TouchCacheEntry(ctx, "ce-002", accessed); err != nil {
			t.Fatalf("TouchCacheEntry failed: %v", err)
		}

		got, _ := repo.LatestCacheEntry(ctx, tenantID, "id-a")
		if got.AccessCount != 1 {
			t.Errorf("expected access count 1, got %d", got.AccessCount)
		}

		if err := repo.TouchCacheEntry(ctx, "ce-missing", accessed); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("History", func(t *testing.T) {
		history, err := repo.CacheHistory(ctx, tenantID, "ford|f-150|2018", 10)
		if err != nil {
			t.Fatalf("CacheHistory failed: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(history))
		}
		if history[0].ID != "ce-002" {
			t.Errorf("expected most recent first, got %s", history[0].ID)
		}
	})

	t.Run("Purge", func(t *testing.T) {
		purged, err := repo.PurgeCacheBefore(ctx, now.Add(-90*time.Minute))
		if err != nil {
			t.Fatalf("PurgeCacheBefore failed: %v", err)
		}
		if purged != 1 {
			t.Errorf("expected 1 purged entry, got %d", purged)
		}

		history, _ := repo.CacheHistory(ctx, tenantID, "ford|f-150|2018", 10)
		if len(history) != 1 {
			t.Errorf("expected 1 entry after purge, got %d", len(history))
		}
	})
}

func TestPatterns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	pattern := &domain.Pattern{
		AnalysisType: domain.AnalysisOpportunityScan,
		PatternType:  domain.PatternOpportunity,
		Payload: domain.PatternPayload{
			Opportunity: &domain.OpportunityPayload{Dimension: "damage", Key: "hail"},
		},
		Confidence: 0.8,
		Frequency:  1,
		FirstSeen:  now,
		LastSeen:   now,
	}
	identity := pattern.Identity()

	t.Run("InsertAndGet", func(t *testing.T) {
		if err := repo.InsertPattern(ctx, identity, pattern); err != nil {
			t.Fatalf("InsertPattern failed: %v", err)
		}

		got, err := repo.GetPattern(ctx, identity)
		if err != nil {
			t.Fatalf("GetPattern failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected pattern, got nil")
		}
		if got.Payload.Opportunity == nil || got.Payload.Opportunity.Key != "hail" {
			t.Errorf("payload round trip failed: %+v", got.Payload)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.GetPattern(ctx, "missing-identity")
		if err != nil {
			t.Fatalf("GetPattern failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for missing pattern, got %+v", got)
		}
	})

	t.Run("Update", func(t *testing.T) {
		if err := repo.UpdatePattern(ctx, identity, 0.7, 2, now.Add(time.Hour)); err != nil {
			t.Fatalf("UpdatePattern failed: %v", err)
		}

		got, _ := repo.GetPattern(ctx, identity)
		if got.Confidence != 0.7 || got.Frequency != 2 {
			t.Errorf("expected confidence 0.7 frequency 2, got %v/%d", got.Confidence, got.Frequency)
		}
	})

	t.Run("TopPatternsTieBreak", func(t *testing.T) {
		other := &domain.Pattern{
			AnalysisType: domain.AnalysisOpportunityScan,
			PatternType:  domain.PatternOpportunity,
			Payload: domain.PatternPayload{
				Opportunity: &domain.OpportunityPayload{Dimension: "location", Key: "dallas"},
			},
			Confidence: 0.7,
			Frequency:  9,
			FirstSeen:  now,
			LastSeen:   now,
		}
		if err := repo.InsertPattern(ctx, other.Identity(), other); err != nil {
			t.Fatalf("InsertPattern failed: %v", err)
		}

		top, err := repo.TopPatterns(ctx, domain.AnalysisOpportunityScan, 10)
		if err != nil {
			t.Fatalf("TopPatterns failed: %v", err)
		}
		if len(top) != 2 {
			t.Fatalf("expected 2 patterns, got %d", len(top))
		}
		// Equal confidence: higher frequency wins
		if top[0].Frequency != 9 {
			t.Errorf("expected frequency tie-break, got frequency %d first", top[0].Frequency)
		}
	})

	t.Run("Decay", func(t *testing.T) {
		touched, err := repo.DecayPatterns(ctx, 0.5, now.Add(30*time.Minute))
		if err != nil {
			t.Fatalf("DecayPatterns failed: %v", err)
		}
		// Only the pattern last seen at `now` qualifies; the updated one
		// was bumped to now+1h.
		if touched != 1 {
			t.Errorf("expected 1 decayed pattern, got %d", touched)
		}

		if _, err := repo.DecayPatterns(ctx, 1.5, now); err == nil {
			t.Error("expected error for out-of-range decay factor")
		}
	})
}

func TestScreens(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	screen := &domain.ScreenConfig{
		ID:         "screen-001",
		Name:       "high-margin",
		Expression: "profit_potential > 1000.0 && sample_size >= 30",
		Enabled:    true,
	}

	t.Run("SaveAndList", func(t *testing.T) {
		if err := repo.SaveScreen(ctx, tenantID, screen); err != nil {
			t.Fatalf("SaveScreen failed: %v", err)
		}

		screens, err := repo.ListScreens(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListScreens failed: %v", err)
		}
		if len(screens) != 1 || screens[0].Expression != screen.Expression {
			t.Fatalf("unexpected screens: %+v", screens)
		}
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		screen.Expression = "profit_potential > 2000.0"
		if err := repo.SaveScreen(ctx, tenantID, screen); err != nil {
			t.Fatalf("SaveScreen failed: %v", err)
		}

		screens, _ := repo.ListScreens(ctx, tenantID)
		if len(screens) != 1 {
			t.Fatalf("expected single screen after upsert, got %d", len(screens))
		}
		if screens[0].Expression != "profit_potential > 2000.0" {
			t.Errorf("expected updated expression, got %q", screens[0].Expression)
		}
	})

	t.Run("DisabledExcluded", func(t *testing.T) {
		disabled := &domain.ScreenConfig{
			ID:         "screen-002",
			Name:       "off",
			Expression: "confidence > 0.5",
			Enabled:    false,
		}
		if err := repo.SaveScreen(ctx, tenantID, disabled); err != nil {
			t.Fatalf("SaveScreen failed: %v", err)
		}

		screens, _ := repo.ListScreens(ctx, tenantID)
		if len(screens) != 1 {
			t.Errorf("disabled screen should be excluded, got %d screens", len(screens))
		}
	})
}
