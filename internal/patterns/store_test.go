package patterns

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gavel-patterns-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewStore(repo)
}

func opportunityPattern(key string, confidence float64) *domain.Pattern {
	return &domain.Pattern{
		AnalysisType: domain.AnalysisOpportunityScan,
		PatternType:  domain.PatternOpportunity,
		Payload: domain.PatternPayload{
			Opportunity: &domain.OpportunityPayload{Dimension: "damage", Key: key},
		},
		Confidence: confidence,
	}
}

func TestUpsertInsertThenBlend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, opportunityPattern("hail", 0.8)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Second observation blends: (0.8 + 0.6) / 2 = 0.7, frequency 2.
	if err := store.Upsert(ctx, opportunityPattern("hail", 0.6)); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := store.TopByConfidence(ctx, domain.AnalysisOpportunityScan, 10)
	if err != nil {
		t.Fatalf("TopByConfidence failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(got))
	}
	if math.Abs(got[0].Confidence-0.7) > 1e-9 {
		t.Errorf("expected blended confidence 0.7, got %v", got[0].Confidence)
	}
	if got[0].Frequency != 2 {
		t.Errorf("expected frequency 2, got %d", got[0].Frequency)
	}
}

func TestUpsertDistinctIdentities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, opportunityPattern("hail", 0.6)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, opportunityPattern("flood", 0.6)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := store.TopByConfidence(ctx, domain.AnalysisOpportunityScan, 10)
	if err != nil {
		t.Fatalf("TopByConfidence failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 distinct patterns, got %d", len(got))
	}
	for _, p := range got {
		if p.Frequency != 1 {
			t.Errorf("distinct identity must not blend, got frequency %d", p.Frequency)
		}
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	bad := opportunityPattern("hail", 1.5)
	if err := store.Upsert(context.Background(), bad); err == nil {
		t.Error("expected error for confidence out of range")
	}

	mismatched := opportunityPattern("hail", 0.5)
	mismatched.PatternType = domain.PatternTrend
	if err := store.Upsert(context.Background(), mismatched); err == nil {
		t.Error("expected error for payload/type mismatch")
	}
}

// Repeated blending stays in [0,1] and converges toward the observed value.
func TestUpsertConfidenceConvergence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, opportunityPattern("hail", 0.1)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	prev := 0.1
	for i := 0; i < 10; i++ {
		if err := store.Upsert(ctx, opportunityPattern("hail", 0.9)); err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
		got, err := store.TopByConfidence(ctx, domain.AnalysisOpportunityScan, 1)
		if err != nil {
			t.Fatalf("TopByConfidence failed: %v", err)
		}
		conf := got[0].Confidence
		if conf < 0 || conf > 1 {
			t.Fatalf("confidence left [0,1]: %v", conf)
		}
		if conf <= prev {
			t.Fatalf("expected monotone climb toward 0.9, got %v after %v", conf, prev)
		}
		prev = conf
	}
	if prev <= 0.85 {
		t.Errorf("expected convergence near 0.9, got %v", prev)
	}
}

// Concurrent upserts of one identity must not lose observations.
func TestUpsertConcurrentSameIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Upsert(ctx, opportunityPattern("hail", 0.5)); err != nil {
				t.Errorf("concurrent upsert failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.TopByConfidence(ctx, domain.AnalysisOpportunityScan, 1)
	if err != nil {
		t.Fatalf("TopByConfidence failed: %v", err)
	}
	if got[0].Frequency != writers {
		t.Errorf("expected frequency %d, got %d", writers, got[0].Frequency)
	}
}

func TestByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, opportunityPattern("hail", 0.6)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	trend := &domain.Pattern{
		AnalysisType: domain.AnalysisTrendReport,
		PatternType:  domain.PatternTrend,
		Payload: domain.PatternPayload{
			Trend: &domain.TrendPayload{Bucket: "model-year", Direction: "up"},
		},
		Confidence: 0.5,
	}
	if err := store.Upsert(ctx, trend); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := store.ByType(ctx, domain.PatternTrend)
	if err != nil {
		t.Fatalf("ByType failed: %v", err)
	}
	if len(got) != 1 || got[0].PatternType != domain.PatternTrend {
		t.Errorf("expected exactly the trend pattern, got %d", len(got))
	}
}

func TestDecay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := opportunityPattern(fmt.Sprintf("key-%d", i), 0.8)
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	// Cutoff in the future catches everything just written.
	n, err := store.Decay(ctx, 0.5, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Decay failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 decayed patterns, got %d", n)
	}

	got, err := store.TopByConfidence(ctx, domain.AnalysisOpportunityScan, 10)
	if err != nil {
		t.Fatalf("TopByConfidence failed: %v", err)
	}
	for _, p := range got {
		if math.Abs(p.Confidence-0.4) > 1e-9 {
			t.Errorf("expected decayed confidence 0.4, got %v", p.Confidence)
		}
	}
}
