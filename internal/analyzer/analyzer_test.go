package analyzer

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

func batch(n int, mk string, year int, price float64, mutate func(i int, r *domain.Record)) []*domain.Record {
	records := make([]*domain.Record, 0, n)
	for i := 0; i < n; i++ {
		r := &domain.Record{
			ID:     fmt.Sprintf("%s-%d-%d", mk, year, i),
			Make:   mk,
			Model:  "model",
			Year:   year,
			Price:  price,
			Status: domain.SaleSold,
			SoldAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		}
		if mutate != nil {
			mutate(i, r)
		}
		records = append(records, r)
	}
	return records
}

func TestAnalyzeEmptyInput(t *testing.T) {
	result := New().Analyze(nil, nil)

	if !result.Empty {
		t.Error("expected explicit empty marker for zero records")
	}
	if result.Summary.TotalRecords != 0 || len(result.Opportunities) != 0 {
		t.Error("empty result must carry zero counts and no opportunities")
	}
}

func TestSummaryExcludesNonPositivePrices(t *testing.T) {
	records := batch(4, "ford", 2018, 10000, func(i int, r *domain.Record) {
		if i >= 2 {
			r.Price = 0 // unpriced, still counted in totals
		}
	})

	result := New().Analyze(records, nil)

	if result.Summary.TotalRecords != 4 {
		t.Errorf("expected 4 total records, got %d", result.Summary.TotalRecords)
	}
	if result.Summary.PricedRecords != 2 {
		t.Errorf("expected 2 priced records, got %d", result.Summary.PricedRecords)
	}
	if result.Summary.MeanPrice != 10000 {
		t.Errorf("expected mean over priced records only, got %v", result.Summary.MeanPrice)
	}
}

func TestSummaryAllUnpriced(t *testing.T) {
	records := batch(3, "ford", 2018, 0, nil)

	result := New().Analyze(records, nil)

	if result.Empty {
		t.Error("unpriced records are still a non-empty sample")
	}
	s := result.Summary
	if s.MeanPrice != 0 || s.MinPrice != 0 || s.MaxPrice != 0 {
		t.Errorf("expected zeroed price stats, got mean=%v min=%v max=%v", s.MeanPrice, s.MinPrice, s.MaxPrice)
	}
	if len(result.Opportunities) != 0 {
		t.Error("no opportunities without priced partitions")
	}
}

// 30 Fords averaging $8,000 against 25 Toyotas averaging $11,000: the Ford
// partition undercuts the overall mean by about $1,360 per vehicle.
func TestAnalyzeFordToyotaScenario(t *testing.T) {
	records := append(
		batch(30, "ford", 2018, 8000, nil),
		batch(25, "toyota", 2018, 11000, nil)...,
	)

	result := New().Analyze(records, nil)

	wantMean := (30*8000.0 + 25*11000.0) / 55.0
	if math.Abs(result.Summary.MeanPrice-wantMean) > 0.01 {
		t.Errorf("expected overall mean %.2f, got %.2f", wantMean, result.Summary.MeanPrice)
	}

	var makeYear []domain.Opportunity
	for _, opp := range result.Opportunities {
		if opp.Dimension == DimensionMakeYear {
			makeYear = append(makeYear, opp)
		}
	}
	if len(makeYear) != 1 {
		t.Fatalf("expected exactly one make-year candidate, got %d", len(makeYear))
	}

	opp := makeYear[0]
	if opp.Key != "ford|2018" {
		t.Errorf("expected the Ford partition, got %q", opp.Key)
	}
	if opp.SampleSize != 30 {
		t.Errorf("expected sample size 30, got %d", opp.SampleSize)
	}
	if math.Abs(opp.ProfitPotential-(wantMean-8000)) > 0.01 {
		t.Errorf("expected profit potential ~1363.64, got %.2f", opp.ProfitPotential)
	}
	if opp.Risk != domain.RiskLow {
		t.Errorf("expected Low risk for volume over 20, got %s", opp.Risk)
	}
}

func TestOpportunityThresholdInclusive(t *testing.T) {
	a := New()

	t.Run("ExactlyAtThreshold", func(t *testing.T) {
		records := append(
			batch(a.DamageMinVolume, "ford", 2018, 5000, func(i int, r *domain.Record) { r.Damage = "hail" }),
			batch(a.DamageMinVolume, "ford", 2019, 9000, func(i int, r *domain.Record) { r.Damage = "flood" })...,
		)

		result := a.Analyze(records, nil)
		if opp := findDimension(result.Opportunities, DimensionDamage); opp == nil || opp.Key != "hail" {
			t.Fatalf("partition exactly at threshold must qualify: %+v", result.Opportunities)
		}
	})

	t.Run("OneBelowThreshold", func(t *testing.T) {
		records := append(
			batch(a.DamageMinVolume-1, "ford", 2018, 5000, func(i int, r *domain.Record) { r.Damage = "hail" }),
			batch(2*a.DamageMinVolume, "ford", 2019, 9000, func(i int, r *domain.Record) { r.Damage = "flood" })...,
		)

		result := a.Analyze(records, nil)
		if opp := findDimension(result.Opportunities, DimensionDamage); opp != nil {
			t.Fatalf("below-threshold partition must not qualify, got %q", opp.Key)
		}
	})
}

func TestOpportunityTieBreakLargerSample(t *testing.T) {
	a := New()

	// Two damage partitions with the same mean; the larger one wins.
	records := append(
		batch(20, "ford", 2018, 5000, func(i int, r *domain.Record) { r.Damage = "hail" }),
		batch(40, "ford", 2019, 5000, func(i int, r *domain.Record) { r.Damage = "flood" })...,
	)
	records = append(records,
		batch(40, "toyota", 2020, 12000, func(i int, r *domain.Record) { r.Damage = "none" })...,
	)

	result := a.Analyze(records, nil)
	opp := findDimension(result.Opportunities, DimensionDamage)
	if opp == nil {
		t.Fatal("expected a damage candidate")
	}
	if opp.Key != "flood" {
		t.Errorf("tie must go to the larger sample, got %q", opp.Key)
	}
}

func TestConfidenceBaselineAndBoost(t *testing.T) {
	a := New()
	records := append(
		batch(30, "ford", 2018, 8000, nil),
		batch(25, "toyota", 2018, 11000, nil)...,
	)

	baselineResult := a.Analyze(records, nil)
	base := findDimension(baselineResult.Opportunities, DimensionMakeYear)
	if base == nil {
		t.Fatal("expected a make-year candidate")
	}

	wantBase := 30.0 / 80.0
	if math.Abs(base.Confidence-wantBase) > 1e-9 {
		t.Errorf("expected baseline confidence %v, got %v", wantBase, base.Confidence)
	}
	if baselineResult.Metadata.PatternsApplied != 0 {
		t.Errorf("no patterns applied without pattern state, got %d", baselineResult.Metadata.PatternsApplied)
	}

	matching := []*domain.Pattern{{
		AnalysisType: domain.AnalysisMarketOverview,
		PatternType:  domain.PatternOpportunity,
		Payload: domain.PatternPayload{
			Opportunity: &domain.OpportunityPayload{Dimension: DimensionMakeYear, Key: "ford|2018"},
		},
		Confidence: 0.8,
	}}

	boostedResult := a.Analyze(records, matching)
	boosted := findDimension(boostedResult.Opportunities, DimensionMakeYear)
	if boosted.Confidence <= base.Confidence {
		t.Errorf("matching high-confidence pattern must boost: %v <= %v", boosted.Confidence, base.Confidence)
	}
	if boosted.Confidence > 0.95 {
		t.Errorf("boost must cap at 0.95, got %v", boosted.Confidence)
	}
	if boostedResult.Metadata.PatternsApplied != 1 {
		t.Errorf("expected 1 pattern applied, got %d", boostedResult.Metadata.PatternsApplied)
	}

	weak := matching
	weak[0].Confidence = 0.5
	weakResult := a.Analyze(records, weak)
	unboosted := findDimension(weakResult.Opportunities, DimensionMakeYear)
	if unboosted.Confidence != base.Confidence {
		t.Errorf("low-confidence pattern must not boost, got %v", unboosted.Confidence)
	}
}

func TestTrendDetection(t *testing.T) {
	a := New()

	t.Run("RisingAcrossModelYears", func(t *testing.T) {
		var records []*domain.Record
		for i, year := range []int{2016, 2017, 2018, 2019} {
			records = append(records, batch(5, "ford", year, 6000+float64(i)*1000, nil)...)
		}

		result := a.Analyze(records, nil)
		trend := findBucket(result.Trends, "model-year")
		if trend == nil {
			t.Fatal("expected a model-year trend")
		}
		if trend.Direction != "up" {
			t.Errorf("expected rising trend, got %s", trend.Direction)
		}
		wantPct := (9000.0 - 6000.0) / 6000.0 * 100
		if math.Abs(trend.ChangePct-wantPct) > 0.01 {
			t.Errorf("expected change %.2f%%, got %.2f%%", wantPct, trend.ChangePct)
		}
	})

	t.Run("TooFewBuckets", func(t *testing.T) {
		records := append(
			batch(5, "ford", 2018, 6000, nil),
			batch(5, "ford", 2019, 9000, nil)...,
		)

		result := a.Analyze(records, nil)
		if trend := findBucket(result.Trends, "model-year"); trend != nil {
			t.Errorf("two buckets must not produce a trend: %+v", trend)
		}
	})

	t.Run("FlatWithinTolerance", func(t *testing.T) {
		var records []*domain.Record
		for _, year := range []int{2016, 2017, 2018} {
			records = append(records, batch(5, "ford", year, 8000, nil)...)
		}

		result := a.Analyze(records, nil)
		trend := findBucket(result.Trends, "model-year")
		if trend == nil || trend.Direction != "flat" {
			t.Errorf("expected flat trend, got %+v", trend)
		}
	})
}

func TestAnalyzeDeterministic(t *testing.T) {
	records := append(
		batch(30, "ford", 2018, 8000, func(i int, r *domain.Record) { r.Damage = "hail" }),
		batch(25, "toyota", 2019, 11000, func(i int, r *domain.Record) { r.Damage = "flood" })...,
	)

	first := New().Analyze(records, nil)
	second := New().Analyze(records, nil)

	if len(first.Opportunities) != len(second.Opportunities) {
		t.Fatal("opportunity count must be deterministic")
	}
	for i := range first.Opportunities {
		if first.Opportunities[i] != second.Opportunities[i] {
			t.Errorf("opportunity %d differs across runs", i)
		}
	}
	for i := range first.Summary.TopSubjects {
		if first.Summary.TopSubjects[i] != second.Summary.TopSubjects[i] {
			t.Errorf("top subject %d differs across runs", i)
		}
	}
}

func TestExtractPatterns(t *testing.T) {
	records := append(
		batch(30, "ford", 2018, 8000, nil),
		batch(25, "toyota", 2018, 11000, nil)...,
	)
	result := New().Analyze(records, nil)
	now := time.Now().UTC()

	extracted := ExtractPatterns(domain.AnalysisOpportunityScan, result, now)
	if len(extracted) == 0 {
		t.Fatal("expected patterns from a result with opportunities")
	}

	var sawOpportunity, sawProfitability bool
	for _, p := range extracted {
		if err := p.Validate(); err != nil {
			t.Errorf("extracted pattern invalid: %v", err)
		}
		switch p.PatternType {
		case domain.PatternOpportunity:
			sawOpportunity = true
		case domain.PatternProfitability:
			sawProfitability = true
			if p.Payload.Profitability.Make != "ford" {
				t.Errorf("expected ford profitability pattern, got %q", p.Payload.Profitability.Make)
			}
		}
	}
	if !sawOpportunity || !sawProfitability {
		t.Error("expected opportunity and profitability patterns for a make-year candidate")
	}

	if got := ExtractPatterns(domain.AnalysisOpportunityScan, &domain.AnalysisResult{Empty: true}, now); got != nil {
		t.Error("empty result must yield no patterns")
	}
}

func findDimension(opps []domain.Opportunity, dimension string) *domain.Opportunity {
	for i := range opps {
		if opps[i].Dimension == dimension {
			return &opps[i]
		}
	}
	return nil
}

func findBucket(trends []domain.Trend, bucket string) *domain.Trend {
	for i := range trends {
		if trends[i].Bucket == bucket {
			return &trends[i]
		}
	}
	return nil
}
