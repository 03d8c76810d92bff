// Package analyzer computes market statistics, opportunity candidates and
// trends over a bounded sample of sale records.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// Partition dimensions.
const (
	DimensionDamage   = "damage"
	DimensionLocation = "location"
	DimensionMakeYear = "make-year"
)

// Analyzer computes analysis results. Deterministic: identical inputs
// always produce identical output, there is no sampling once records are
// fixed.
type Analyzer struct {
	// Minimum partition volumes per dimension. Boundaries are inclusive:
	// a partition exactly at the threshold qualifies.
	DamageMinVolume   int
	LocationMinVolume int
	MakeYearMinVolume int

	// MinTrendBuckets is the minimum number of time buckets required
	// before a trend is reported.
	MinTrendBuckets int

	// TopSubjects caps the by-frequency subject list in the summary.
	TopSubjects int

	// PatternBoostMin is the confidence an existing pattern needs before
	// it boosts a matching candidate.
	PatternBoostMin float64
}

// New creates an analyzer with default thresholds.
func New() *Analyzer {
	return &Analyzer{
		DamageMinVolume:   20,
		LocationMinVolume: 25,
		MakeYearMinVolume: 25,
		MinTrendBuckets:   3,
		TopSubjects:       5,
		PatternBoostMin:   0.7,
	}
}

// Analyze computes the full result for a sample. patterns is the current
// shared pattern state; high-confidence matches boost candidate confidence.
// Zero records yield an explicit empty result, never an error.
func (a *Analyzer) Analyze(records []*domain.Record, patterns []*domain.Pattern) *domain.AnalysisResult {
	result := &domain.AnalysisResult{}

	if len(records) == 0 {
		result.Empty = true
		return result
	}

	result.Summary = a.summarize(records)

	boosted := 0
	result.Opportunities = a.findOpportunities(records, result.Summary.MeanPrice, patterns, &boosted)
	result.Trends = a.findTrends(records)
	result.Metadata.PatternsApplied = boosted

	return result
}

// summarize computes aggregate statistics. Records with a missing or zero
// price are excluded from price statistics but still counted in totals.
func (a *Analyzer) summarize(records []*domain.Record) domain.SummaryStats {
	stats := domain.SummaryStats{TotalRecords: len(records)}

	var sum float64
	counts := make(map[string]int)

	for _, rec := range records {
		counts[rec.Subject()]++

		if rec.Price <= 0 {
			continue
		}
		if stats.PricedRecords == 0 {
			stats.MinPrice = rec.Price
			stats.MaxPrice = rec.Price
		} else {
			stats.MinPrice = math.Min(stats.MinPrice, rec.Price)
			stats.MaxPrice = math.Max(stats.MaxPrice, rec.Price)
		}
		stats.PricedRecords++
		sum += rec.Price
	}

	if stats.PricedRecords > 0 {
		stats.MeanPrice = sum / float64(stats.PricedRecords)
	}

	stats.TopSubjects = topSubjects(counts, a.TopSubjects)
	return stats
}

func topSubjects(counts map[string]int, limit int) []domain.SubjectCount {
	if len(counts) == 0 || limit <= 0 {
		return nil
	}

	out := make([]domain.SubjectCount, 0, len(counts))
	for subject, count := range counts {
		out = append(out, domain.SubjectCount{Subject: subject, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Subject < out[j].Subject
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// partition is an intermediate aggregation bucket.
type partition struct {
	key    string
	count  int
	priced int
	sum    float64
}

func (p *partition) mean() float64 {
	if p.priced == 0 {
		return 0
	}
	return p.sum / float64(p.priced)
}

// findOpportunities partitions the sample along each dimension, keeps
// partitions meeting the dimension's minimum volume, and expresses the
// lowest-priced qualifying partition relative to the overall mean as a
// profit candidate. Ties go to the larger sample: statistical confidence
// beats a marginal price advantage.
func (a *Analyzer) findOpportunities(records []*domain.Record, overallMean float64, patterns []*domain.Pattern, boosted *int) []domain.Opportunity {
	if overallMean <= 0 {
		return nil
	}

	dims := []struct {
		name      string
		minVolume int
		keyOf     func(*domain.Record) string
	}{
		{DimensionDamage, a.DamageMinVolume, func(r *domain.Record) string {
			return strings.ToLower(strings.TrimSpace(r.Damage))
		}},
		{DimensionLocation, a.LocationMinVolume, func(r *domain.Record) string {
			return strings.ToLower(strings.TrimSpace(r.Location))
		}},
		{DimensionMakeYear, a.MakeYearMinVolume, func(r *domain.Record) string {
			mk := strings.ToLower(strings.TrimSpace(r.Make))
			if mk == "" || r.Year == 0 {
				return ""
			}
			return fmt.Sprintf("%s|%d", mk, r.Year)
		}},
	}

	var opportunities []domain.Opportunity
	for _, dim := range dims {
		best := bestPartition(records, dim.keyOf, dim.minVolume)
		if best == nil {
			continue
		}

		mean := best.mean()
		if mean <= 0 || mean >= overallMean {
			continue
		}

		opp := domain.Opportunity{
			Dimension:       dim.name,
			Key:             best.key,
			SampleSize:      best.count,
			MeanPrice:       mean,
			OverallMean:     overallMean,
			ProfitPotential: overallMean - mean,
			Risk:            riskFor(best.count),
		}
		opp.Confidence = a.confidenceFor(best.count, dim.name, best.key, patterns, boosted)
		opportunities = append(opportunities, opp)
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].ProfitPotential > opportunities[j].ProfitPotential
	})
	return opportunities
}

// bestPartition returns the lowest-mean partition meeting the volume
// minimum, ties broken by larger sample size, then key for determinism.
func bestPartition(records []*domain.Record, keyOf func(*domain.Record) string, minVolume int) *partition {
	parts := make(map[string]*partition)
	for _, rec := range records {
		key := keyOf(rec)
		if key == "" {
			continue
		}
		p, ok := parts[key]
		if !ok {
			p = &partition{key: key}
			parts[key] = p
		}
		p.count++
		if rec.Price > 0 {
			p.priced++
			p.sum += rec.Price
		}
	}

	var best *partition
	for _, p := range parts {
		if p.count < minVolume || p.priced == 0 {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		switch {
		case p.mean() < best.mean():
			best = p
		case p.mean() == best.mean() && p.count > best.count:
			best = p
		case p.mean() == best.mean() && p.count == best.count && p.key < best.key:
			best = p
		}
	}
	return best
}

// riskFor classifies a candidate by sample volume.
func riskFor(volume int) domain.RiskLevel {
	switch {
	case volume > 20:
		return domain.RiskLow
	case volume >= 10:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// confidenceFor derives a baseline confidence from sample size and boosts
// it when a high-confidence pattern already covers this partition. The
// baseline grows asymptotically with the sample; the boost caps at 0.95.
func (a *Analyzer) confidenceFor(sampleSize int, dimension, key string, patterns []*domain.Pattern, boosted *int) float64 {
	conf := float64(sampleSize) / (float64(sampleSize) + 50.0)
	if conf > 0.9 {
		conf = 0.9
	}

	for _, p := range patterns {
		if p.PatternType != domain.PatternOpportunity || p.Payload.Opportunity == nil {
			continue
		}
		if p.Confidence < a.PatternBoostMin {
			continue
		}
		if strings.EqualFold(p.Payload.Opportunity.Dimension, dimension) &&
			strings.EqualFold(p.Payload.Opportunity.Key, key) {
			conf = math.Min(0.95, conf*1.25)
			*boosted++
			break
		}
	}

	return conf
}

// findTrends groups by model year and by calendar month and reports the
// head-to-tail percent change wherever enough buckets exist.
func (a *Analyzer) findTrends(records []*domain.Record) []domain.Trend {
	var trends []domain.Trend

	if t := trendOver(records, "model-year", a.MinTrendBuckets, func(r *domain.Record) string {
		if r.Year == 0 {
			return ""
		}
		return fmt.Sprintf("%d", r.Year)
	}); t != nil {
		trends = append(trends, *t)
	}

	if t := trendOver(records, "month", a.MinTrendBuckets, func(r *domain.Record) string {
		if r.SoldAt.IsZero() {
			return ""
		}
		return r.SoldAt.UTC().Format("2006-01")
	}); t != nil {
		trends = append(trends, *t)
	}

	return trends
}

func trendOver(records []*domain.Record, bucket string, minBuckets int, keyOf func(*domain.Record) string) *domain.Trend {
	parts := make(map[string]*partition)
	for _, rec := range records {
		if rec.Price <= 0 {
			continue
		}
		key := keyOf(rec)
		if key == "" {
			continue
		}
		p, ok := parts[key]
		if !ok {
			p = &partition{key: key}
			parts[key] = p
		}
		p.count++
		p.priced++
		p.sum += rec.Price
	}

	if len(parts) < minBuckets {
		return nil
	}

	keys := make([]string, 0, len(parts))
	for key := range parts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	first := parts[keys[0]]
	last := parts[keys[len(keys)-1]]
	if first.mean() <= 0 {
		return nil
	}

	changePct := (last.mean() - first.mean()) / first.mean() * 100

	direction := "flat"
	switch {
	case changePct >= 1:
		direction = "up"
	case changePct <= -1:
		direction = "down"
	}

	return &domain.Trend{
		Bucket:    bucket,
		Buckets:   len(parts),
		FirstKey:  keys[0],
		LastKey:   keys[len(keys)-1],
		FirstMean: first.mean(),
		LastMean:  last.mean(),
		ChangePct: changePct,
		Direction: direction,
	}
}

// ExtractPatterns converts a completed result into pattern observations
// for the shared store. Each candidate becomes an opportunity pattern;
// make-year candidates additionally record a profitability pattern; each
// trend records its direction; each candidate records its risk class.
func ExtractPatterns(analysisType domain.AnalysisType, result *domain.AnalysisResult, observedAt time.Time) []*domain.Pattern {
	if result == nil || result.Empty {
		return nil
	}

	var patterns []*domain.Pattern

	for _, opp := range result.Opportunities {
		patterns = append(patterns, &domain.Pattern{
			AnalysisType: analysisType,
			PatternType:  domain.PatternOpportunity,
			Payload: domain.PatternPayload{
				Opportunity: &domain.OpportunityPayload{Dimension: opp.Dimension, Key: opp.Key},
			},
			Confidence: opp.Confidence,
			Frequency:  1,
			FirstSeen:  observedAt,
			LastSeen:   observedAt,
		})

		patterns = append(patterns, &domain.Pattern{
			AnalysisType: analysisType,
			PatternType:  domain.PatternRisk,
			Payload: domain.PatternPayload{
				Risk: &domain.RiskPayload{Key: opp.Dimension + ":" + opp.Key, Level: opp.Risk},
			},
			Confidence: opp.Confidence,
			Frequency:  1,
			FirstSeen:  observedAt,
			LastSeen:   observedAt,
		})

		if opp.Dimension == DimensionMakeYear {
			mk := opp.Key
			if i := strings.IndexByte(mk, '|'); i > 0 {
				mk = mk[:i]
			}
			patterns = append(patterns, &domain.Pattern{
				AnalysisType: analysisType,
				PatternType:  domain.PatternProfitability,
				Payload: domain.PatternPayload{
					Profitability: &domain.ProfitabilityPayload{Make: mk, PriceBand: priceBand(opp.MeanPrice)},
				},
				Confidence: opp.Confidence,
				Frequency:  1,
				FirstSeen:  observedAt,
				LastSeen:   observedAt,
			})
		}
	}

	for _, trend := range result.Trends {
		// More buckets, more signal; saturates well below certainty.
		conf := math.Min(0.85, 0.3+0.05*float64(trend.Buckets))
		patterns = append(patterns, &domain.Pattern{
			AnalysisType: analysisType,
			PatternType:  domain.PatternTrend,
			Payload: domain.PatternPayload{
				Trend: &domain.TrendPayload{Bucket: trend.Bucket, Direction: trend.Direction},
			},
			Confidence: conf,
			Frequency:  1,
			FirstSeen:  observedAt,
			LastSeen:   observedAt,
		})
	}

	return patterns
}

// priceBand buckets a price into 5000-wide bands, e.g. "5000-10000".
func priceBand(price float64) string {
	lower := int(price/5000) * 5000
	return fmt.Sprintf("%d-%d", lower, lower+5000)
}
