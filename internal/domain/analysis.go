package domain

import (
	"time"
)

// AnalysisType selects which analysis pipeline a request runs.
type AnalysisType string

const (
	AnalysisMarketOverview  AnalysisType = "market-overview"
	AnalysisOpportunityScan AnalysisType = "opportunity-scan"
	AnalysisTrendReport     AnalysisType = "trend-report"
	AnalysisRiskProfile     AnalysisType = "risk-profile"
)

// ValidAnalysisType reports whether t is a known analysis type.
func ValidAnalysisType(t AnalysisType) bool {
	switch t {
	case AnalysisMarketOverview, AnalysisOpportunityScan, AnalysisTrendReport, AnalysisRiskProfile:
		return true
	}
	return false
}

// RiskLevel classifies an opportunity by how much data backs it.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// AnalysisResult is the complete output of one analysis run.
type AnalysisResult struct {
	ID       string       `json:"id"`
	TenantID string       `json:"tenantId"`
	Subject  string       `json:"subject"`
	Type     AnalysisType `json:"type"`

	// Empty marks a well-defined zero-records result. Not an error.
	Empty bool `json:"empty"`

	Summary       SummaryStats  `json:"summary"`
	Opportunities []Opportunity `json:"opportunities,omitempty"`
	Trends        []Trend       `json:"trends,omitempty"`

	// Narrative is optional prose from the insight writer. Absent when the
	// writer is unavailable; structured fields are unaffected either way.
	Narrative string `json:"narrative,omitempty"`

	Metadata AnalysisMetadata `json:"metadata"`
}

// SummaryStats are the aggregate statistics over the analyzed sample.
// Price statistics cover only records with a positive price; records with a
// missing or zero price still count toward TotalRecords.
type SummaryStats struct {
	TotalRecords  int            `json:"totalRecords"`
	PricedRecords int            `json:"pricedRecords"`
	MeanPrice     float64        `json:"meanPrice"`
	MinPrice      float64        `json:"minPrice"`
	MaxPrice      float64        `json:"maxPrice"`
	TopSubjects   []SubjectCount `json:"topSubjects,omitempty"`
}

// SubjectCount is a subject with its record frequency in the sample.
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// Opportunity is a profit-potential candidate: a low-priced partition of the
// sample with enough volume to be statistically interesting.
type Opportunity struct {
	Dimension       string    `json:"dimension"` // "damage", "location", "make-year"
	Key             string    `json:"key"`
	SampleSize      int       `json:"sampleSize"`
	MeanPrice       float64   `json:"meanPrice"`
	OverallMean     float64   `json:"overallMean"`
	ProfitPotential float64   `json:"profitPotential"` // overallMean - meanPrice, per vehicle
	Confidence      float64   `json:"confidence"`
	Risk            RiskLevel `json:"risk"`
}

// Trend is a head-to-tail percentage change across time buckets.
type Trend struct {
	Bucket    string  `json:"bucket"` // "model-year" or "month"
	Buckets   int     `json:"buckets"`
	FirstKey  string  `json:"firstKey"`
	LastKey   string  `json:"lastKey"`
	FirstMean float64 `json:"firstMean"`
	LastMean  float64 `json:"lastMean"`
	ChangePct float64 `json:"changePct"`
	Direction string  `json:"direction"` // "up", "down", "flat"
}

// Degradation names a component that failed best-effort during a run.
// Degraded runs still succeed; the orchestrator records what was skipped.
type Degradation string

const (
	DegradedCache      Degradation = "cache-unavailable"
	DegradedRefresh    Degradation = "refresh-failed"
	DegradedPatterns   Degradation = "patterns-unavailable"
	DegradedInsight    Degradation = "insight-unavailable"
	DegradedUncachable Degradation = "uncachable-filter"
)

// AnalysisMetadata carries processing metrics for a run.
type AnalysisMetadata struct {
	TraceID         string        `json:"traceId,omitempty"`
	Cached          bool          `json:"cached"`
	GeneratedAt     time.Time     `json:"generatedAt"`
	DurationMs      int64         `json:"durationMs"`
	RecordCount     int           `json:"recordCount"`
	PatternsApplied int           `json:"patternsApplied"`
	RefreshOutcome  RefreshStatus `json:"refreshOutcome,omitempty"`
	Degradations    []Degradation `json:"degradations,omitempty"`
	EngineVersion   string        `json:"engineVersion"`
}

// Degraded reports whether the given degradation was recorded.
func (m *AnalysisMetadata) Degraded(d Degradation) bool {
	for _, got := range m.Degradations {
		if got == d {
			return true
		}
	}
	return false
}

// AnalysisRequest is the API payload for running an analysis.
type AnalysisRequest struct {
	Type    AnalysisType `json:"type"`
	Subject string       `json:"subject,omitempty"` // optional; derived from filter when empty
	Filter  Filter       `json:"filter"`
}
