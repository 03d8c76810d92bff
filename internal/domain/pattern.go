package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PatternType classifies what kind of market generalization a pattern holds.
type PatternType string

const (
	PatternOpportunity   PatternType = "opportunity"
	PatternTrend         PatternType = "trend"
	PatternRisk          PatternType = "risk"
	PatternProfitability PatternType = "profitability"
)

// Pattern is a persisted, confidence-weighted generalization extracted from
// completed analyses. Identity is (AnalysisType, PatternType, payload key);
// repeated observations of the same identity blend confidence and bump
// frequency. Confidence stays in [0,1]; frequency is >= 1 once created.
type Pattern struct {
	AnalysisType AnalysisType   `json:"analysisType"`
	PatternType  PatternType    `json:"patternType"`
	Payload      PatternPayload `json:"payload"`
	Confidence   float64        `json:"confidence"`
	Frequency    int            `json:"frequency"`
	FirstSeen    time.Time      `json:"firstSeen"`
	LastSeen     time.Time      `json:"lastSeen"`
}

// PatternPayload is an enum-tagged union: exactly one variant is set,
// matching the pattern type. Structured variants replace the loose JSON
// blobs the data otherwise degenerates into.
type PatternPayload struct {
	Opportunity   *OpportunityPayload   `json:"opportunity,omitempty"`
	Trend         *TrendPayload         `json:"trend,omitempty"`
	Risk          *RiskPayload          `json:"risk,omitempty"`
	Profitability *ProfitabilityPayload `json:"profitability,omitempty"`
}

// OpportunityPayload records a partition that produced a profit candidate.
type OpportunityPayload struct {
	Dimension string `json:"dimension"`
	Key       string `json:"key"`
}

// TrendPayload records a sustained direction for a bucketing dimension.
type TrendPayload struct {
	Bucket    string `json:"bucket"`
	Direction string `json:"direction"`
}

// RiskPayload records a risk classification for a partition.
type RiskPayload struct {
	Key   string    `json:"key"`
	Level RiskLevel `json:"level"`
}

// ProfitabilityPayload records a profitable make and price band.
type ProfitabilityPayload struct {
	Make      string `json:"make"`
	PriceBand string `json:"priceBand"` // e.g., "5000-10000"
}

var ErrInvalidPattern = errors.New("invalid pattern")

// Validate checks variant/type agreement and the confidence bound.
func (p *Pattern) Validate() error {
	if !ValidAnalysisType(p.AnalysisType) {
		return fmt.Errorf("%w: unknown analysis type %q", ErrInvalidPattern, p.AnalysisType)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of [0,1]", ErrInvalidPattern, p.Confidence)
	}
	set := 0
	if p.Payload.Opportunity != nil {
		set++
		if p.PatternType != PatternOpportunity {
			return fmt.Errorf("%w: opportunity payload on %q pattern", ErrInvalidPattern, p.PatternType)
		}
	}
	if p.Payload.Trend != nil {
		set++
		if p.PatternType != PatternTrend {
			return fmt.Errorf("%w: trend payload on %q pattern", ErrInvalidPattern, p.PatternType)
		}
	}
	if p.Payload.Risk != nil {
		set++
		if p.PatternType != PatternRisk {
			return fmt.Errorf("%w: risk payload on %q pattern", ErrInvalidPattern, p.PatternType)
		}
	}
	if p.Payload.Profitability != nil {
		set++
		if p.PatternType != PatternProfitability {
			return fmt.Errorf("%w: profitability payload on %q pattern", ErrInvalidPattern, p.PatternType)
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: payload must set exactly one variant, got %d", ErrInvalidPattern, set)
	}
	return nil
}

// PayloadKey returns the canonical string form of the payload, the third
// component of pattern identity. Stable across processes.
func (p *Pattern) PayloadKey() string {
	switch {
	case p.Payload.Opportunity != nil:
		return norm(p.Payload.Opportunity.Dimension) + ":" + norm(p.Payload.Opportunity.Key)
	case p.Payload.Trend != nil:
		return norm(p.Payload.Trend.Bucket) + ":" + norm(p.Payload.Trend.Direction)
	case p.Payload.Risk != nil:
		return norm(p.Payload.Risk.Key) + ":" + norm(string(p.Payload.Risk.Level))
	case p.Payload.Profitability != nil:
		return norm(p.Payload.Profitability.Make) + ":" + norm(p.Payload.Profitability.PriceBand)
	}
	return ""
}

// Identity returns the full pattern identity string.
func (p *Pattern) Identity() string {
	return string(p.AnalysisType) + "|" + string(p.PatternType) + "|" + p.PayloadKey()
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PatternStore is the shared, process-wide store of learned patterns.
// All concurrent analyses read and write the same patterns; drift is
// intentionally path-dependent. Upsert must be atomic per identity.
type PatternStore interface {
	// Upsert blends an observation into an existing pattern with the same
	// identity (confidence averaged, frequency incremented) or inserts it
	// with frequency 1.
	Upsert(ctx context.Context, p *Pattern) error

	// TopByConfidence returns the strongest patterns for an analysis type,
	// ordered by confidence descending, ties broken by higher frequency.
	TopByConfidence(ctx context.Context, analysisType AnalysisType, limit int) ([]*Pattern, error)

	// ByType returns all patterns of a pattern type.
	ByType(ctx context.Context, patternType PatternType) ([]*Pattern, error)

	// Decay applies time-based confidence decay to patterns not seen since
	// the cutoff. Explicit maintenance operation, never run automatically.
	Decay(ctx context.Context, factor float64, olderThan time.Time) (int64, error)
}
