package domain

import "time"

// GlobalTenantID marks a screen that applies to every tenant.
const GlobalTenantID = "*"

// ScreenConfig defines an opportunity screening rule. The expression is a
// CEL program over opportunity variables (profit_potential, sample_size,
// confidence, dimension, key, risk); candidates that match are published as
// alerts on the event bus.
type ScreenConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is the CEL source, e.g.
	// `profit_potential > 1000.0 && sample_size >= 30`.
	Expression string `json:"expression"`

	// Whether the screen is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ScreenMatch is a screened opportunity ready for alerting.
type ScreenMatch struct {
	ScreenID    string      `json:"screenId"`
	ScreenName  string      `json:"screenName"`
	TenantID    string      `json:"tenantId"`
	AnalysisID  string      `json:"analysisId"`
	Subject     string      `json:"subject"`
	Opportunity Opportunity `json:"opportunity"`
	MatchedAt   time.Time   `json:"matchedAt"`
}
