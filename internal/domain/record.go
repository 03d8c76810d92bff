package domain

import (
	"fmt"
	"strings"
	"time"
)

// Record is a single historical auction sale observation.
// Records are immutable once ingested; the analysis core reads them only.
type Record struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Vehicle identity
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`

	// Lot attributes
	Damage   string `json:"damage"`   // e.g., "front-end", "hail", "flood"
	Location string `json:"location"` // auction yard location
	Source   string `json:"source"`   // originating platform (e.g., "copart", "iaai")

	// Sale outcome
	Price  float64    `json:"price"` // winning bid; 0 means price unknown
	Status SaleStatus `json:"status"`

	// Temporal
	SoldAt    time.Time `json:"soldAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaleStatus is the outcome of an auction listing.
type SaleStatus string

const (
	SaleSold       SaleStatus = "sold"
	SaleNotSold    SaleStatus = "not_sold"
	SaleOnApproval SaleStatus = "on_approval"
)

// Subject returns the market-segment identity this record belongs to.
// Freshness and cache entries are tracked per subject.
func (r *Record) Subject() string {
	return SubjectKey(r.Make, r.Model, r.Year)
}

// SubjectKey builds a normalized subject identity from vehicle fields.
// Empty fields are allowed; "ford||0" is a valid make-level subject.
func SubjectKey(make, model string, year int) string {
	m := strings.ToLower(strings.TrimSpace(make))
	md := strings.ToLower(strings.TrimSpace(model))
	if year > 0 {
		return fmt.Sprintf("%s|%s|%d", m, md, year)
	}
	return fmt.Sprintf("%s|%s|0", m, md)
}

// Filter is a sparse set of constraints over Record fields. It selects
// records for analysis and, canonicalized, forms part of a cache identity.
type Filter struct {
	Makes       []string `json:"makes,omitempty"`
	Models      []string `json:"models,omitempty"`
	YearFrom    int      `json:"yearFrom,omitempty"`
	YearTo      int      `json:"yearTo,omitempty"`
	PriceMin    float64  `json:"priceMin,omitempty"`
	PriceMax    float64  `json:"priceMax,omitempty"`
	DamageTypes []string `json:"damageTypes,omitempty"`
	Locations   []string `json:"locations,omitempty"`
	SampleSize  int      `json:"sampleSize,omitempty"`
}

// IsZero reports whether the filter carries no constraints at all.
func (f *Filter) IsZero() bool {
	return len(f.Makes) == 0 && len(f.Models) == 0 &&
		f.YearFrom == 0 && f.YearTo == 0 &&
		f.PriceMin == 0 && f.PriceMax == 0 &&
		len(f.DamageTypes) == 0 && len(f.Locations) == 0 &&
		f.SampleSize == 0
}

// Matches reports whether a record satisfies every constraint in the filter.
func (f *Filter) Matches(r *Record) bool {
	if len(f.Makes) > 0 && !containsFold(f.Makes, r.Make) {
		return false
	}
	if len(f.Models) > 0 && !containsFold(f.Models, r.Model) {
		return false
	}
	if f.YearFrom > 0 && r.Year < f.YearFrom {
		return false
	}
	if f.YearTo > 0 && r.Year > f.YearTo {
		return false
	}
	if f.PriceMin > 0 && r.Price < f.PriceMin {
		return false
	}
	if f.PriceMax > 0 && r.Price > f.PriceMax {
		return false
	}
	if len(f.DamageTypes) > 0 && !containsFold(f.DamageTypes, r.Damage) {
		return false
	}
	if len(f.Locations) > 0 && !containsFold(f.Locations, r.Location) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
