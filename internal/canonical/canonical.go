// Package canonical derives stable cache identities from analysis filters.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gavelhq/gavel/internal/domain"
)

// ErrUncachable marks a filter that cannot be canonicalized. The caller
// must bypass the cache and pattern layers entirely: compute fresh, do not
// store.
var ErrUncachable = errors.New("filter cannot be canonicalized")

// Identity derives the cache identity for (subject, analysisType, filter).
// Equal filters always produce equal identities, independent of field
// insertion order, list order, case, or surrounding whitespace.
func Identity(subject string, analysisType domain.AnalysisType, f *domain.Filter) (string, error) {
	canon, err := Canonicalize(f)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(canon))
	return fmt.Sprintf("%s|%s|%s",
		strings.ToLower(strings.TrimSpace(subject)),
		analysisType,
		hex.EncodeToString(sum[:]),
	), nil
}

// Canonicalize serializes the filter in a fixed, sorted key order. Empty
// and zero-valued fields are omitted, so an explicitly-absent optional
// field canonicalizes the same as one never set.
func Canonicalize(f *domain.Filter) (string, error) {
	if f == nil {
		return "", nil
	}
	if err := validate(f); err != nil {
		return "", err
	}

	var parts []string
	if v := canonList(f.DamageTypes); v != "" {
		parts = append(parts, "damage="+v)
	}
	if v := canonList(f.Locations); v != "" {
		parts = append(parts, "location="+v)
	}
	if v := canonList(f.Makes); v != "" {
		parts = append(parts, "make="+v)
	}
	if v := canonList(f.Models); v != "" {
		parts = append(parts, "model="+v)
	}
	if f.PriceMax > 0 {
		parts = append(parts, "pricemax="+canonFloat(f.PriceMax))
	}
	if f.PriceMin > 0 {
		parts = append(parts, "pricemin="+canonFloat(f.PriceMin))
	}
	if f.SampleSize > 0 {
		parts = append(parts, "sample="+strconv.Itoa(f.SampleSize))
	}
	if f.YearFrom > 0 {
		parts = append(parts, "yearfrom="+strconv.Itoa(f.YearFrom))
	}
	if f.YearTo > 0 {
		parts = append(parts, "yearto="+strconv.Itoa(f.YearTo))
	}

	return strings.Join(parts, ";"), nil
}

func validate(f *domain.Filter) error {
	if f.SampleSize < 0 {
		return fmt.Errorf("%w: negative sample size %d", ErrUncachable, f.SampleSize)
	}
	if f.YearFrom < 0 || f.YearTo < 0 {
		return fmt.Errorf("%w: negative year bound", ErrUncachable)
	}
	if f.YearFrom > 0 && f.YearTo > 0 && f.YearFrom > f.YearTo {
		return fmt.Errorf("%w: inverted year range %d-%d", ErrUncachable, f.YearFrom, f.YearTo)
	}
	for _, p := range []float64{f.PriceMin, f.PriceMax} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("%w: invalid price bound %v", ErrUncachable, p)
		}
	}
	if f.PriceMin > 0 && f.PriceMax > 0 && f.PriceMin > f.PriceMax {
		return fmt.Errorf("%w: inverted price range %v-%v", ErrUncachable, f.PriceMin, f.PriceMax)
	}
	return nil
}

// canonList lowercases, trims, dedupes and sorts list entries. Blank
// entries are dropped.
func canonList(list []string) string {
	if len(list) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, item := range list {
		v := strings.ToLower(strings.TrimSpace(item))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// canonFloat renders a price bound with the shortest exact representation.
func canonFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
