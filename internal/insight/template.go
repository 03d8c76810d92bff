// Package insight turns structured analysis results into short narratives.
//
// Writers are best-effort: a failed or slow writer degrades the run to a
// narrative-free result, it never fails the analysis.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/gavelhq/gavel/internal/domain"
)

// TemplateWriter renders a deterministic narrative without any external
// model. Default for community deployments and tests.
type TemplateWriter struct{}

// NewTemplateWriter creates the template-based writer.
func NewTemplateWriter() *TemplateWriter {
	return &TemplateWriter{}
}

// Describe renders the narrative from the structured fields.
func (w *TemplateWriter) Describe(_ context.Context, result *domain.AnalysisResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result is required")
	}
	if result.Empty {
		return fmt.Sprintf("No sale records matched the request for %s.", subjectOrMarket(result)), nil
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Analyzed %d records for %s", result.Summary.TotalRecords, subjectOrMarket(result))
	if result.Summary.PricedRecords > 0 {
		fmt.Fprintf(&b, " with a mean sale price of $%.0f", result.Summary.MeanPrice)
	}
	b.WriteString(".")

	if len(result.Opportunities) > 0 {
		top := result.Opportunities[0]
		fmt.Fprintf(&b, " The strongest opportunity is the %s partition %q: %d sales averaging $%.0f against an overall mean of $%.0f, roughly $%.0f of potential per vehicle at %s risk.",
			top.Dimension, top.Key, top.SampleSize, top.MeanPrice, top.OverallMean, top.ProfitPotential, strings.ToLower(string(top.Risk)))
	} else {
		b.WriteString(" No partition cleared the opportunity thresholds.")
	}

	for _, trend := range result.Trends {
		if trend.Direction == "flat" {
			continue
		}
		fmt.Fprintf(&b, " Prices across %s buckets are moving %s, %.1f%% head to tail.",
			trend.Bucket, trend.Direction, trend.ChangePct)
	}

	return b.String(), nil
}

func subjectOrMarket(result *domain.AnalysisResult) string {
	if result.Subject != "" {
		return result.Subject
	}
	return "the overall market"
}
