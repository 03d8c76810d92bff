package insight

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/gavelhq/gavel/internal/domain"
)

// GeminiWriter produces analysis narratives with a Gemini model on Vertex
// AI. Narratives are best-effort prose; failures degrade to no narrative
// and never touch the structured result.
type GeminiWriter struct {
	client *genai.Client
	model  string
}

// NewGeminiWriter creates a writer backed by a Vertex AI project.
func NewGeminiWriter(ctx context.Context, projectID, location, model string) (*GeminiWriter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiWriter{client: client, model: model}, nil
}

// NewGeminiWriterFromClient wraps an existing client, used in tests.
func NewGeminiWriterFromClient(c *genai.Client, model string) *GeminiWriter {
	return &GeminiWriter{client: c, model: model}
}

// Describe generates a short narrative for the result.
func (w *GeminiWriter) Describe(ctx context.Context, result *domain.AnalysisResult) (string, error) {
	prompt := buildPrompt(result)

	out, err := w.client.Models.GenerateContent(ctx, w.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("narrative generation failed: %w", err)
	}
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("narrative generation returned no candidates")
	}

	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

// buildPrompt flattens the structured result into a compact briefing. The
// model sees numbers already computed; it only writes prose.
func buildPrompt(result *domain.AnalysisResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a concise market briefing (3-5 sentences) for an auction analyst.\n")
	fmt.Fprintf(&b, "Subject: %s, analysis: %s.\n", result.Subject, result.Type)
	fmt.Fprintf(&b, "Sample: %d records, %d priced, mean price $%.2f (range $%.2f to $%.2f).\n",
		result.Summary.TotalRecords,
		result.Summary.PricedRecords,
		result.Summary.MeanPrice,
		result.Summary.MinPrice,
		result.Summary.MaxPrice,
	)

	for _, opp := range result.Opportunities {
		fmt.Fprintf(&b, "Opportunity: %s partition %q, %d records, mean $%.2f vs overall $%.2f, potential $%.2f per vehicle, risk %s.\n",
			opp.Dimension, opp.Key, opp.SampleSize, opp.MeanPrice, opp.OverallMean, opp.ProfitPotential, opp.Risk)
	}
	for _, trend := range result.Trends {
		fmt.Fprintf(&b, "Trend: %s buckets moving %s, %.1f%% head to tail.\n",
			trend.Bucket, trend.Direction, trend.ChangePct)
	}

	fmt.Fprintf(&b, "State facts only from the data above. No speculation, no headers, no bullet lists.")
	return b.String()
}
