// Package orchestrator runs the analysis pipeline: canonicalize, consult
// the cache, gate freshness, fetch, analyze, learn patterns, narrate,
// screen and publish.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gavelhq/gavel/internal/analyzer"
	"github.com/gavelhq/gavel/internal/cache"
	"github.com/gavelhq/gavel/internal/canonical"
	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/freshness"
	"github.com/gavelhq/gavel/internal/patterns"
	"github.com/gavelhq/gavel/internal/screen"
)

const engineVersion = "gavel-1.0"

var tracer = otel.Tracer("gavel-orchestrator")

// ErrInvalidRequest marks a request the pipeline refuses to run.
var ErrInvalidRequest = errors.New("invalid analysis request")

// Deps are the pipeline collaborators. Cache, patterns, screens, insight
// and bus are optional; a missing or failing optional collaborator
// degrades the run instead of failing it.
type Deps struct {
	Repo     domain.Repository
	Cache    *cache.Store
	Gate     *freshness.Gate
	Analyzer *analyzer.Analyzer
	Patterns *patterns.Store
	Screens  *screen.Engine
	Insight  domain.InsightWriter
	Bus      domain.EventBus
	Source   domain.RecordSource
	Config   domain.AnalysisConfig
}

// Orchestrator coordinates one analysis run end to end.
type Orchestrator struct {
	deps Deps

	// now is swappable for tests.
	now func() time.Time
}

// New creates an orchestrator. Repo, Gate, Analyzer and Source are
// required; everything else may be nil.
func New(deps Deps) *Orchestrator {
	if deps.Config.ValidityWindow <= 0 {
		deps.Config.ValidityWindow = 30 * time.Minute
	}
	if deps.Config.RetentionAge <= 0 {
		deps.Config.RetentionAge = 30 * 24 * time.Hour
	}
	if deps.Config.SampleCap <= 0 {
		deps.Config.SampleCap = 15000
	}
	if deps.Config.InsightTimeout <= 0 {
		deps.Config.InsightTimeout = 15 * time.Second
	}
	return &Orchestrator{deps: deps, now: time.Now}
}

// Run executes the full pipeline for one request.
func (o *Orchestrator) Run(ctx context.Context, tenantID string, tier domain.Tier, req *domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	start := o.now()

	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidRequest)
	}
	if req == nil || !domain.ValidAnalysisType(req.Type) {
		return nil, fmt.Errorf("%w: unknown analysis type", ErrInvalidRequest)
	}

	subject := subjectFor(req)

	ctx, span := tracer.Start(ctx, "analysis.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("analysis.type", string(req.Type)),
		attribute.String("analysis.subject", subject),
	)
	traceID := ""
	if span.SpanContext().TraceID().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}

	var degradations []domain.Degradation

	// Identity first: an uncachable filter still gets analyzed, it just
	// bypasses the cache on both read and write, and pattern learning.
	identity, err := canonical.Identity(subject, req.Type, &req.Filter)
	cacheable := err == nil
	if err != nil {
		if !errors.Is(err, canonical.ErrUncachable) {
			return nil, err
		}
		degradations = append(degradations, domain.DegradedUncachable)
	}

	if cacheable && o.deps.Cache != nil {
		cached, hit := o.lookupCache(ctx, tenantID, identity, start)
		if hit {
			cached.Metadata.TraceID = traceID
			cached.Metadata.DurationMs = o.now().Sub(start).Milliseconds()
			slog.Info("analysis served from cache",
				"tenant_id", tenantID,
				"type", req.Type,
				"subject", subject,
			)
			return cached, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Freshness and refresh. A denied or failed refresh still proceeds
	// with local data.
	refreshStatus := o.maybeRefresh(ctx, tenantID, subject, tier, req, &degradations)

	records, err := o.deps.Source.Fetch(ctx, tenantID, &req.Filter, o.deps.Config.SampleCap)
	if err != nil {
		return nil, fmt.Errorf("record fetch failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	known := o.loadPatterns(ctx, req.Type, &degradations)

	result := o.deps.Analyzer.Analyze(records, known)
	result.ID = uuid.New().String()
	result.TenantID = tenantID
	result.Subject = subject
	result.Type = req.Type
	result.Metadata.TraceID = traceID
	result.Metadata.Cached = false
	result.Metadata.GeneratedAt = o.now().UTC()
	result.Metadata.RecordCount = len(records)
	result.Metadata.RefreshOutcome = refreshStatus
	result.Metadata.EngineVersion = engineVersion

	// An uncachable filter bypasses pattern learning as well as the
	// cache; malformed requests must not feed the shared store.
	if cacheable {
		o.learnPatterns(ctx, result, &degradations)
	}
	o.writeNarrative(ctx, result, &degradations)
	o.screenAndPublish(ctx, result)

	result.Metadata.Degradations = degradations
	result.Metadata.DurationMs = o.now().Sub(start).Milliseconds()

	if cacheable && o.deps.Cache != nil {
		if err := o.storeResult(ctx, identity, result); err != nil {
			slog.Warn("cache store failed", "error", err)
			result.Metadata.Degradations = append(result.Metadata.Degradations, domain.DegradedCache)
		}
	}

	slog.Info("analysis completed",
		"tenant_id", tenantID,
		"type", req.Type,
		"subject", subject,
		"records", len(records),
		"opportunities", len(result.Opportunities),
		"duration_ms", result.Metadata.DurationMs,
	)
	return result, nil
}

// lookupCache returns a decoded result when a valid entry exists. Decode
// failures and lookup errors count as misses.
func (o *Orchestrator) lookupCache(ctx context.Context, tenantID, identity string, now time.Time) (*domain.AnalysisResult, bool) {
	entry, err := o.deps.Cache.Get(ctx, tenantID, identity)
	if err != nil {
		slog.Warn("cache lookup failed", "error", err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if now.UTC().Sub(entry.CreatedAt) > o.deps.Config.ValidityWindow {
		return nil, false
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(entry.Payload, &result); err != nil {
		slog.Warn("cached payload undecodable, treating as miss", "entry_id", entry.ID, "error", err)
		return nil, false
	}

	result.Metadata.Cached = true
	return &result, true
}

func (o *Orchestrator) storeResult(ctx context.Context, identity string, result *domain.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("result marshal failed: %w", err)
	}

	now := o.now().UTC()
	return o.deps.Cache.Put(ctx, &domain.CacheEntry{
		ID:             uuid.New().String(),
		TenantID:       result.TenantID,
		Subject:        result.Subject,
		AnalysisType:   result.Type,
		Identity:       identity,
		Payload:        payload,
		CreatedAt:      now,
		LastAccessedAt: now,
	})
}

// maybeRefresh checks freshness and triggers a tier-gated refresh when the
// subject is stale. Outcomes are recorded, never fatal.
func (o *Orchestrator) maybeRefresh(ctx context.Context, tenantID, subject string, tier domain.Tier, req *domain.AnalysisRequest, degradations *[]domain.Degradation) domain.RefreshStatus {
	if o.deps.Gate == nil || subject == "" {
		return ""
	}

	fresh, err := o.deps.Gate.IsFresh(ctx, tenantID, subject)
	if err != nil {
		slog.Warn("freshness check failed", "subject", subject, "error", err)
		*degradations = append(*degradations, domain.DegradedRefresh)
		return ""
	}
	if fresh {
		return ""
	}

	outcome := o.deps.Gate.Refresh(ctx, tenantID, subject, &req.Filter, tier)
	if outcome.Status == domain.RefreshUpstreamError {
		*degradations = append(*degradations, domain.DegradedRefresh)
	}
	return outcome.Status
}

func (o *Orchestrator) loadPatterns(ctx context.Context, analysisType domain.AnalysisType, degradations *[]domain.Degradation) []*domain.Pattern {
	if o.deps.Patterns == nil {
		return nil
	}
	known, err := o.deps.Patterns.TopByConfidence(ctx, analysisType, 50)
	if err != nil {
		slog.Warn("pattern load failed", "error", err)
		*degradations = append(*degradations, domain.DegradedPatterns)
		return nil
	}
	return known
}

// learnPatterns blends this run's observations into the shared store.
func (o *Orchestrator) learnPatterns(ctx context.Context, result *domain.AnalysisResult, degradations *[]domain.Degradation) {
	if o.deps.Patterns == nil {
		return
	}

	observed := analyzer.ExtractPatterns(result.Type, result, o.now().UTC())
	for _, p := range observed {
		if err := o.deps.Patterns.Upsert(ctx, p); err != nil {
			slog.Warn("pattern upsert failed", "identity", p.Identity(), "error", err)
			if !hasDegradation(*degradations, domain.DegradedPatterns) {
				*degradations = append(*degradations, domain.DegradedPatterns)
			}
		}
	}
}

// writeNarrative asks the insight writer for prose under a bounded timeout.
func (o *Orchestrator) writeNarrative(ctx context.Context, result *domain.AnalysisResult, degradations *[]domain.Degradation) {
	if o.deps.Insight == nil {
		return
	}

	insightCtx, cancel := context.WithTimeout(ctx, o.deps.Config.InsightTimeout)
	defer cancel()

	narrative, err := o.deps.Insight.Describe(insightCtx, result)
	if err != nil {
		slog.Warn("insight writer failed", "error", err)
		*degradations = append(*degradations, domain.DegradedInsight)
		return
	}
	result.Narrative = narrative
}

// screenAndPublish evaluates opportunity screens and emits bus events.
// Both are fire-and-forget from the caller's perspective.
func (o *Orchestrator) screenAndPublish(ctx context.Context, result *domain.AnalysisResult) {
	if o.deps.Bus == nil {
		return
	}

	if o.deps.Screens != nil {
		matches, err := o.deps.Screens.Evaluate(ctx, result)
		if err != nil {
			slog.Warn("screen evaluation failed", "error", err)
		}
		for _, match := range matches {
			payload, err := json.Marshal(match)
			if err != nil {
				continue
			}
			if err := o.deps.Bus.Publish(ctx, result.TenantID, domain.TopicOpportunityAlert, payload); err != nil {
				slog.Warn("alert publish failed", "screen_id", match.ScreenID, "error", err)
			}
		}
	}

	event, err := json.Marshal(map[string]any{
		"analysisId":    result.ID,
		"type":          result.Type,
		"subject":       result.Subject,
		"recordCount":   result.Metadata.RecordCount,
		"opportunities": len(result.Opportunities),
		"empty":         result.Empty,
	})
	if err != nil {
		return
	}
	if err := o.deps.Bus.Publish(ctx, result.TenantID, domain.TopicAnalysisCompleted, event); err != nil {
		slog.Warn("completion publish failed", "error", err)
	}
}

// PurgeOldCache removes cache entries older than the retention age.
func (o *Orchestrator) PurgeOldCache(ctx context.Context) (int64, error) {
	if o.deps.Cache == nil {
		return 0, nil
	}
	return o.deps.Cache.PurgeOlderThan(ctx, o.deps.Config.RetentionAge)
}

// TopPatterns exposes the strongest learned patterns for an analysis type.
func (o *Orchestrator) TopPatterns(ctx context.Context, analysisType domain.AnalysisType, limit int) ([]*domain.Pattern, error) {
	if o.deps.Patterns == nil {
		return nil, nil
	}
	return o.deps.Patterns.TopByConfidence(ctx, analysisType, limit)
}

// subjectFor derives the subject when the request omits it: a filter
// pinned to a single make, model and year names that vehicle.
func subjectFor(req *domain.AnalysisRequest) string {
	if req.Subject != "" {
		return req.Subject
	}
	f := &req.Filter
	if len(f.Makes) == 1 && len(f.Models) == 1 && f.YearFrom > 0 && f.YearFrom == f.YearTo {
		return domain.SubjectKey(f.Makes[0], f.Models[0], f.YearFrom)
	}
	return ""
}

func hasDegradation(list []domain.Degradation, d domain.Degradation) bool {
	for _, got := range list {
		if got == d {
			return true
		}
	}
	return false
}
