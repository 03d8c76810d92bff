// Package screen provides the CEL-Go based opportunity screening engine.
package screen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/gavelhq/gavel/internal/domain"
)

// Engine compiles screen expressions once and evaluates every opportunity
// candidate of a completed analysis against the loaded screens.
type Engine struct {
	mu              sync.RWMutex
	env             *cel.Env
	compiledScreens map[string]*CompiledScreen
}

// CompiledScreen holds a pre-compiled CEL program with its config.
type CompiledScreen struct {
	Config  *domain.ScreenConfig
	Program cel.Program
}

// NewEngine creates a screening engine with the opportunity variable set.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("opp", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("profit_potential", cel.DoubleType),
		cel.Variable("sample_size", cel.IntType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("mean_price", cel.DoubleType),
		cel.Variable("overall_mean", cel.DoubleType),
		cel.Variable("dimension", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("risk", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:             env,
		compiledScreens: make(map[string]*CompiledScreen),
	}, nil
}

// ValidateScreen compiles an expression without loading it.
func (e *Engine) ValidateScreen(cfg *domain.ScreenConfig) error {
	if cfg == nil {
		return fmt.Errorf("screen config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileScreen(cfg)
	return err
}

// LoadScreen compiles and loads one screen.
func (e *Engine) LoadScreen(cfg *domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileScreen(cfg)
	if err != nil {
		return err
	}

	e.compiledScreens[cfg.ID] = compiled
	return nil
}

// ReloadScreens replaces the loaded set. Disabled screens are skipped.
// Enables hot-reloading from the database.
func (e *Engine) ReloadScreens(configs []*domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := make(map[string]*CompiledScreen)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileScreen(cfg)
		if err != nil {
			return err
		}
		fresh[cfg.ID] = compiled
	}

	e.compiledScreens = fresh
	return nil
}

// ReloadTenantScreens replaces one tenant's loaded screens without touching
// other tenants' or global screens. Disabled screens are skipped. The whole
// batch compiles before any replacement happens.
func (e *Engine) ReloadTenantScreens(tenantID string, configs []*domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := make(map[string]*CompiledScreen)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileScreen(cfg)
		if err != nil {
			return err
		}
		fresh[cfg.ID] = compiled
	}

	for id, s := range e.compiledScreens {
		if s.Config.TenantID == tenantID {
			delete(e.compiledScreens, id)
		}
	}
	for id, compiled := range fresh {
		e.compiledScreens[id] = compiled
	}
	return nil
}

// ScreensCount returns the number of loaded screens.
func (e *Engine) ScreensCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledScreens)
}

// Evaluate runs every loaded screen over every opportunity in the result
// and returns the matches. Evaluation errors on a single screen skip that
// screen rather than failing the batch.
func (e *Engine) Evaluate(ctx context.Context, result *domain.AnalysisResult) ([]domain.ScreenMatch, error) {
	e.mu.RLock()
	screens := make([]*CompiledScreen, 0, len(e.compiledScreens))
	for _, s := range e.compiledScreens {
		screens = append(screens, s)
	}
	e.mu.RUnlock()

	if len(screens) == 0 || result == nil || len(result.Opportunities) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	var matches []domain.ScreenMatch

	for _, opp := range result.Opportunities {
		activation := activationFor(&opp)
		for _, s := range screens {
			if ctx.Err() != nil {
				return matches, ctx.Err()
			}
			if !tenantMatches(s.Config.TenantID, result.TenantID) {
				continue
			}

			out, _, err := s.Program.Eval(activation)
			if err != nil {
				continue
			}
			if !truthy(out) {
				continue
			}

			matches = append(matches, domain.ScreenMatch{
				ScreenID:    s.Config.ID,
				ScreenName:  s.Config.Name,
				TenantID:    result.TenantID,
				AnalysisID:  result.ID,
				Subject:     result.Subject,
				Opportunity: opp,
				MatchedAt:   now,
			})
		}
	}

	return matches, nil
}

// tenantMatches reports whether a screen scoped to screenTenant applies to
// a result for resultTenant. Empty and "*" scopes apply to every tenant.
func tenantMatches(screenTenant, resultTenant string) bool {
	return screenTenant == "" ||
		screenTenant == domain.GlobalTenantID ||
		screenTenant == resultTenant
}

func activationFor(opp *domain.Opportunity) map[string]any {
	return map[string]any{
		"opp": map[string]any{
			"dimension":        opp.Dimension,
			"key":              opp.Key,
			"sample_size":      opp.SampleSize,
			"profit_potential": opp.ProfitPotential,
			"confidence":       opp.Confidence,
			"risk":             string(opp.Risk),
		},
		"profit_potential": opp.ProfitPotential,
		"sample_size":      int64(opp.SampleSize),
		"confidence":       opp.Confidence,
		"mean_price":       opp.MeanPrice,
		"overall_mean":     opp.OverallMean,
		"dimension":        opp.Dimension,
		"key":              opp.Key,
		"risk":             string(opp.Risk),
	}
}

// truthy interprets the expression output. Numeric outputs treat any
// positive value as a match.
func truthy(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) > 0
	case types.Int:
		return int64(v) > 0
	default:
		return false
	}
}

// Close clears the loaded screens.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledScreens = make(map[string]*CompiledScreen)
	return nil
}

func (e *Engine) compileScreen(cfg *domain.ScreenConfig) (*CompiledScreen, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile screen %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("screen %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for screen %s: %w", cfg.ID, err)
	}

	return &CompiledScreen{Config: cfg, Program: program}, nil
}
