// Gavel - auction market analysis with a memory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gavelhq/gavel/internal/analyzer"
	"github.com/gavelhq/gavel/internal/api"
	"github.com/gavelhq/gavel/internal/bus"
	"github.com/gavelhq/gavel/internal/cache"
	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/freshness"
	"github.com/gavelhq/gavel/internal/insight"
	"github.com/gavelhq/gavel/internal/orchestrator"
	"github.com/gavelhq/gavel/internal/patterns"
	"github.com/gavelhq/gavel/internal/repository"
	"github.com/gavelhq/gavel/internal/screen"
	"github.com/gavelhq/gavel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("GAVEL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting gavel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("GAVEL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"hot_cache", cfg.Cache.HotLayer,
		"eventbus", cfg.EventBus.Type,
		"insight", cfg.Insight.Writer,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Result cache (durable SQL plus hot layer)
	cacheStore, err := cache.New(cfg.Cache, repo)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheStore.Close()
	slog.Info("cache initialized", "hot_layer", cfg.Cache.HotLayer)

	// Event bus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Screening engine, preloaded from the database
	screens, err := screen.NewEngine()
	if err != nil {
		slog.Error("failed to initialize screen engine", "error", err)
		os.Exit(1)
	}
	defer screens.Close()
	loadScreensFromDatabase(ctx, repo, screens)

	// Insight writer
	writer := newInsightWriter(ctx, cfg.Insight)

	// Pattern store and freshness gate
	patternStore := patterns.NewStore(repo)
	gate := freshness.NewGate(repo, nil, cfg.Analysis.FreshnessWindow, cfg.Analysis.RefreshTimeout)

	// Orchestrator ties the pipeline together. Records are served from
	// the repository; an external provider can replace the source.
	orch := orchestrator.New(orchestrator.Deps{
		Repo:     repo,
		Cache:    cacheStore,
		Gate:     gate,
		Analyzer: analyzer.New(),
		Patterns: patternStore,
		Screens:  screens,
		Insight:  writer,
		Bus:      busImpl,
		Source:   repository.NewSource(repo),
		Config:   cfg.Analysis,
	})

	// Background maintenance
	sweeper := worker.NewSweeper(cacheStore, patternStore, worker.Config{
		Interval:     cfg.Analysis.SweepInterval,
		RetentionAge: cfg.Analysis.RetentionAge,
		DecayEnabled: os.Getenv("GAVEL_PATTERN_DECAY") == "true",
	})
	sweeper.Start()

	// HTTP server
	srv := api.NewServer(cfg.Server, orch, repo, cacheStore, busImpl, screens, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("gavel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("gavel shutdown complete")
}

// loadScreensFromDatabase preloads enabled global screens. An empty
// database is fine; screens are configured via POST /screens.
func loadScreensFromDatabase(ctx context.Context, repo domain.Repository, engine *screen.Engine) {
	stored, err := repo.ListScreens(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list screens from database", "error", err)
		return
	}
	if len(stored) == 0 {
		slog.Info("no screens in database - configure via POST /screens API")
		return
	}
	if err := engine.ReloadScreens(stored); err != nil {
		slog.Warn("failed to load screens", "error", err)
		return
	}
	slog.Info("screens loaded from database", "count", len(stored))
}

// newInsightWriter selects the configured narrative writer, falling back
// to the template writer when Gemini is unavailable.
func newInsightWriter(ctx context.Context, cfg domain.InsightConfig) domain.InsightWriter {
	if cfg.Writer == "gemini" {
		writer, err := insight.NewGeminiWriter(ctx, cfg.GeminiProject, cfg.GeminiLocation, cfg.GeminiModel)
		if err != nil {
			slog.Warn("gemini writer unavailable, using template writer", "error", err)
			return insight.NewTemplateWriter()
		}
		slog.Info("insight writer initialized", "writer", "gemini", "model", cfg.GeminiModel)
		return writer
	}
	return insight.NewTemplateWriter()
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                    GAVEL")
	fmt.Println("       Auction market analysis with memory")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyses           - Run a market analysis")
	fmt.Println("    GET  /patterns           - List learned patterns")
	fmt.Println("    GET  /cache/history      - Cache history for a subject")
	fmt.Println("    POST /maintenance/purge  - Purge expired cache entries")
	fmt.Println("    GET  /screens            - List opportunity screens")
	fmt.Println("    POST /screens            - Create an opportunity screen")
	fmt.Println("    POST /screens/reload     - Hot-reload screens")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
