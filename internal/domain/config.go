package domain

import "time"

// Config holds the complete Gavel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Analysis   AnalysisConfig   `json:"analysis"`
	Insight    InsightConfig    `json:"insight"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// AnalysisConfig holds the policy knobs of the analysis core.
type AnalysisConfig struct {
	// ValidityWindow is how long a cache hit is served as-is. Distinct
	// from, and much smaller than, RetentionAge.
	ValidityWindow time.Duration `json:"validityWindow"`

	// RetentionAge is the purge cutoff for stored cache entries.
	RetentionAge time.Duration `json:"retentionAge"`

	// FreshnessWindow is how recent a record must be for a subject to
	// count as fresh. Boundary inclusive.
	FreshnessWindow time.Duration `json:"freshnessWindow"`

	// SampleCap bounds the record fetch per analysis.
	SampleCap int `json:"sampleCap"`

	// RefreshTimeout bounds the external refresh call.
	RefreshTimeout time.Duration `json:"refreshTimeout"`

	// InsightTimeout bounds the prose generation call.
	InsightTimeout time.Duration `json:"insightTimeout"`

	// SweepInterval is how often the maintenance worker runs.
	SweepInterval time.Duration `json:"sweepInterval"`
}

// InsightConfig holds insight-writer settings.
type InsightConfig struct {
	// Writer is "gemini" or "template".
	Writer string `json:"writer"`

	// Gemini settings (used when Writer is "gemini")
	GeminiProject  string `json:"geminiProject"`
	GeminiLocation string `json:"geminiLocation"`
	GeminiModel    string `json:"geminiModel"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the subscription tier a request runs under.
type Tier string

const (
	// TierFree gets cached and locally-computed analyses only.
	TierFree Tier = "free"

	// TierPro may trigger external data refreshes.
	TierPro Tier = "pro"

	// TierEnterprise includes everything in Pro plus multi-node backends.
	TierEnterprise Tier = "enterprise"
)

// RefreshEntitled reports whether the tier may trigger external refreshes.
// The allow-list is deliberate: staleness never overrides entitlement.
func (t Tier) RefreshEntitled() bool {
	return t == TierPro || t == TierEnterprise
}

// ValidTier reports whether t is a known tier.
func ValidTier(t Tier) bool {
	return t == TierFree || t == TierPro || t == TierEnterprise
}

// DefaultConfig returns a default configuration for the Community deployment:
// SQLite, in-memory hot cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierFree,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./gavel.db",
		},
		Cache: CacheConfig{
			HotLayer:     "memory",
			LocalMaxSize: 10000,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Analysis: AnalysisConfig{
			ValidityWindow:  30 * time.Minute,
			RetentionAge:    30 * 24 * time.Hour,
			FreshnessWindow: 3 * 24 * time.Hour,
			SampleCap:       15000,
			RefreshTimeout:  20 * time.Second,
			InsightTimeout:  15 * time.Second,
			SweepInterval:   time.Hour,
		},
		Insight: InsightConfig{
			Writer: "template",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "gavel",
		},
	}
}

// ProConfig returns a configuration for the Pro deployment:
// PostgreSQL, Redis hot cache, NATS bus, Gemini insight writer.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "gavel",
	}
	cfg.Cache = CacheConfig{
		HotLayer:  "redis",
		RedisAddr: "localhost:6379",
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Insight = InsightConfig{
		Writer:         "gemini",
		GeminiLocation: "us-central1",
		GeminiModel:    "gemini-2.0-flash",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
