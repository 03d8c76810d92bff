package repository

// Schema definitions for the Gavel database.
// Compatible with both SQLite and PostgreSQL.

const schemaSaleRecords = `
CREATE TABLE IF NOT EXISTS sale_records (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    make TEXT NOT NULL,
    model TEXT NOT NULL,
    year INTEGER NOT NULL,
    damage TEXT,
    location TEXT,
    source TEXT,
    price REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    sold_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sale_records_tenant ON sale_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sale_records_subject ON sale_records(tenant_id, subject, sold_at);
CREATE INDEX IF NOT EXISTS idx_sale_records_make ON sale_records(tenant_id, make, year);
CREATE INDEX IF NOT EXISTS idx_sale_records_sold_at ON sale_records(tenant_id, sold_at);
`

const schemaAnalysisCache = `
CREATE TABLE IF NOT EXISTS analysis_cache (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    analysis_type TEXT NOT NULL,
    identity TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_accessed_at TIMESTAMP NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_analysis_cache_identity ON analysis_cache(tenant_id, identity, created_at);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_subject ON analysis_cache(tenant_id, subject, created_at);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_created ON analysis_cache(created_at);
`

const schemaMarketPatterns = `
CREATE TABLE IF NOT EXISTS market_patterns (
    identity TEXT PRIMARY KEY,
    analysis_type TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    confidence REAL NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    first_seen TIMESTAMP NOT NULL,
    last_seen TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_market_patterns_analysis ON market_patterns(analysis_type, confidence);
CREATE INDEX IF NOT EXISTS idx_market_patterns_type ON market_patterns(pattern_type);
CREATE INDEX IF NOT EXISTS idx_market_patterns_seen ON market_patterns(last_seen);
`

const schemaScreens = `
CREATE TABLE IF NOT EXISTS screens (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_screens_tenant ON screens(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSaleRecords,
		schemaAnalysisCache,
		schemaMarketPatterns,
		schemaScreens,
	}
}
