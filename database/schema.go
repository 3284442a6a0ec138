package database

// MigrationSchemaVersion tracks the current schema version
const MigrationSchemaVersion = "2026.08.20.001"

// Schema contains the full DDL applied on startup. Statements are
// idempotent so reruns against an existing database are safe.
const Schema = `
-- Decks hold the whole presentation document as JSONB
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Deck listing is ordered by recency
CREATE INDEX IF NOT EXISTS idx_decks_updated_at ON decks (updated_at DESC);
`
