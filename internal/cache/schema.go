package cache

// Schema contains SQL schema definitions for the folder cache.
const Schema = `
-- Folder cache entries, one JSON payload per scope key.
-- Keys are version-prefixed; bumping the payload version abandons
-- entries written under older versions.
CREATE TABLE IF NOT EXISTS folder_cache (
    key TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_folder_cache_updated_at ON folder_cache(updated_at);
`
