package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "build catalog",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS builds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cache_key TEXT UNIQUE NOT NULL,
    run_id TEXT NOT NULL,
    period_id TEXT NOT NULL,
    data_path TEXT NOT NULL,
    params TEXT NOT NULL,
    subreddit_count INTEGER DEFAULT 0,
    edge_count INTEGER DEFAULT 0,
    author_count INTEGER DEFAULT 0,
    record_count INTEGER DEFAULT 0,
    artifact_dir TEXT NOT NULL,
    formats TEXT NOT NULL,
    built_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_builds_period ON builds(period_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "per-build subreddit totals",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS build_subreddits (
    cache_key TEXT NOT NULL REFERENCES builds(cache_key) ON DELETE CASCADE,
    subreddit_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    total_comments INTEGER NOT NULL,
    PRIMARY KEY (cache_key, subreddit_id)
);

CREATE INDEX IF NOT EXISTS idx_build_subreddits_name ON build_subreddits(name);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
