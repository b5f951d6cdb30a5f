// Package database is the SQLite catalog of persisted overlap networks. It
// records one row per build, keyed by cache key, plus the per-subreddit
// comment totals of that build.
package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// catalogPragmas are applied by the driver to every pooled connection, so
// the build_subreddits cascade holds no matter which connection deletes.
var catalogPragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// DB is the build catalog. A build command and a running server may share
// the same file.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens the catalog at dbPath, creating its directory and schema when
// they do not exist yet.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	conn, err := sql.Open("sqlite", catalogDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening catalog %s: %w", dbPath, err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating catalog schema: %w", err)
	}

	if v, err := getSchemaVersion(conn); err == nil {
		log.Debugf("opened catalog %s (schema v%d)", dbPath, v)
	}
	return &DB{conn: conn, path: dbPath}, nil
}

func catalogDSN(dbPath string) string {
	q := url.Values{}
	for _, p := range catalogPragmas {
		q.Add("_pragma", p)
	}
	return dbPath + "?" + q.Encode()
}

// Close closes the catalog.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the catalog file path.
func (db *DB) Path() string {
	return db.path
}
