package database

import (
	"database/sql"
	"fmt"
	"strings"
)

const buildColumns = `id, cache_key, run_id, period_id, data_path, params, subreddit_count,
	edge_count, author_count, record_count, artifact_dir, formats, built_at`

// InsertBuild records a build and its subreddit totals, replacing any
// earlier entry with the same key.
func (db *DB) InsertBuild(b Build, totals []SubredditTotal) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin insert build: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM build_subreddits WHERE cache_key = ?", b.Key); err != nil {
		return 0, fmt.Errorf("clearing subreddit totals: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM builds WHERE cache_key = ?", b.Key); err != nil {
		return 0, fmt.Errorf("clearing build: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO builds (cache_key, run_id, period_id, data_path, params, subreddit_count,
		edge_count, author_count, record_count, artifact_dir, formats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Key, b.RunID, b.PeriodID, b.DataPath, b.Params, b.Subreddits,
		b.Edges, b.Authors, b.Records, b.Dir, strings.Join(b.Formats, ","),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting build: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO build_subreddits (cache_key, subreddit_id, name, total_comments) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare subreddit totals: %w", err)
	}
	defer stmt.Close()
	for _, s := range totals {
		if _, err := stmt.Exec(b.Key, s.ID, s.Name, s.TotalComments); err != nil {
			return 0, fmt.Errorf("inserting subreddit %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit build: %w", err)
	}
	return id, nil
}

// GetBuild returns the build with the given cache key, or nil.
func (db *DB) GetBuild(key string) (*Build, error) {
	row := db.conn.QueryRow("SELECT "+buildColumns+" FROM builds WHERE cache_key = ?", key)
	b, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// GetLatestBuild returns the most recent build for periodID, or across all
// periods when periodID is empty. Returns nil when there is none.
func (db *DB) GetLatestBuild(periodID string) (*Build, error) {
	query := "SELECT " + buildColumns + " FROM builds"
	var args []any
	if periodID != "" {
		query += " WHERE period_id = ?"
		args = append(args, periodID)
	}
	query += " ORDER BY built_at DESC, id DESC LIMIT 1"

	b, err := scanBuild(db.conn.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// GetAllBuilds returns every build, newest first.
func (db *DB) GetAllBuilds() ([]Build, error) {
	rows, err := db.conn.Query("SELECT " + buildColumns + " FROM builds ORDER BY built_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBuilds(rows)
}

// DeleteStaleBuilds removes builds of the same period and data path that
// were made under a different key. The removed entries are returned so the
// caller can delete their artifact directories.
func (db *DB) DeleteStaleBuilds(periodID, dataPath, keepKey string) ([]Build, error) {
	rows, err := db.conn.Query(
		"SELECT "+buildColumns+" FROM builds WHERE period_id = ? AND data_path = ? AND cache_key != ?",
		periodID, dataPath, keepKey,
	)
	if err != nil {
		return nil, err
	}
	stale, err := scanBuilds(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	for _, b := range stale {
		if _, err := tx.Exec("DELETE FROM build_subreddits WHERE cache_key = ?", b.Key); err != nil {
			return nil, err
		}
		if _, err := tx.Exec("DELETE FROM builds WHERE cache_key = ?", b.Key); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stale, nil
}

// GetSubredditTotals returns the subreddit totals of a build ordered by id.
func (db *DB) GetSubredditTotals(key string) ([]SubredditTotal, error) {
	rows, err := db.conn.Query(
		`SELECT subreddit_id, name, total_comments FROM build_subreddits
		WHERE cache_key = ? ORDER BY subreddit_id`, key,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []SubredditTotal
	for rows.Next() {
		var s SubredditTotal
		if err := rows.Scan(&s.ID, &s.Name, &s.TotalComments); err != nil {
			return nil, err
		}
		totals = append(totals, s)
	}
	return totals, rows.Err()
}

// GetStats returns aggregate catalog statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	if err := db.conn.QueryRow(
		"SELECT COUNT(*), COUNT(DISTINCT period_id) FROM builds",
	).Scan(&s.TotalBuilds, &s.Periods); err != nil {
		return nil, err
	}

	latest, err := db.GetLatestBuild("")
	if err != nil {
		return nil, err
	}
	if latest != nil {
		s.LatestKey = latest.Key
		if latest.BuiltAt != nil {
			s.LatestAt = *latest.BuiltAt
		}
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (*Build, error) {
	var b Build
	var formats string
	if err := row.Scan(&b.ID, &b.Key, &b.RunID, &b.PeriodID, &b.DataPath, &b.Params,
		&b.Subreddits, &b.Edges, &b.Authors, &b.Records, &b.Dir, &formats, &b.BuiltAt); err != nil {
		return nil, err
	}
	if formats != "" {
		b.Formats = strings.Split(formats, ",")
	}
	return &b, nil
}

func scanBuilds(rows *sql.Rows) ([]Build, error) {
	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}
