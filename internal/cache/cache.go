// Package cache persists classification verdicts keyed by content
// fingerprint, so an email is only ever classified once.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mailsift/mailsift/internal/protocol"
)

// Store is the SQLite-backed verdict cache.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the verdict cache at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS verdicts (
			fingerprint    TEXT PRIMARY KEY,
			brief_analysis TEXT NOT NULL,
			type           TEXT NOT NULL,
			confidence     REAL NOT NULL,
			model          TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL
		)
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached verdict for a fingerprint, if any.
func (s *Store) Get(fingerprint string) (protocol.Verdict, bool, error) {
	var v protocol.Verdict
	err := s.db.QueryRow(
		"SELECT brief_analysis, type, confidence FROM verdicts WHERE fingerprint = ?",
		fingerprint,
	).Scan(&v.BriefAnalysis, &v.Category, &v.Confidence)
	if err == sql.ErrNoRows {
		return protocol.Verdict{}, false, nil
	}
	if err != nil {
		return protocol.Verdict{}, false, err
	}
	return v, true, nil
}

// Put stores a verdict for a fingerprint. Writes are idempotent: the first
// verdict for a fingerprint wins and later writes are ignored, so
// concurrent classification of identical content cannot flap the cache.
func (s *Store) Put(fingerprint string, v protocol.Verdict, model string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO verdicts
			(fingerprint, brief_analysis, type, confidence, model, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
		fingerprint, v.BriefAnalysis, v.Category, v.Confidence, model, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Clear removes every cached verdict. There is no partial invalidation;
// a model or policy change requires clearing everything.
func (s *Store) Clear() error {
	_, err := s.db.Exec("DELETE FROM verdicts")
	return err
}

// Count returns the number of cached verdicts.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM verdicts").Scan(&n)
	return n, err
}

// Stats summarizes cache contents per producing model, which makes verdict
// staleness visible after a model change.
func (s *Store) Stats() (map[string]int64, error) {
	rows, err := s.db.Query("SELECT model, COUNT(*) FROM verdicts GROUP BY model")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var model string
		var n int64
		if err := rows.Scan(&model, &n); err != nil {
			return nil, err
		}
		stats[model] = n
	}
	return stats, rows.Err()
}
