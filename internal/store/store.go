package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnchat/learnchat/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_contexts (
		session_id TEXT PRIMARY KEY,
		context TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		selected TEXT NOT NULL,
		correct TEXT NOT NULL,
		is_correct INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generated_items (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_data TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_responses_session ON responses(session_id);
	CREATE INDEX IF NOT EXISTS idx_responses_item ON responses(item_id);
	CREATE INDEX IF NOT EXISTS idx_generated_session ON generated_items(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSessionContext upserts the per-session context document. The blob is
// stored as-is; the server does not pick it apart.
func (s *Store) SaveSessionContext(sessionID string, context json.RawMessage) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO session_contexts (session_id, context, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET context = ?, updated_at = ?`,
		sessionID, string(context), now, now, string(context), now,
	)
	return err
}

// GetSessionContext returns the context document for a session, or nil if
// none has been saved.
func (s *Store) GetSessionContext(sessionID string) (json.RawMessage, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT context FROM session_contexts WHERE session_id = ?`, sessionID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(blob), nil
}

// LogResponse appends one answer record and returns its assigned id.
func (s *Store) LogResponse(rec model.ResponseRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO responses (id, session_id, item_id, selected, correct, is_correct, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.SessionID, rec.ItemID, rec.Selected, rec.Correct, rec.IsCorrect, rec.LatencyMS, createdAt,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// LogGeneratedItem records an LLM-synthesized item and returns its
// assigned id.
func (s *Store) LogGeneratedItem(item model.GeneratedItem) (string, error) {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO generated_items (id, session_id, item_id, item_data, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, item.SessionID, item.ItemID, string(item.Data), createdAt,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// SeenItemIDs returns the distinct item ids a session has already answered.
// The chat loop excludes these from item lookups so the learner never gets
// a repeat.
func (s *Store) SeenItemIDs(sessionID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT item_id FROM responses WHERE session_id = ? ORDER BY item_id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats summarizes all logged responses.
func (s *Store) Stats() (model.ResponseStats, error) {
	var stats model.ResponseStats
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(is_correct), 0) FROM responses`,
	).Scan(&stats.TotalResponses, &stats.CorrectResponses)
	if err != nil {
		return stats, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM generated_items`).Scan(&stats.GeneratedItems); err != nil {
		return stats, err
	}
	if stats.TotalResponses > 0 {
		stats.AccuracyPercent = float64(stats.CorrectResponses) / float64(stats.TotalResponses) * 100
	}
	return stats, nil
}

// RecentResponses returns the most recent answer records, newest first.
func (s *Store) RecentResponses(limit int) ([]model.ResponseRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, item_id, selected, correct, is_correct, latency_ms, created_at
		 FROM responses ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResponses(rows)
}

// RecentGeneratedItems returns the most recently logged synthesized items.
func (s *Store) RecentGeneratedItems(limit int) ([]model.GeneratedItem, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, item_id, item_data, created_at
		 FROM generated_items ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.GeneratedItem
	for rows.Next() {
		var it model.GeneratedItem
		var data string
		if err := rows.Scan(&it.ID, &it.SessionID, &it.ItemID, &data, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Data = json.RawMessage(data)
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanResponses(rows *sql.Rows) ([]model.ResponseRecord, error) {
	var records []model.ResponseRecord
	for rows.Next() {
		var rec model.ResponseRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ItemID, &rec.Selected, &rec.Correct,
			&rec.IsCorrect, &rec.LatencyMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
