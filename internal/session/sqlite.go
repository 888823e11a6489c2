package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps session values in an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the
// schema exists. ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// Each connection of an in-memory database is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS report_sessions (
			session_id TEXT NOT NULL,
			key        TEXT NOT NULL,
			payload    TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, key)
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID, key string) (map[string]string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM report_sessions WHERE session_id = ? AND key = ?",
		sessionID, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s/%s: %w", sessionID, key, err)
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return nil, fmt.Errorf("decode session %s/%s: %w", sessionID, key, err)
	}
	return values, nil
}

func (s *SQLiteStore) Set(ctx context.Context, sessionID, key string, values map[string]string) error {
	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session %s/%s: %w", sessionID, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO report_sessions (session_id, key, payload, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (session_id, key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, key, string(payload))
	if err != nil {
		return fmt.Errorf("save session %s/%s: %w", sessionID, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM report_sessions WHERE session_id = ? AND key = ?", sessionID, key)
	if err != nil {
		return fmt.Errorf("delete session %s/%s: %w", sessionID, key, err)
	}
	return nil
}
