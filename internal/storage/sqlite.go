package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps each history blob in a single-row-per-key table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the chat history database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createHistoryTable := `
	CREATE TABLE IF NOT EXISTS chat_history (
		key TEXT PRIMARY KEY,
		blob TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(createHistoryTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chat_history table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Read returns the blob stored under key, if any.
func (s *SQLiteStore) Read(key string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT blob FROM chat_history WHERE key = ?", key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read history blob: %w", err)
	}
	return blob, true, nil
}

// Write replaces the blob stored under key.
func (s *SQLiteStore) Write(key string, blob []byte) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO chat_history (key, blob, updated_at) VALUES (?, ?, ?)",
		key, blob, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write history blob: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
