package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stupiduntilnot/chousei/internal/history"
)

// SQLiteBackend keeps the state in a single SQLite database. Each Save
// replaces the stored snapshot in one transaction, so readers never observe
// a partially-written state.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at the given path, ensuring the
// parent directory exists, and initializes the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			ts TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL,
			text TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_conversation_id ON history(conversation_id, id);
	`)
	return err
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Load reads the full snapshot. Rows with empty or unparsable timestamp text
// load with a zero Timestamp rather than being dropped. A query failure
// returns an empty state plus the error, so startup can log and continue.
func (b *SQLiteBackend) Load() (map[string][]history.MessageRecord, error) {
	state := map[string][]history.MessageRecord{}

	rows, err := b.db.Query(
		`SELECT conversation_id, ts, author, text FROM history ORDER BY id`,
	)
	if err != nil {
		return state, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, ts, author, text string
		if err := rows.Scan(&id, &ts, &author, &text); err != nil {
			return map[string][]history.MessageRecord{}, fmt.Errorf("scan history row: %w", err)
		}
		state[id] = append(state[id], history.MessageRecord{
			Timestamp: parseTime(ts),
			Author:    author,
			Text:      text,
		})
	}
	if err := rows.Err(); err != nil {
		return map[string][]history.MessageRecord{}, fmt.Errorf("read history rows: %w", err)
	}
	return state, nil
}

// Save replaces the stored snapshot with the given state in one transaction.
func (b *SQLiteBackend) Save(state map[string][]history.MessageRecord) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO history (conversation_id, ts, author, text) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, log := range state {
		for _, r := range log {
			if _, err := stmt.Exec(id, formatTime(r.Timestamp), r.Author, r.Text); err != nil {
				return fmt.Errorf("insert record for %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}
