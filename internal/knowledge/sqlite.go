package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Lookup over a SQLite table of snippets.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the knowledge database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS snippets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(topic, content)
	);
	CREATE INDEX IF NOT EXISTS idx_snippets_topic ON snippets(topic);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add stores snippets, ignoring exact duplicates. It returns the number inserted.
func (s *SQLiteStore) Add(ctx context.Context, snippets ...Snippet) (int, error) {
	if len(snippets) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO snippets (topic, content, source, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, sn := range snippets {
		topic := strings.TrimSpace(sn.Topic)
		content := strings.TrimSpace(sn.Content)
		if topic == "" || content == "" {
			continue
		}
		created := sn.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		res, err := stmt.ExecContext(ctx, topic, content, sn.Source, created)
		if err != nil {
			return 0, fmt.Errorf("failed to insert snippet: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// Count returns the number of stored snippets.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snippets").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snippets: %w", err)
	}
	return n, nil
}

// All returns every snippet in insertion order.
func (s *SQLiteStore) All(ctx context.Context) ([]Snippet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, topic, content, COALESCE(source, ''), created_at FROM snippets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query snippets: %w", err)
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.ID, &sn.Topic, &sn.Content, &sn.Source, &sn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snippet: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// Lookup implements Lookup. Candidates are narrowed in SQL by any query term
// and ranked by term overlap.
func (s *SQLiteStore) Lookup(ctx context.Context, topic string, limit int) ([]Snippet, error) {
	terms := Terms(topic)
	if len(terms) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, 2*len(terms))
	for _, t := range terms {
		clauses = append(clauses, "(LOWER(topic) LIKE ? OR LOWER(content) LIKE ?)")
		like := "%" + t + "%"
		args = append(args, like, like)
	}
	query := "SELECT id, topic, content, COALESCE(source, ''), created_at FROM snippets WHERE " +
		strings.Join(clauses, " OR ") + " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snippets: %w", err)
	}
	defer rows.Close()

	var candidates []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.ID, &sn.Topic, &sn.Content, &sn.Source, &sn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snippet: %w", err)
		}
		candidates = append(candidates, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(topic, candidates, limit), nil
}

// LoadFile reads snippets from a JSON array file of {topic, content, source}.
func LoadFile(path string) ([]Snippet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var snippets []Snippet
	if err := json.Unmarshal(data, &snippets); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return snippets, nil
}

var _ Lookup = (*SQLiteStore)(nil)
