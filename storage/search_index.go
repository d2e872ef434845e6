package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"branchchat/config"
	"branchchat/model"
)

// SessionMessageMatch is one message hit from the cross-session search.
type SessionMessageMatch struct {
	SessionID   string
	SessionName string
	MessageID   string
	Role        string
	Content     string
	Preview     string
	Timestamp   time.Time
}

// SearchIndex mirrors message text into <data_dir>/search.db for LIKE queries
// across sessions. Tool results are indexed alongside message content.
type SearchIndex struct {
	db *sql.DB
}

func NewSearchIndex(dataDir string) (*SearchIndex, error) {
	dbPath := filepath.Join(dataDir, "search.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	index := &SearchIndex{db: db}
	if err := index.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return index, nil
}

func (si *SearchIndex) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (session_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	_, err := si.db.Exec(schema)
	return err
}

func (si *SearchIndex) Close() error {
	return si.db.Close()
}

// IndexSession replaces every indexed row of the session with its current tree.
func (si *SearchIndex) IndexSession(session *Session) error {
	tx, err := si.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("failed to clear session rows: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO sessions (id, name) VALUES (?, ?)`, session.ID, session.Name); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO messages (session_id, message_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	indexed := 0
	for id, msg := range session.State.MessageMap {
		text := searchableText(msg)
		if text == "" {
			continue
		}
		if _, err := stmt.Exec(session.ID, id, string(msg.Role), text, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to index message %s: %w", id, err)
		}
		indexed++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	config.Debugf("[Storage] Indexed %d messages of session %s", indexed, session.ID)
	return nil
}

// RemoveSession drops a deleted session from the index.
func (si *SearchIndex) RemoveSession(id string) error {
	if _, err := si.db.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	_, err := si.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// Rebuild reindexes every session known to storage and forgets the rest.
func (si *SearchIndex) Rebuild(storage *SessionStorage) error {
	sessions, err := storage.List()
	if err != nil {
		return err
	}

	if _, err := si.db.Exec(`DELETE FROM messages; DELETE FROM sessions;`); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}
	for _, meta := range sessions {
		session, err := storage.Load(meta.ID)
		if err != nil {
			continue
		}
		if err := si.IndexSession(session); err != nil {
			return err
		}
	}
	return nil
}

// Search returns messages whose text contains query (ASCII case-insensitive),
// newest first. A limit of zero or less means no limit.
func (si *SearchIndex) Search(query string, limit int) ([]SessionMessageMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SessionMessageMatch{}, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := si.db.Query(`
	SELECT m.session_id, COALESCE(s.name, ''), m.message_id, m.role, m.content, m.timestamp
	FROM messages m
	LEFT JOIN sessions s ON s.id = m.session_id
	WHERE m.content LIKE ? ESCAPE '\'
	ORDER BY m.timestamp DESC
	LIMIT ?
	`, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var matches []SessionMessageMatch
	for rows.Next() {
		var match SessionMessageMatch
		var ts int64
		if err := rows.Scan(&match.SessionID, &match.SessionName, &match.MessageID, &match.Role, &match.Content, &ts); err != nil {
			return nil, err
		}
		match.Timestamp = time.UnixMilli(ts)
		match.Preview = Preview(match.Content, query, 100)
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func searchableText(msg model.Message) string {
	parts := []string{}
	if s := strings.TrimSpace(msg.Content); s != "" {
		parts = append(parts, s)
	}
	for _, call := range msg.ToolCalls {
		parts = append(parts, call.Name)
	}
	for _, result := range msg.ToolResults {
		parts = append(parts, result.Result)
	}
	return strings.Join(parts, "\n")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Preview returns up to width runes of content, starting a little before the
// first occurrence of query.
func Preview(content, query string, width int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= width {
		return content
	}

	start := 0
	if idx := strings.Index(strings.ToLower(content), strings.ToLower(query)); idx > 0 {
		start = len([]rune(content[:idx])) - width/4
		if start < 0 {
			start = 0
		}
	}
	end := start + width
	if end > len(runes) {
		end = len(runes)
		start = max(0, end-width)
	}

	preview := string(runes[start:end])
	if start > 0 {
		preview = "..." + preview
	}
	if end < len(runes) {
		preview += "..."
	}
	return preview
}
