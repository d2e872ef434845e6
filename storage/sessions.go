package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"branchchat/config"
	"branchchat/model"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one saved conversation tree.
type Session struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	State     model.State `json:"state"`
}

// SessionMetadata is a lightweight version of Session for listing
type SessionMetadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	BranchCount  int       `json:"branch_count"`
}

// SessionStorage keeps one JSON file per session under <data_dir>/sessions.
type SessionStorage struct {
	sessionsDir string
}

func NewSessionStorage(dataDir string) (*SessionStorage, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")

	if err := os.MkdirAll(sessionsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &SessionStorage{
		sessionsDir: sessionsDir,
	}, nil
}

// Save writes a session to disk, assigning an id and timestamps as needed.
func (s *SessionStorage) Save(session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	session.UpdatedAt = time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// 0600: session files contain conversation history
	if err := os.WriteFile(s.sessionPath(session.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	config.Debugf("[Storage] Saved session %s (%d messages)", session.ID, len(session.State.MessageMap))
	return nil
}

func (s *SessionStorage) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.State.Config.ApplyDefaults()

	return &session, nil
}

// List returns metadata for all sessions, sorted by update time (newest first)
func (s *SessionStorage) List() ([]SessionMetadata, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []SessionMetadata

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		session, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			config.Debugf("[Storage] Skipping unreadable session %s: %v", entry.Name(), err)
			continue
		}

		sessions = append(sessions, session.Metadata())
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions, nil
}

func (s *SessionStorage) Delete(id string) error {
	if err := os.Remove(s.sessionPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	if current, _ := s.LoadCurrentSessionID(); current == id {
		_ = os.Remove(s.currentPath())
	}
	return nil
}

// SaveCurrentSessionID records the session to reopen on next start.
func (s *SessionStorage) SaveCurrentSessionID(id string) error {
	return os.WriteFile(s.currentPath(), []byte(id), 0600)
}

// LoadCurrentSessionID returns the last active session id, or "" when none is recorded.
func (s *SessionStorage) LoadCurrentSessionID() (string, error) {
	data, err := os.ReadFile(s.currentPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *SessionStorage) RenameSession(id string, newName string) error {
	session, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	session.Name = newName

	if err := s.Save(session); err != nil {
		return fmt.Errorf("failed to save renamed session: %w", err)
	}

	return nil
}

// ExportToJSON writes a session's {config, messageMap, headId} document to exportPath.
func (s *SessionStorage) ExportToJSON(id string, exportPath string) error {
	session, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	data, err := session.State.Encode()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ImportFromJSON reads an exported conversation and saves it as a new session.
// An empty name is derived from the first user message.
func (s *SessionStorage) ImportFromJSON(importPath, name string) (*Session, error) {
	data, err := os.ReadFile(importPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	state, err := model.DecodeState(data)
	if err != nil {
		return nil, err
	}

	session := &Session{State: state}
	session.Name = name
	if session.Name == "" {
		session.Name = GenerateSessionName(session.FirstUserMessage())
	}
	if err := s.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionStorage) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir, id+".json")
}

func (s *SessionStorage) currentPath() string {
	return filepath.Join(filepath.Dir(s.sessionsDir), "current_session.id")
}

// Metadata summarizes the session for listings.
func (s *Session) Metadata() SessionMetadata {
	return SessionMetadata{
		ID:           s.ID,
		Name:         s.Name,
		Model:        s.State.Config.ActiveModel,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.State.MessageMap),
		BranchCount:  countLeaves(s.State.MessageMap),
	}
}

// FirstUserMessage returns the content of the first user node on the active thread.
func (s *Session) FirstUserMessage() string {
	for _, msg := range model.Project(s.State.MessageMap, s.State.HeadID) {
		if msg.Role == model.RoleUser {
			return msg.Content
		}
	}
	return ""
}

func countLeaves(m model.MessageMap) int {
	n := 0
	for _, msg := range m {
		if len(msg.ChildrenIDs) == 0 {
			n++
		}
	}
	return n
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
		"<", "-", ">", "-", "|", "-", " ", "-", "\n", "-", "\r", "-",
	)
	name = replacer.Replace(name)
	name = strings.Trim(name, "-.")

	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}

	if name == "" {
		name = "session"
	}

	return name
}

// GenerateExportPath returns ~/Downloads/branchchat-<name>-<timestamp>.json.
func GenerateExportPath(sessionName string) string {
	downloadsDir := filepath.Join(config.GetHomeDir(), "Downloads")
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("branchchat-%s-%s.json", SanitizeFilename(sessionName), timestamp)
	return filepath.Join(downloadsDir, filename)
}

// GenerateSessionName derives a session name from the first user message,
// truncated to 30 columns.
func GenerateSessionName(firstMessage string) string {
	name := strings.Join(strings.Fields(firstMessage), " ")
	if name == "" {
		return fmt.Sprintf("Session %s", time.Now().Format("Jan 2, 3:04 PM"))
	}
	if runewidth.StringWidth(name) > 30 {
		name = runewidth.Truncate(name, 30, "...")
	}
	return name
}
