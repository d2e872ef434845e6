package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"branchchat/config"
	"branchchat/model"
	"branchchat/storage"
)

// command is a parsed slash command: "/name arg text".
type command struct {
	name string
	arg  string
}

// parseCommand recognizes input starting with a single "/". "//text" is not a
// command, so messages can still start with a slash.
func parseCommand(input string) (command, bool) {
	if !strings.HasPrefix(input, "/") || strings.HasPrefix(input, "//") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return command{}, false
	}
	return command{name: name, arg: strings.TrimSpace(arg)}, true
}

func (a AppView) runCommand(cmd command) (tea.Model, tea.Cmd) {
	switch cmd.name {
	case "help":
		a.showHelp = true
		return a, nil

	case "tool", "toolerr":
		callID, result, _ := strings.Cut(cmd.arg, " ")
		if callID == "" {
			a.setStatus("Usage: /tool <callId> <result>", true)
			return a, nil
		}
		if a.turn != nil {
			a.setStatus("Wait for the current response first", true)
			return a, nil
		}
		result = strings.TrimSpace(result)
		isError := cmd.name == "toolerr"
		return a.startTurn("Submitting tool result", func(ctx context.Context) error {
			return a.conv.SubmitToolResult(ctx, callID, result, isError)
		})

	case "continue":
		if a.turn != nil {
			return a, nil
		}
		return a.startTurn("Continuing", func(ctx context.Context) error {
			return a.conv.Continue(ctx)
		})

	case "edit":
		thread := model.Project(a.messages, a.headID)
		for i := len(thread) - 1; i >= 0; i-- {
			if thread[i].Role == model.RoleUser {
				a.editingID = thread[i].ID
				a.textarea.SetValue(thread[i].Content)
				return a, nil
			}
		}
		a.setStatus("Nothing to edit", true)
		return a, nil

	case "model":
		if cmd.arg == "" {
			a.overlay = formatModelList(a.cfg)
			return a, nil
		}
		m, ok := matchModel(a.cfg.Models, cmd.arg)
		if !ok {
			a.setStatus(fmt.Sprintf("No model matches %q", cmd.arg), true)
			return a, nil
		}
		if err := a.conv.SetActiveModel(m.ID); err != nil {
			a.setStatus(err.Error(), true)
			return a, nil
		}
		a.setStatus(fmt.Sprintf("Switched to %s", m.ID), false)
		return a, saveConfig(a.cfg)

	case "new":
		if a.turn != nil {
			return a, nil
		}
		save := a.saveSession()
		a.session = newSession()
		if err := a.conv.Load(a.session.State); err != nil {
			a.setStatus(err.Error(), true)
			return a, nil
		}
		a.rendered = make(map[string]markdownRenderedMsg)
		a.editingID = ""
		a.setStatus("New session", false)
		return a, save

	case "save", "rename":
		if cmd.arg != "" {
			session := *a.session
			session.Name = cmd.arg
			a.session = &session
		}
		return a, a.saveSession()

	case "sessions":
		return a, a.listSessions()

	case "open":
		if a.turn != nil || cmd.arg == "" {
			return a, nil
		}
		session, err := a.sessions.Load(cmd.arg)
		if err != nil {
			a.setStatus(err.Error(), true)
			return a, nil
		}
		if err := a.conv.Load(session.State); err != nil {
			a.setStatus(err.Error(), true)
			return a, nil
		}
		a.session = session
		a.rendered = make(map[string]markdownRenderedMsg)
		a.setStatus(fmt.Sprintf("Opened %s", session.Name), false)
		return a, nil

	case "goto":
		if err := a.conv.SetHead(cmd.arg); err != nil {
			a.setStatus(err.Error(), true)
			return a, nil
		}
		return a, a.saveSession()

	case "search":
		if cmd.arg == "" {
			a.setStatus("Usage: /search <text>", true)
			return a, nil
		}
		return a, a.searchSessions(cmd.arg)

	case "preview":
		conv := a.conv
		return a, func() tea.Msg {
			wire, err := conv.PreviewRequest(context.Background())
			return previewMsg{wire: wire, err: err}
		}
	}

	a.setStatus(fmt.Sprintf("Unknown command /%s (try /help)", cmd.name), true)
	return a, nil
}

// matchModel resolves a query to a configured model: exact id first, then the
// best fuzzy match over "id provider model".
func matchModel(models []config.ModelConfig, query string) (config.ModelConfig, bool) {
	for _, m := range models {
		if strings.EqualFold(m.ID, query) {
			return m, true
		}
	}

	targets := make([]string, len(models))
	for i, m := range models {
		targets[i] = fmt.Sprintf("%s %s %s", m.ID, m.Provider, m.Model)
	}
	matches := fuzzy.Find(query, targets)
	if len(matches) == 0 {
		return config.ModelConfig{}, false
	}
	return models[matches[0].Index], true
}

func formatModelList(cfg *config.Config) string {
	var b strings.Builder
	b.WriteString("Models (switch with /model <query>)\n\n")
	for _, m := range cfg.Models {
		marker := "  "
		if m.ID == cfg.ActiveModel {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%-20s %-10s %s\n", marker, m.ID, m.Provider, m.Model)
	}
	return b.String()
}

func formatSearchResults(query string, matches []storage.SessionMessageMatch, currentSessionID string, width int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search: %s (%d)\n\n", query, len(matches))
	if len(matches) == 0 {
		b.WriteString("No matches.\n")
	}
	for _, m := range matches {
		jump := fmt.Sprintf("/open %s", m.SessionID)
		if m.SessionID == currentSessionID {
			jump = fmt.Sprintf("/goto %s", m.MessageID)
		}
		fmt.Fprintf(&b, "%s  %s [%s]\n  %s\n  %s\n\n",
			m.Timestamp.Format("Jan 2 15:04"), m.SessionName, m.Role,
			truncate(m.Preview, width-6), DimStyle.Render(jump))
	}
	return b.String()
}

func (a AppView) searchSessions(query string) tea.Cmd {
	index := a.search
	return func() tea.Msg {
		if index == nil {
			return searchResultsMsg{query: query, err: fmt.Errorf("search index unavailable")}
		}
		matches, err := index.Search(query, 50)
		return searchResultsMsg{query: query, matches: matches, err: err}
	}
}

func (a AppView) listSessions() tea.Cmd {
	sessions := a.sessions
	current := a.session.ID
	return func() tea.Msg {
		list, err := sessions.List()
		if err != nil {
			return statusMsg{text: err.Error(), isErr: true}
		}
		var b strings.Builder
		b.WriteString("Sessions (open with /open <id>)\n\n")
		for _, s := range list {
			marker := "  "
			if s.ID == current {
				marker = "* "
			}
			fmt.Fprintf(&b, "%s%s  %s  %d msgs, %d branches\n    %s\n", marker,
				s.UpdatedAt.Format("Jan 2 15:04"), s.Name, s.MessageCount, s.BranchCount, DimStyle.Render(s.ID))
		}
		return overlayMsg{text: b.String()}
	}
}

// saveSession persists the current tree and refreshes the search index.
// Empty sessions are not written.
func (a AppView) saveSession() tea.Cmd {
	if a.sessions == nil || a.session == nil {
		return nil
	}
	state := a.conv.State()
	if len(state.MessageMap) == 0 {
		return nil
	}

	session := *a.session
	session.State = state
	sessions, index := a.sessions, a.search
	return func() tea.Msg {
		if session.Name == "" {
			session.Name = storage.GenerateSessionName(session.FirstUserMessage())
		}
		if err := sessions.Save(&session); err != nil {
			return sessionSavedMsg{err: err}
		}
		if err := sessions.SaveCurrentSessionID(session.ID); err != nil {
			config.Debugf("[UI] Could not record current session: %v", err)
		}
		if index != nil {
			if err := index.IndexSession(&session); err != nil {
				config.Debugf("[UI] Search index update failed: %v", err)
			}
		}
		return sessionSavedMsg{session: &session}
	}
}

func saveConfig(cfg *config.Config) tea.Cmd {
	return func() tea.Msg {
		if err := cfg.Save(); err != nil {
			return statusMsg{text: fmt.Sprintf("Could not save config: %v", err), isErr: true}
		}
		return nil
	}
}
