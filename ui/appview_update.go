package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"branchchat/config"
	"branchchat/model"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		a.ready = true
		a.updateViewportContent(true)
		return a, tea.Batch(a.renderPending()...)

	case tea.KeyMsg:
		return a.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.streaming {
			a.updateViewportContent(a.viewport.AtBottom())
		}
		return a, cmd

	case conversationUpdateMsg, turnDoneMsg:
		return a.handleConversationMessage(msg)

	case markdownRenderedMsg:
		delete(a.rendering, msg.messageID)
		a.rendered[msg.messageID] = msg
		a.updateViewportContent(a.viewport.AtBottom())
		return a, nil

	case sessionSavedMsg:
		if msg.err != nil {
			config.Debugf("[UI] Session save failed: %v", msg.err)
			a.setStatus(fmt.Sprintf("Save failed: %v", msg.err), true)
			return a, nil
		}
		a.session = msg.session
		return a, nil

	case searchResultsMsg:
		if msg.err != nil {
			a.setStatus(fmt.Sprintf("Search failed: %v", msg.err), true)
			return a, nil
		}
		a.overlay = formatSearchResults(msg.query, msg.matches, a.session.ID, a.width)
		return a, nil

	case previewMsg:
		if msg.err != nil {
			a.setStatus(fmt.Sprintf("Preview failed: %v", msg.err), true)
			return a, nil
		}
		a.overlay = "Request preview\n\n" + string(msg.wire)
		return a, nil

	case overlayMsg:
		a.overlay = msg.text
		return a, nil

	case statusMsg:
		a.setStatus(msg.text, msg.isErr)
		return a, nil
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pressed := msg.String()

	if a.kb.Matches("quit", pressed) {
		if a.turn != nil {
			a.turn.cancel()
		}
		return a, tea.Sequence(a.saveSession(), tea.Quit)
	}

	if a.showHelp || a.overlay != "" {
		if pressed == "esc" || pressed == "q" || pressed == "enter" || a.kb.Matches("help", pressed) {
			a.showHelp = false
			a.overlay = ""
		}
		return a, nil
	}

	switch {
	case a.kb.Matches("cancel_turn", pressed):
		switch {
		case a.editingID != "":
			a.editingID = ""
			a.textarea.Reset()
		case a.turn != nil:
			a.turn.cancel()
			a.setStatus("Cancelling...", false)
		}
		return a, nil

	case a.kb.Matches("help", pressed):
		a.showHelp = true
		return a, nil

	case a.kb.Matches("regenerate", pressed):
		if a.turn != nil {
			return a, nil
		}
		return a.startTurn("Regenerating", func(ctx context.Context) error {
			return a.conv.Regenerate(ctx, "")
		})

	case a.kb.Matches("branch_prev", pressed):
		return a.navigate(model.Prev)

	case a.kb.Matches("branch_next", pressed):
		return a.navigate(model.Next)

	case a.kb.Matches("yank_last_response", pressed):
		thread := model.Project(a.messages, a.headID)
		for i := len(thread) - 1; i >= 0; i-- {
			if thread[i].Role == model.RoleModel && thread[i].Content != "" {
				a.copyToClipboard(thread[i].Content, "Copied last response")
				return a, nil
			}
		}
		return a, nil

	case a.kb.Matches("yank_conversation", pressed):
		a.copyToClipboard(plainThread(model.Project(a.messages, a.headID)), "Copied conversation")
		return a, nil

	case a.kb.Matches("new_session", pressed):
		return a.runCommand(command{name: "new"})

	case a.kb.Matches("half_page_down", pressed):
		a.viewport.HalfPageDown()
		return a, nil
	case a.kb.Matches("half_page_up", pressed):
		a.viewport.HalfPageUp()
		return a, nil
	case a.kb.Matches("page_down", pressed):
		a.viewport.PageDown()
		return a, nil
	case a.kb.Matches("page_up", pressed):
		a.viewport.PageUp()
		return a, nil
	case a.kb.Matches("scroll_to_top", pressed):
		a.viewport.GotoTop()
		return a, nil
	case a.kb.Matches("scroll_to_bottom", pressed):
		a.viewport.GotoBottom()
		return a, nil
	}

	// Up on an empty input edits the last user message
	if msg.Type == tea.KeyUp && a.textarea.Value() == "" && a.turn == nil {
		thread := model.Project(a.messages, a.headID)
		for i := len(thread) - 1; i >= 0; i-- {
			if thread[i].Role == model.RoleUser {
				a.editingID = thread[i].ID
				a.textarea.SetValue(thread[i].Content)
				return a, nil
			}
		}
	}

	if msg.Type == tea.KeyEnter && !msg.Alt {
		return a.submitInput()
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) submitInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(a.textarea.Value())
	if input == "" {
		return a, nil
	}

	if cmd, ok := parseCommand(input); ok {
		a.textarea.Reset()
		return a.runCommand(cmd)
	}

	if a.turn != nil {
		a.setStatus("Wait for the current response or press esc to cancel", true)
		return a, nil
	}

	a.textarea.Reset()
	if a.editingID != "" {
		nodeID := a.editingID
		a.editingID = ""
		return a.startTurn("Sending edit", func(ctx context.Context) error {
			return a.conv.EditMessage(ctx, nodeID, input)
		})
	}

	config.Debugf("[UI] Sending message (%d chars)", len(input))
	return a.startTurn("Sending", func(ctx context.Context) error {
		return a.conv.SendUserMessage(ctx, input)
	})
}

// startTurn runs fn off the UI goroutine. Progress arrives through the update
// bridge; the return value arrives as turnDoneMsg.
func (a AppView) startTurn(label string, fn func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	a.turn = &turnState{cancel: cancel, started: time.Now()}
	a.setStatus(label+"...", false)

	return a, func() tea.Msg {
		defer cancel()
		return turnDoneMsg{err: fn(ctx)}
	}
}

func (a AppView) navigate(dir model.Direction) (tea.Model, tea.Cmd) {
	if a.turn != nil {
		return a, nil
	}
	point := branchPoint(a.messages, a.headID)
	if point == "" {
		a.setStatus("No other branches on this thread", false)
		return a, nil
	}
	if err := a.conv.Navigate(point, dir); err != nil {
		a.setStatus(err.Error(), true)
		return a, nil
	}
	a.setStatus("", false)
	return a, a.saveSession()
}

// branchPoint returns the deepest node on the active thread that has siblings.
func branchPoint(m model.MessageMap, headID string) string {
	thread := model.Project(m, headID)
	for i := len(thread) - 1; i >= 0; i-- {
		if _, total := model.SiblingPosition(m, thread[i].ID); total > 1 {
			return thread[i].ID
		}
	}
	return ""
}

func (a *AppView) copyToClipboard(text, done string) {
	if err := clipboard.WriteAll(text); err != nil {
		a.setStatus(fmt.Sprintf("Clipboard unavailable: %v", err), true)
		return
	}
	a.setStatus(done, false)
}

// handleConversationMessage applies snapshots and turn completions.
func (a AppView) handleConversationMessage(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case conversationUpdateMsg:
		a.messages = msg.update.Messages
		a.headID = msg.update.HeadID
		a.streaming = msg.update.Streaming
		a.updateViewportContent(true)

		cmds := []tea.Cmd{a.bridge.wait()}
		if !a.streaming {
			cmds = append(cmds, a.renderPending()...)
		}
		return a, tea.Batch(cmds...)

	case turnDoneMsg:
		a.turn = nil
		switch {
		case msg.err == nil:
			a.setStatus("", false)
		case errors.Is(msg.err, context.Canceled):
			a.setStatus("Cancelled", false)
		case errors.Is(msg.err, model.ErrAutoChainLimit):
			a.setStatus("Stopped: too many chained tool turns. Use /continue to go on.", true)
		default:
			a.setStatus(msg.err.Error(), true)
		}
		if msg.err != nil {
			config.Debugf("[UI] Turn ended with error: %v", msg.err)
		}

		// the last bridge snapshot may still be queued behind this message
		a.messages, a.headID = a.conv.Snapshot()
		a.streaming = false
		a.updateViewportContent(true)

		if _, open := model.OpenToolCalls(model.Project(a.messages, a.headID)); len(open) > 0 && msg.err == nil {
			a.setStatus(fmt.Sprintf("%d tool call(s) waiting: /tool <callId> <result>", len(open)), false)
		}
		return a, a.saveSession()
	}
	return a, nil
}
