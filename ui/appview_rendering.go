package ui

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mattn/go-runewidth"

	"branchchat/config"
	"branchchat/model"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
)

func (a *AppView) updateViewportContent(gotoBottom bool) {
	thread := model.Project(a.messages, a.headID)
	if len(thread) == 0 {
		a.viewport.SetContent(DimStyle.Render("No messages yet. Start chatting!"))
		return
	}

	var content strings.Builder
	for i, msg := range thread {
		live := a.streaming && i == len(thread)-1
		content.WriteString(a.renderMessage(msg, thread, live))
	}

	a.viewport.SetContent(content.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

func (a AppView) renderMessage(msg model.Message, thread []model.Message, live bool) string {
	timestamp := DimStyle.Render(msg.Time().Format("[15:04]"))
	branch := ""
	if pos, total := model.SiblingPosition(a.messages, msg.ID); total > 1 {
		branch = " " + HighlightStyle.Render(fmt.Sprintf("‹%d/%d›", pos+1, total))
	}

	switch msg.Role {
	case model.RoleUser:
		return formatUserMessage(timestamp+branch, UserStyle.Render("You"), a.messageBody(msg))

	case model.RoleTool:
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s%s\n", timestamp, ToolStyle.Render("Tool"), branch)
		for _, r := range msg.ToolResults {
			style := DimStyle
			if r.IsError {
				style = ErrorStyle
			}
			b.WriteString(style.Render(truncate(fmt.Sprintf("↳ %s: %s", r.CallID, r.Result), a.width-2)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s%s\n", timestamp, AssistantStyle.Render(a.modelLabel()), branch)

	body := a.messageBody(msg)
	switch {
	case live && msg.Content == "" && len(msg.ToolCalls) == 0:
		body = a.spinner.View() + " thinking..."
	case live:
		body = msg.Content + "▋"
	}
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}

	for _, call := range msg.ToolCalls {
		line := fmt.Sprintf("⚙ %s(%s) [%s]", call.Name, argsPreview(call.Args), call.ID)
		b.WriteString(ToolStyle.Render(truncate(line, a.width-2)))
		if !live {
			if _, answered := model.FindAnswerFor(call, thread); !answered {
				b.WriteString(DimStyle.Render("  awaiting /tool " + call.ID + " <result>"))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (a AppView) modelLabel() string {
	if m, ok := a.cfg.FindModel(a.conv.ActiveModel()); ok {
		return m.ID
	}
	return "Model"
}

// messageBody returns the cached markdown rendering when it matches the
// current content and width, and the raw text otherwise.
func (a AppView) messageBody(msg model.Message) string {
	if r, ok := a.rendered[msg.ID]; ok && r.content == msg.Content && r.width == a.width {
		return r.rendered
	}
	return msg.Content
}

// renderPending queues markdown renders for thread messages whose cache is
// stale. Nothing is queued while a stream is live.
func (a *AppView) renderPending() []tea.Cmd {
	if a.width <= 0 || a.streaming {
		return nil
	}
	var cmds []tea.Cmd
	for _, msg := range model.Project(a.messages, a.headID) {
		if msg.Role == model.RoleTool || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if r, ok := a.rendered[msg.ID]; ok && r.content == msg.Content && r.width == a.width {
			continue
		}
		if inflight, ok := a.rendering[msg.ID]; ok && inflight == msg.Content {
			continue
		}
		a.rendering[msg.ID] = msg.Content
		cmds = append(cmds, renderMarkdownAsync(msg.ID, msg.Content, a.width))
	}
	return cmds
}

func renderMarkdownAsync(messageID, content string, width int) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		rendered := renderMarkdown(content, width)
		config.Debugf("[UI] Rendered markdown for %s in %v", messageID, time.Since(start))
		return markdownRenderedMsg{
			messageID: messageID,
			content:   content,
			width:     width,
			rendered:  rendered,
		}
	}
}

func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	// Links render as bare URLs so terminals can detect them
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	r := markdown.NewRenderer(width-4, 0)
	rendered := string(gomarkdown.Render(p.Parse([]byte(content)), r))

	// Inline code: blue background becomes red text
	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	return strings.TrimRight(rendered, "\n")
}

func formatUserMessage(header, role, content string) string {
	bar := UserStyle.Render("┃")

	var result strings.Builder
	fmt.Fprintf(&result, "%s %s %s\n", bar, header, role)
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&result, "%s %s\n", bar, line)
	}
	result.WriteString("\n")
	return result.String()
}

// argsPreview renders call arguments as compact JSON.
func argsPreview(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(data)
}

// truncate shortens s to width terminal columns.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// plainThread formats a thread for the clipboard.
func plainThread(thread []model.Message) string {
	var b strings.Builder
	for _, msg := range thread {
		fmt.Fprintf(&b, "[%s] %s:\n", msg.Time().Format("15:04"), msg.Role)
		if msg.Content != "" {
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&b, "call %s %s(%s)\n", call.ID, call.Name, argsPreview(call.Args))
		}
		for _, r := range msg.ToolResults {
			fmt.Fprintf(&b, "result %s: %s\n", r.CallID, r.Result)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (a AppView) renderStatusBar() string {
	if a.status != "" {
		if a.statusErr {
			return ErrorStyle.Render(truncate(a.status, a.width))
		}
		return StatusStyle.Render(truncate(a.status, a.width))
	}

	descStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	bar := fmt.Sprintf("Enter %s  %s %s  %s/%s %s  %s %s  %s %s",
		descStyle.Render("Send"),
		a.kb.DisplayActionKey("regenerate"), descStyle.Render("Regenerate"),
		a.kb.DisplayActionKey("branch_prev"), a.kb.DisplayActionKey("branch_next"), descStyle.Render("Branches"),
		a.kb.DisplayActionKey("yank_last_response"), descStyle.Render("Copy"),
		a.kb.DisplayActionKey("help"), descStyle.Render("Help"),
	)
	return StatusStyle.Render(bar)
}

func (a AppView) renderOverlay() string {
	lines := strings.Split(strings.TrimRight(a.overlay, "\n"), "\n")
	maxLines := a.height - 8
	if maxLines > 0 && len(lines) > maxLines {
		lines = append(lines[:maxLines], DimStyle.Render(fmt.Sprintf("... %d more lines", len(lines)-maxLines)))
	}
	clip := lipgloss.NewStyle().MaxWidth(max(a.width-8, 10))
	for i, line := range lines {
		lines[i] = clip.Render(line)
	}
	body := strings.Join(lines, "\n") + "\n\n" + FormatFooter("Esc", "Close")
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, ModalStyle.Render(body))
}
