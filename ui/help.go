package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (a AppView) renderHelpModal() string {
	kb := a.kb

	green := lipgloss.NewStyle().Bold(true).Foreground(successColor)
	blue := lipgloss.NewStyle().Foreground(accentColor)

	keys := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Keys"),
		"• Enter         Send message",
		"• Alt+Enter     New line",
		"• Up            Edit last message (empty input)",
		fmt.Sprintf("• %-13s Regenerate response", kb.DisplayActionKey("regenerate")),
		fmt.Sprintf("• %-13s Previous branch", kb.DisplayActionKey("branch_prev")),
		fmt.Sprintf("• %-13s Next branch", kb.DisplayActionKey("branch_next")),
		fmt.Sprintf("• %-13s Copy last response", kb.DisplayActionKey("yank_last_response")),
		fmt.Sprintf("• %-13s Copy conversation", kb.DisplayActionKey("yank_conversation")),
		fmt.Sprintf("• %-13s Cancel response or edit", kb.DisplayActionKey("cancel_turn")),
		fmt.Sprintf("• %-13s New session", kb.DisplayActionKey("new_session")),
		fmt.Sprintf("• %-13s Quit", kb.DisplayActionKey("quit")),
	)

	commands := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Commands"),
		"• /tool <id> <result>     Answer a tool call",
		"• /toolerr <id> <error>   Answer a tool call with an error",
		"• /continue               Answer the current head again",
		"• /edit                   Edit the last user message",
		"• /model [query]          List or switch models",
		"• /new, /save [name]      New session, save or rename",
		"• /sessions, /open <id>   List and open sessions",
		"• /search <text>          Search all sessions",
		"• /goto <messageId>       Move the head to a message",
		"• /preview                Show the next request body",
	)

	body := lipgloss.JoinVertical(
		lipgloss.Left,
		green.Render("branchchat - Help"),
		"",
		keys,
		"",
		commands,
		"",
		FormatFooter("Esc", "Close"),
	)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, ModalStyle.Render(body))
}
