package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"branchchat/config"
	"branchchat/model"
	"branchchat/storage"
)

// Deps wires the chat view to storage and the turn machinery.
type Deps struct {
	Config      *config.Config
	Sessions    *storage.SessionStorage
	Search      *storage.SearchIndex
	Session     *storage.Session
	NewProvider model.ProviderFactory
	Executor    model.Executor
}

type AppView struct {
	cfg      *config.Config
	kb       *config.KeyBindingsConfig
	conv     *model.Conversation
	bridge   *updateBridge
	sessions *storage.SessionStorage
	search   *storage.SearchIndex
	session  *storage.Session

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	// Latest published snapshot
	messages  model.MessageMap
	headID    string
	streaming bool

	turn *turnState

	// Markdown cache keyed by message id
	rendered  map[string]markdownRenderedMsg
	rendering map[string]string

	// Non-empty while the input replaces a user message
	editingID string

	status    string
	statusErr bool
	showHelp  bool
	overlay   string
}

// turnState tracks the single in-flight turn so it can be cancelled.
type turnState struct {
	cancel  context.CancelFunc
	started time.Time
}

// updateBridge hands published snapshots to the bubbletea loop. Snapshots are
// complete, so a pending one is replaced rather than queued.
type updateBridge struct {
	mu sync.Mutex
	ch chan model.Update
}

func newUpdateBridge() *updateBridge {
	return &updateBridge{ch: make(chan model.Update, 1)}
}

func (b *updateBridge) publish(u model.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.ch:
	default:
	}
	b.ch <- u
}

func (b *updateBridge) wait() tea.Cmd {
	return func() tea.Msg {
		return conversationUpdateMsg{update: <-b.ch}
	}
}

func NewAppView(deps Deps) AppView {
	session := deps.Session
	if session == nil {
		session = newSession()
	}

	kb := deps.Config.Keybindings
	if kb == nil {
		kb = config.DefaultKeybindings()
	}

	bridge := newUpdateBridge()
	conv := model.NewConversation(deps.Config, session.State, model.Options{
		NewProvider: deps.NewProvider,
		Executor:    deps.Executor,
		OnUpdate:    bridge.publish,
	})
	messages, head := conv.Snapshot()

	ta := textarea.New()
	ta.Placeholder = "Message, or /help for commands"
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)
	// Enter sends; alt+enter inserts a newline
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))

	return AppView{
		cfg:       deps.Config,
		kb:        kb,
		conv:      conv,
		bridge:    bridge,
		sessions:  deps.Sessions,
		search:    deps.Search,
		session:   session,
		viewport:  viewport.New(0, 0),
		textarea:  ta,
		spinner:   sp,
		messages:  messages,
		headID:    head,
		rendered:  make(map[string]markdownRenderedMsg),
		rendering: make(map[string]string),
	}
}

func newSession() *storage.Session {
	now := time.Now()
	return &storage.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		State:     model.State{MessageMap: model.MessageMap{}},
	}
}

func (a AppView) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		a.spinner.Tick,
		a.bridge.wait(),
	)
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading branchchat..."
	}

	if a.showHelp {
		return a.renderHelpModal()
	}
	if a.overlay != "" {
		return a.renderOverlay()
	}

	title := AssistantStyle.Render("branchchat") +
		TitleStyle.Render(fmt.Sprintf(" - %s", a.activeModelLabel())) +
		UserStyle.Render(fmt.Sprintf(" - %s", a.sessionLabel()))
	if a.turn != nil {
		title += DimStyle.Render(fmt.Sprintf(" | %s %s", a.spinner.View(), time.Since(a.turn.started).Round(time.Second)))
	}

	inputLabel := ""
	if a.editingID != "" {
		inputLabel = HighlightStyle.Render("editing message (esc to cancel)")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		a.viewport.View(),
		inputLabel,
		a.textarea.View(),
		a.renderStatusBar(),
	)
}

func (a AppView) activeModelLabel() string {
	m, ok := a.cfg.FindModel(a.conv.ActiveModel())
	if !ok {
		return "no model"
	}
	return fmt.Sprintf("%s (%s)", m.ID, m.Provider)
}

func (a AppView) sessionLabel() string {
	if a.session != nil && a.session.Name != "" {
		return a.session.Name
	}
	return "New Session"
}

func (a *AppView) setStatus(text string, isErr bool) {
	a.status = text
	a.statusErr = isErr
}

func (a *AppView) layout() {
	// title, spacer, edit label, textarea (3), status bar
	viewportHeight := a.height - 7
	if viewportHeight < 3 {
		viewportHeight = 3
	}
	a.viewport.Width = a.width
	a.viewport.Height = viewportHeight
	a.textarea.SetWidth(a.width)
}
