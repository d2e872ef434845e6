package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"branchchat/config"
	"branchchat/provider"
	"branchchat/sandbox"
	"branchchat/storage"
	"branchchat/ui"
)

const Version = "v0.1.0"

var (
	modelFlag string
	newFlag   bool
)

var rootCmd = &cobra.Command{
	Use:     "branchchat",
	Short:   "Terminal chat client with branching conversations",
	Version: Version,
	Long: `branchchat talks to Gemini, OpenAI-compatible, Anthropic and Ollama models.

Conversations are trees: edits and regenerations create branches you can
switch between. Tools declared in config.toml can be answered by hand or run
automatically in an embedded Go interpreter.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

// app holds what every command needs after config is loaded.
type app struct {
	cfg      *config.Config
	sessions *storage.SessionStorage
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.InitDebugLog(cfg.DataDir())

	if modelFlag != "" {
		if _, ok := cfg.FindModel(modelFlag); !ok {
			return nil, fmt.Errorf("unknown model %q", modelFlag)
		}
		cfg.ActiveModel = modelFlag
	}
	if ok, warning := cfg.Keybindings.Validate(); !ok {
		return nil, fmt.Errorf("invalid keybindings: %s", warning)
	}

	sessions, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, sessions: sessions}, nil
}

// currentSession loads the session recorded as current, or nil.
func (a *app) currentSession() *storage.Session {
	id, err := a.sessions.LoadCurrentSessionID()
	if err != nil || id == "" {
		return nil
	}
	session, err := a.sessions.Load(id)
	if err != nil {
		config.Debugf("[Main] Could not reopen session %s: %v", id, err)
		return nil
	}
	return session
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	search, err := storage.NewSearchIndex(a.cfg.DataDir())
	if err != nil {
		// search is optional
		config.Debugf("[Main] Search index unavailable: %v", err)
	} else {
		defer search.Close()
	}

	var session *storage.Session
	if !newFlag {
		session = a.currentSession()
	}

	view := ui.NewAppView(ui.Deps{
		Config:      a.cfg,
		Sessions:    a.sessions,
		Search:      search,
		Session:     session,
		NewProvider: provider.ForModel,
		Executor:    sandbox.NewExecutor(),
	})

	p := tea.NewProgram(view, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running branchchat: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model id to use (overrides active_model)")
	rootCmd.Flags().BoolVarP(&newFlag, "new", "n", false, "Start a new session instead of reopening the last one")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
