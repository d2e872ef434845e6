package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"branchchat/model"
	"branchchat/provider"
	"branchchat/sandbox"
	"branchchat/storage"
)

var askNew bool

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and stream the reply to stdout",
	Long: `ask appends a message to the current session (or a new one with --new),
streams the reply and saves the session. Auto-executable tools run as usual;
calls that need a manual answer are listed at the end.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// streamPrinter writes the growing text of whichever node is head.
type streamPrinter struct {
	out     io.Writer
	nodeID  string
	printed int
}

func (p *streamPrinter) update(u model.Update) {
	head, ok := u.Messages[u.HeadID]
	if !ok || head.Role != model.RoleModel {
		return
	}
	if head.ID != p.nodeID {
		if p.nodeID != "" {
			fmt.Fprintln(p.out)
		}
		p.nodeID = head.ID
		p.printed = 0
	}
	if len(head.Content) > p.printed {
		fmt.Fprint(p.out, head.Content[p.printed:])
		p.printed = len(head.Content)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	var session *storage.Session
	if !askNew {
		session = a.currentSession()
	}
	if session == nil {
		session = &storage.Session{}
	}

	printer := &streamPrinter{out: cmd.OutOrStdout()}
	conv := model.NewConversation(a.cfg, session.State, model.Options{
		NewProvider: provider.ForModel,
		Executor:    sandbox.NewExecutor(),
		OnUpdate:    printer.update,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	turnErr := conv.SendUserMessage(ctx, strings.Join(args, " "))
	fmt.Fprintln(printer.out)

	if errors.Is(turnErr, model.ErrNoActiveModel) || errors.Is(turnErr, model.ErrUnknownModel) ||
		errors.Is(turnErr, model.ErrMissingCredential) {
		return turnErr
	}

	session.State = conv.State()
	if session.Name == "" {
		session.Name = storage.GenerateSessionName(session.FirstUserMessage())
	}
	if err := a.sessions.Save(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := a.sessions.SaveCurrentSessionID(session.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not record current session: %v\n", err)
	}
	a.reindex(session)

	if _, open := model.OpenToolCalls(conv.Thread()); len(open) > 0 {
		fmt.Fprintln(os.Stderr, "Waiting for tool results (answer them in the TUI with /tool <callId> <result>):")
		for _, call := range open {
			fmt.Fprintf(os.Stderr, "  %s %s\n", call.ID, call.Name)
		}
	}

	switch {
	case turnErr == nil:
		return nil
	case errors.Is(turnErr, context.Canceled):
		return fmt.Errorf("cancelled")
	default:
		return turnErr
	}
}

func init() {
	askCmd.Flags().BoolVar(&askNew, "new", false, "Start a new session")
	rootCmd.AddCommand(askCmd)
}
