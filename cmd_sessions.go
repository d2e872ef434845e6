package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"branchchat/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved sessions",
	RunE:  runSessionsList,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		name := strings.Join(args[1:], " ")
		if err := a.sessions.RenameSession(args[0], name); err != nil {
			return err
		}
		if session, err := a.sessions.Load(args[0]); err == nil {
			a.reindex(session)
		}
		fmt.Printf("Renamed %s to %q\n", args[0], name)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := a.sessions.Delete(args[0]); err != nil {
			return err
		}
		if search, err := storage.NewSearchIndex(a.cfg.DataDir()); err == nil {
			defer search.Close()
			if err := search.RemoveSession(args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not update search index: %v\n", err)
			}
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	sessions, err := a.sessions.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}

	current, _ := a.sessions.LoadCurrentSessionID()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tMODEL\tMESSAGES\tBRANCHES\tUPDATED")
	for _, s := range sessions {
		marker := ""
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			marker, s.ID, s.Name, s.Model, s.MessageCount, s.BranchCount,
			s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// reindex refreshes one session in the search index. Failures only warn.
func (a *app) reindex(session *storage.Session) {
	search, err := storage.NewSearchIndex(a.cfg.DataDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: search index unavailable: %v\n", err)
		return
	}
	defer search.Close()
	if err := search.IndexSession(session); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not index session: %v\n", err)
	}
}

func init() {
	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
