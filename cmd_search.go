package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"branchchat/storage"
)

var (
	searchLimit   int
	searchRebuild bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search message text across all sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		search, err := storage.NewSearchIndex(a.cfg.DataDir())
		if err != nil {
			return err
		}
		defer search.Close()

		if searchRebuild {
			if err := search.Rebuild(a.sessions); err != nil {
				return err
			}
		}

		query := strings.Join(args, " ")
		matches, err := search.Search(query, searchLimit)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Printf("No matches for %q\n", query)
			return nil
		}
		out := cmd.OutOrStdout()
		for _, m := range matches {
			fmt.Fprintf(out, "%s  %-5s  %s  %s\n", m.SessionID[:min(8, len(m.SessionID))], m.Role, m.SessionName, m.Preview)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "Maximum number of matches (0 for no limit)")
	searchCmd.Flags().BoolVar(&searchRebuild, "rebuild", false, "Rebuild the index from session files first")
	rootCmd.AddCommand(searchCmd)
}
