package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"branchchat/storage"
)

var importName string

var exportCmd = &cobra.Command{
	Use:   "export <session-id> [path]",
	Short: "Export a session as {config, messageMap, headId} JSON",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		session, err := a.sessions.Load(args[0])
		if err != nil {
			return err
		}
		path := storage.GenerateExportPath(session.Name)
		if len(args) == 2 {
			path = args[1]
		}
		if err := a.sessions.ExportToJSON(session.ID, path); err != nil {
			return err
		}
		fmt.Printf("Exported %q to %s\n", session.Name, path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import an exported conversation as a new session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		session, err := a.sessions.ImportFromJSON(args[0], importName)
		if err != nil {
			return err
		}
		a.reindex(session)
		fmt.Printf("Imported %q as %s (%d messages)\n", session.Name, session.ID, len(session.State.MessageMap))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importName, "name", "", "Session name (defaults to the first user message)")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
