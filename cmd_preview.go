package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"branchchat/model"
	"branchchat/provider"
)

var previewSession string

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the request body the next turn would send",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		var state model.State
		if previewSession != "" {
			session, err := a.sessions.Load(previewSession)
			if err != nil {
				return err
			}
			state = session.State
		} else if session := a.currentSession(); session != nil {
			state = session.State
		}

		conv := model.NewConversation(a.cfg, state, model.Options{NewProvider: provider.ForModel})
		wire, err := conv.PreviewRequest(cmd.Context())
		if err != nil {
			return err
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, wire, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(wire)
		}
		fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
		return nil
	},
}

func init() {
	previewCmd.Flags().StringVarP(&previewSession, "session", "s", "", "Session id (defaults to the current session)")
	rootCmd.AddCommand(previewCmd)
}
