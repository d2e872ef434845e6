package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys in credentials.toml",
}

var keySetCmd = &cobra.Command{
	Use:   "set <model-or-provider-id> <api-key>",
	Short: "Store an API key for a model id or provider id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		a.cfg.CredentialStore.Set(args[0], args[1])
		if err := a.cfg.CredentialStore.Save(a.cfg.DataDir()); err != nil {
			return err
		}
		fmt.Printf("Stored key for %s\n", args[0])
		return nil
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <model-or-provider-id>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		a.cfg.CredentialStore.Delete(args[0])
		if err := a.cfg.CredentialStore.Save(a.cfg.DataDir()); err != nil {
			return err
		}
		fmt.Printf("Removed key for %s\n", args[0])
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyDeleteCmd)
	rootCmd.AddCommand(keyCmd)
}
