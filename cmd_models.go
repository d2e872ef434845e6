package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"branchchat/model"
	"branchchat/ollama"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models and locally available Ollama models",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tPROVIDER\tMODEL\tCREDENTIAL")
		ollamaURLs := map[string]bool{}
		for _, m := range a.cfg.Models {
			marker := ""
			if m.ID == a.cfg.ActiveModel {
				marker = "*"
			}
			cred := "ok"
			if model.RequiresAPIKey(m.Provider) && a.cfg.ResolveAPIKey(m) == "" {
				cred = "missing"
			} else if !model.RequiresAPIKey(m.Provider) {
				cred = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, m.ID, m.Provider, m.Model, cred)
			if m.Provider == "ollama" {
				ollamaURLs[m.BaseURL] = true
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}

		for baseURL := range ollamaURLs {
			client, err := ollama.NewClient(baseURL, "")
			if err != nil {
				fmt.Fprintf(out, "\nOllama %s: %v\n", baseURL, err)
				continue
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			if err := client.Ping(ctx); err != nil {
				cancel()
				fmt.Fprintf(out, "\nOllama %s: not reachable (%v)\n", displayURL(baseURL), err)
				continue
			}
			local, err := client.ListModels(ctx)
			cancel()
			if err != nil {
				fmt.Fprintf(out, "\nOllama %s: %v\n", displayURL(baseURL), err)
				continue
			}
			fmt.Fprintf(out, "\nOllama %s:\n", displayURL(baseURL))
			for _, lm := range local {
				tools := ""
				if ollama.ModelSupportsToolCalling(lm.Name) {
					tools = " (tools)"
				}
				fmt.Fprintf(out, "  %s  %.1f GB%s\n", lm.Name, float64(lm.Size)/1e9, tools)
			}
		}
		return nil
	},
}

func displayURL(baseURL string) string {
	if baseURL == "" {
		return "http://localhost:11434"
	}
	return baseURL
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
