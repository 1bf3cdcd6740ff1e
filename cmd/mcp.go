package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewgate/internal/git"
	"github.com/joescharf/reviewgate/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code inspect review gate history and apply the gate to a
findings report. Configure in Claude Code with:

  {
    "mcpServers": {
      "gate": { "command": "gate", "args": ["mcp"] }
    }
  }

Available tools: gate_list_runs, gate_get_run, gate_decide, gate_list_prs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		var prs git.PullRequestLister
		if githubToken() != "" {
			gh, err := newGitHubClient()
			if err != nil {
				return err
			}
			prs = gh
		}

		srv := mcp.NewServer(s, prs, mcp.Options{
			Version:            buildVersion,
			Owner:              viper.GetString("github.owner"),
			Repo:               viper.GetString("github.repo"),
			Agents:             viper.GetString("agents"),
			BlockingSeverities: viper.GetString("blocking_severities"),
		})

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
