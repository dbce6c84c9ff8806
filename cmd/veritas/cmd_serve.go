package main

import (
	"github.com/spf13/cobra"

	"veritas/internal/logging"
	"veritas/internal/mcpserver"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve claims and the co-pilot as MCP tools over stdio",
		Long: "Start an MCP server on stdin/stdout exposing list_claims, get_claim,\n" +
			"ask_copilot and dashboard_summary with the stored session.\n" +
			"Logs go to stderr. The server exits when its parent process does.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New("serve")
			if err := a.requireLogin(); err != nil {
				// Tools report the missing session per call.
				log.Warn("starting without a usable session", "error", err)
			}
			srv := mcpserver.New(a.client, a.live.User.FirstName, version)
			log.Info("mcp server starting", "base_url", a.client.BaseURL())
			return srv.Run(cmd.Context())
		},
	}
}
