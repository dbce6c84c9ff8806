package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv}
	root := &cobra.Command{
		Use:   "veritas",
		Short: "Submit insurance claims, run fraud analysis and investigate with the AI co-pilot",
		Long: "Veritas is the adjuster's command line for the claims-investigation backend:\n" +
			"sign in, submit claims with evidence, trigger fraud analysis, review risk,\n" +
			"and ask the investigation co-pilot about a claim.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.flags.config, "config", "", "Config file (default $XDG_CONFIG_HOME/veritas/config.yaml)")
	f.StringVar(&a.flags.baseURL, "base-url", "", "Backend API root, including /api/v1")
	f.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&a.flags.logFormat, "log-format", "", "Log format: text or json")
	f.StringVarP(&a.flags.output, "output", "o", "table", "Output format: table, markdown or json")

	root.AddCommand(
		newSignupCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newClaimsCmd(a),
		newAskCmd(a),
		newChatCmd(a),
		newDashboardCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the veritas version",
		Args:  cobra.NoArgs,
		// The version command needs no config or session.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "veritas %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
