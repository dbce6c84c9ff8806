package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"veritas/internal/dashboard"
	"veritas/internal/format"
	"veritas/internal/journal"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show claim statistics and the most recent claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			claims, err := a.client.ListClaims(cmd.Context())
			if err != nil {
				return err
			}
			sum := dashboard.Summarize(claims, a.now())
			if a.flags.output != "json" {
				fmt.Fprintf(cmd.OutOrStdout(), "Welcome back, %s!\n\n", a.live.User.FirstName)
			}
			return a.render(cmd.OutOrStdout(), sum, func(m format.Mode) string {
				return format.Dashboard(m, sum)
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var flags struct {
		limit int
	}
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded claim submissions, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jr, err := a.openJournal()
			if err != nil {
				return err
			}
			defer jr.Close()

			var subs []*journal.Submission
			if len(args) == 1 {
				sub, err := jr.Get(args[0])
				if err != nil {
					return err
				}
				if sub == nil {
					return fmt.Errorf("%w: %s", journal.ErrNotFound, args[0])
				}
				subs = append(subs, sub)
			} else if subs, err = jr.List(flags.limit); err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), subs, func(m format.Mode) string {
				return format.Submissions(m, subs)
			})
		},
	}
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	return cmd
}
