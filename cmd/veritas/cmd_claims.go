package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"veritas/internal/api"
	"veritas/internal/display"
	"veritas/internal/format"
	"veritas/internal/journal"
	"veritas/internal/logging"
	"veritas/internal/risk"
	"veritas/internal/workflow"
)

func newClaimsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "List, inspect, submit and analyze claims",
	}
	cmd.AddCommand(
		newClaimsListCmd(a),
		newClaimsShowCmd(a),
		newClaimsCreateCmd(a),
		newClaimsAnalyzeCmd(a),
	)
	return cmd
}

// --- claims list ---

func newClaimsListCmd(a *app) *cobra.Command {
	var flags struct {
		status string
		risk   string
	}
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the adjuster's claims",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			claims, err := a.client.ListClaims(cmd.Context())
			if err != nil {
				return err
			}
			claims = filterClaims(claims, flags.status, flags.risk)
			return a.render(cmd.OutOrStdout(), claims, func(m format.Mode) string {
				return format.Claims(m, claims)
			})
		},
	}
	cmd.Flags().StringVar(&flags.status, "status", "", "Only claims with this status code (e.g. ready_for_review)")
	cmd.Flags().StringVar(&flags.risk, "risk", "", "Only claims at this risk level: high, medium, low, pending")
	return cmd
}

func filterClaims(claims []api.Claim, status, level string) []api.Claim {
	out := []api.Claim{}
	for _, c := range claims {
		if status != "" && string(c.Status) != status {
			continue
		}
		if level != "" && !strings.EqualFold(risk.Of(c.FraudRiskScore).String(), level) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// --- claims show ---

func newClaimsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <claim-id>",
		Short: "Show one claim with its analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			c, err := a.client.GetClaim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), c, func(m format.Mode) string {
				return format.Claim(m, *c)
			})
		},
	}
}

// --- claims create ---

var errSubmissionFailed = errors.New("claim submission failed")

func newClaimsCreateCmd(a *app) *cobra.Command {
	var flags struct {
		files       []string
		notes       string
		analyze     bool
		concurrency int
	}
	cmd := &cobra.Command{
		Use:   "create --file <path> [--file <path>...]",
		Short: "Submit a new claim with evidence files",
		Long: "Create a claim, upload every evidence file to its pre-signed target and,\n" +
			"with --analyze, trigger the fraud analysis once all uploads have finished.\n" +
			"Each run is recorded in the local submission journal (see `veritas history`).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			files := make([]workflow.File, 0, len(flags.files))
			for _, p := range flags.files {
				f, err := workflow.OpenLocal(p)
				if err != nil {
					return err
				}
				files = append(files, f)
			}
			concurrency := a.cfg.UploadConcurrency
			if cmd.Flags().Changed("concurrency") {
				concurrency = flags.concurrency
			}
			return a.submitClaim(cmd, files, flags.notes, flags.analyze, concurrency)
		},
	}
	cmd.Flags().StringArrayVarP(&flags.files, "file", "f", nil, "Evidence file to attach (repeatable)")
	cmd.Flags().StringVar(&flags.notes, "notes", "", "Additional information for the claim")
	cmd.Flags().BoolVar(&flags.analyze, "analyze", false, "Trigger fraud analysis after the uploads finish")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Maximum simultaneous uploads (0 = no limit)")
	return cmd
}

// submitClaim drives the submission dialog end to end and journals the run.
func (a *app) submitClaim(cmd *cobra.Command, files []workflow.File, notes string, analyze bool, concurrency int) error {
	stderr := cmd.ErrOrStderr()
	log := logging.New("claims")

	jr, err := a.openJournal()
	if err != nil {
		return err
	}
	defer jr.Close()

	sub := &journal.Submission{Notes: notes}
	for _, f := range files {
		sub.Files = append(sub.Files, journal.File{Name: f.Name(), Size: f.Size()})
	}
	runID, err := jr.Begin(sub)
	if err != nil {
		return err
	}

	wiz := workflow.New(a.client,
		workflow.WithConcurrency(concurrency),
		workflow.WithObserver(progressPrinter(stderr)),
		workflow.WithLogger(logging.New("workflow")),
	)
	if err := wiz.Edit(func(d *workflow.Draft) error {
		d.SetNotes(notes)
		d.AddFile(files...)
		return nil
	}); err != nil {
		return err
	}
	if err := wiz.Next(); err != nil {
		return err
	}

	var report *workflow.Report
	claimID, runErr := wiz.Submit(cmd.Context())
	if runErr == nil && analyze {
		report, runErr = wiz.RunAnalysis(cmd.Context())
	}

	if err := jr.Finish(runID, outcomeOf(wiz.State(), claimID, runErr)); err != nil {
		log.Warn("journal update failed", "run", runID, "error", err)
	}

	if runErr != nil {
		if errors.Is(runErr, workflow.ErrNoFiles) || errors.Is(runErr, workflow.ErrIllegalTransition) {
			return runErr
		}
		if msg := wiz.Err(); msg != "" {
			return fmt.Errorf("%w: %s", errSubmissionFailed, msg)
		}
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Claim %s submitted with %d file(s).\n", claimID, len(files))
	if report != nil {
		printReport(out, *report)
	}
	return nil
}

// progressPrinter reports each state change on one line.
func progressPrinter(w io.Writer) workflow.Observer {
	return func(s workflow.State) {
		msg := workflow.StatusMessage(s)
		if msg == "" {
			return
		}
		if up, ok := s.(workflow.Uploading); ok && up.ClaimID != "" {
			fmt.Fprintf(w, "%s %s\n", format.Percent(workflow.Progress(s)), msg)
			return
		}
		fmt.Fprintln(w, msg)
	}
}

// outcomeOf maps the wizard's final state to a journal outcome.
func outcomeOf(s workflow.State, claimID string, err error) journal.Outcome {
	out := journal.Outcome{ClaimID: claimID, Phase: string(s.Phase())}
	switch cur := s.(type) {
	case workflow.Failed:
		out.FailedDuring = string(cur.During)
		out.Message = cur.Message
		if cur.ClaimID != "" {
			out.ClaimID = cur.ClaimID
		}
	case workflow.Results:
		out.Score = cur.Report.Score
	}
	var uploadErr *workflow.UploadError
	if errors.As(err, &uploadErr) {
		out.FailedPositions = uploadErr.Indexes()
	}
	return out
}

func printReport(w io.Writer, r workflow.Report) {
	fmt.Fprintf(w, "Risk: %s\n", display.RiskWithScore(r.Score))
	if r.Summary != "" {
		fmt.Fprintf(w, "Summary: %s\n", r.Summary)
	}
	fmt.Fprintf(w, "Key risk factors:\n%s\n", display.Factors(r.Factors))
}

// --- claims analyze ---

func newClaimsAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <claim-id>",
		Short: "Trigger fraud analysis for an uploaded claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Analysis triggered for claim %s. This may take a while...\n", args[0])
			c, err := a.client.TriggerAnalysis(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("trigger analysis for %s: %w", args[0], err)
			}
			if a.flags.output == "json" {
				return a.render(cmd.OutOrStdout(), c, nil)
			}
			printReport(cmd.OutOrStdout(), workflow.Report{
				Score:   c.FraudRiskScore,
				Summary: c.Summary,
				Factors: c.KeyRiskFactors,
			})
			return nil
		},
	}
}
