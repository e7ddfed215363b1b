package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enrichment/internal/model"
	"github.com/sells-group/lead-enrichment/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Lists recent runs. Subcommands show per-candidate outcomes.",
	RunE:  listRuns,
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  listRuns,
}

func listRuns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := cfg.Validate("runs"); err != nil {
		return err
	}

	st, err := initRunLog(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return eris.Wrap(err, "runs list")
	}

	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "No runs found.")
		return nil
	}

	formatRunsList(cmd.OutOrStdout(), runs)
	return nil
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the per-candidate outcomes of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initRunLog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outcomes, err := st.ListOutcomes(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcomes)
		}
		formatOutcomes(cmd.OutOrStdout(), outcomes)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", runlog.DefaultListLimit, "max number of runs to display")
	runsListCmd.Flags().Int("limit", runlog.DefaultListLimit, "max number of runs to display")
	runsShowCmd.Flags().Bool("json", false, "print outcomes as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATUS\tTOTAL\tOK\tFAILED\tSCORED\tCOST\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----\t--\t------\t------\t----\t-------\t--------")

	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			r.Status,
			r.Total,
			r.Succeeded,
			r.Failed,
			r.Scored,
			r.CostUSD,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatOutcomes writes one line per candidate outcome to w.
func formatOutcomes(out io.Writer, outcomes []model.CandidateOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CANDIDATE\tNAME\tOUTCOME\tATTEMPTS\tSCORE\tTIER\tREASON")
	_, _ = fmt.Fprintln(w, "---------\t----\t-------\t--------\t-----\t----\t------")

	for _, o := range outcomes {
		score := "-"
		if o.Score != nil {
			score = fmt.Sprintf("%d", *o.Score)
		}
		name := o.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		reason := o.Reason
		if len(reason) > 60 {
			reason = reason[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(o.CandidateID),
			name,
			o.Outcome,
			o.Attempts,
			score,
			o.Tier,
			reason,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
