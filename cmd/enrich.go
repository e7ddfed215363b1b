package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enrichment/internal/enrich"
)

var (
	enrichLimit       int
	enrichNoScore     bool
	enrichMetricsAddr string
	enrichJSON        bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich due leads from the Notion database",
	Long:  "Queries candidates that are pending, failed or stale, crawls their websites, extracts facts, writes them back and scores them. Use --limit for a small test run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scoring := cfg.Scoring.Enabled && !enrichNoScore
		env, err := initPipeline(ctx, "enrich", scoring)
		if err != nil {
			return err
		}
		defer env.Close()

		addr := enrichMetricsAddr
		if addr == "" {
			addr = cfg.Metrics.Addr
		}
		if addr != "" {
			srv, err := startMetricsServer(ctx, addr)
			if err != nil {
				return err
			}
			defer srv.Close() //nolint:errcheck
		}

		summary, runErr := env.Orchestrator.Run(ctx, enrichLimit)
		if summary != nil {
			if err := printSummary(cmd.OutOrStdout(), summary, enrichJSON); err != nil {
				return err
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "enrich")
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max number of candidates to process (0 = all due)")
	enrichCmd.Flags().BoolVar(&enrichNoScore, "no-score", false, "skip scoring after enrichment")
	enrichCmd.Flags().StringVar(&enrichMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run (e.g. :9090)")
	enrichCmd.Flags().BoolVar(&enrichJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(enrichCmd)
}

// printSummary writes the run summary to w as text or indented JSON.
func printSummary(w io.Writer, s *enrich.RunSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err := fmt.Fprintln(w, s.String())
	return err
}
