package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	rescoreID   string
	rescoreAll  bool
	rescoreJSON bool
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute lead scores from stored data",
	Long:  "Rescores one candidate (--id) or every candidate (--all) from the data already in Notion. No crawling or extraction is done.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if (rescoreID == "") == !rescoreAll {
			return eris.New("exactly one of --id or --all is required")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "rescore", true)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if rescoreAll {
			summary, err := env.Orchestrator.RescoreAll(ctx)
			if summary != nil {
				if perr := printSummary(out, summary, rescoreJSON); perr != nil {
					return perr
				}
			}
			return err
		}

		b, err := env.Orchestrator.Rescore(ctx, rescoreID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	},
}

func init() {
	rescoreCmd.Flags().StringVar(&rescoreID, "id", "", "Notion page ID of the candidate to rescore")
	rescoreCmd.Flags().BoolVar(&rescoreAll, "all", false, "rescore every candidate in the database")
	rescoreCmd.Flags().BoolVar(&rescoreJSON, "json", false, "print the --all summary as JSON")
	rootCmd.AddCommand(rescoreCmd)
}
