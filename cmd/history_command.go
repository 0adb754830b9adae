package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bastianwenske/subtitle-translator/internal/jobs"
	"github.com/bastianwenske/subtitle-translator/internal/library"
	"github.com/bastianwenske/subtitle-translator/internal/persistence"
)

func newHistoryCommand() *cobra.Command {
	var cacheDB string

	cmd := &cobra.Command{
		Use:   "history <run-id>",
		Short: "Show the stored results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cacheDB == "" {
				cacheDB = os.Getenv("SUBTRANS_CACHE_DB")
			}
			if cacheDB == "" {
				return fmt.Errorf("--cache-db or SUBTRANS_CACHE_DB is required")
			}

			store, err := persistence.NewSQLiteStore(cacheDB)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.LoadResults(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load results: %w", err)
			}

			ledger := jobs.NewLedger(args[0], nil)
			for _, r := range results {
				ledger.Add(cmd.Context(), jobs.Record{
					Pair:     library.Pair{VideoPath: r.VideoPath, SubtitlePath: r.SubtitlePath},
					Status:   r.Status,
					Stage:    r.Stage,
					Error:    r.Error,
					Output:   r.Output,
					Cues:     r.Cues,
					Duration: r.Duration,
				})
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No results stored for run %s\n", args[0])
				return nil
			}
			fmt.Fprintln(out, ledger.Render())
			fmt.Fprintln(out, ledger.Summary())
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDB, "cache-db", "", "SQLite file written by earlier runs")
	return cmd
}
