package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var backfillLimit int

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Run one curation cycle",
	Long: `Fetch unread articles from the aggregator, dedupe and score them,
embed and cluster them, refresh cluster statistics, merge clusters that
describe the same event, and mark idle clusters stale.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		curator, err := a.curator()
		if err != nil {
			return err
		}

		report, err := curator.Curate(ctx, time.Now())
		if err != nil {
			return err
		}

		fmt.Printf("Fetched %d articles, %d new\n", report.Fetched, report.New)
		fmt.Printf("Clustered %d, refreshed %d clusters, merged %d, marked %d stale\n",
			report.Clustered, report.Refreshed, report.Merged, report.MarkedStale)

		total, err := a.store.CountArticles(ctx)
		if err != nil {
			return err
		}
		indexed, err := a.index.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d articles stored, %d indexed\n", total, indexed)
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-cluster stored articles that have no cluster",
	Long: `Recover from an interrupted curation cycle by embedding and clustering
stored articles that were never assigned to a cluster.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		curator, err := a.curator()
		if err != nil {
			return err
		}

		count, err := curator.Backfill(ctx, backfillLimit, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Backfilled %d articles\n", count)
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 200, "maximum articles per backfill run")

	rootCmd.AddCommand(curateCmd)
	rootCmd.AddCommand(backfillCmd)
}
