package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressbrief/pressbrief/internal/model"
)

var (
	clustersSinceHours int
	clustersStatus     string
	clustersJSON       bool
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List recent story clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if clustersStatus != "" && clustersStatus != string(model.ClusterActive) && clustersStatus != string(model.ClusterStale) {
			return fmt.Errorf("status must be %s or %s, got %q", model.ClusterActive, model.ClusterStale, clustersStatus)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		since := time.Now().Add(-time.Duration(clustersSinceHours) * time.Hour)
		clusters, err := a.store.ClustersSince(ctx, since)
		if err != nil {
			return err
		}
		if clustersStatus != "" {
			filtered := clusters[:0]
			for _, c := range clusters {
				if string(c.Status) == clustersStatus {
					filtered = append(filtered, c)
				}
			}
			clusters = filtered
		}

		if clustersJSON {
			return json.NewEncoder(os.Stdout).Encode(clusters)
		}

		if len(clusters) == 0 {
			fmt.Printf("No clusters in the last %dh\n", clustersSinceHours)
			return nil
		}
		for _, c := range clusters {
			fmt.Printf("[%s] %s\n", c.Status, c.Label)
			fmt.Printf("  %d articles from %d sources, peak %.1f/h, updated %s\n",
				c.ArticleCount, c.SourceCount, c.PeakVelocity,
				c.LastUpdated.Format("02 Jan 15:04"))
			if len(c.Keywords) > 0 {
				fmt.Printf("  keywords: %s\n", strings.Join(c.Keywords, ", "))
			}
		}
		return nil
	},
}

var (
	pendingUser    string
	pendingHistory bool
	pendingJSON    bool
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List clusters not yet sent to a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pendingUser == "" {
			return fmt.Errorf("--user is required")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		clusters, err := a.store.UnsentActiveClusters(ctx, pendingUser)
		if err != nil {
			return err
		}

		if pendingJSON {
			return json.NewEncoder(os.Stdout).Encode(clusters)
		}

		if len(clusters) == 0 {
			fmt.Printf("Nothing pending for %s\n", pendingUser)
		} else {
			fmt.Printf("%d clusters pending for %s:\n", len(clusters), pendingUser)
			for _, c := range clusters {
				fmt.Printf("  %s (%d sources)\n", c.Label, c.SourceCount)
			}
		}

		if pendingHistory {
			curations, err := a.store.CurationsForUser(ctx, pendingUser)
			if err != nil {
				return err
			}
			fmt.Printf("\n%d clusters sent previously:\n", len(curations))
			for _, cur := range curations {
				when := "never"
				if cur.SentAt != nil {
					when = cur.SentAt.Format("02 Jan 15:04")
				}
				fmt.Printf("  %s  %s edition  cluster %s\n", when, cur.Edition, cur.ClusterID)
			}
		}
		return nil
	},
}

func init() {
	clustersCmd.Flags().IntVar(&clustersSinceHours, "since", 24, "look back this many hours")
	clustersCmd.Flags().StringVar(&clustersStatus, "status", "", "filter by status (ACTIVE or STALE)")
	clustersCmd.Flags().BoolVar(&clustersJSON, "json", false, "emit JSON")

	pendingCmd.Flags().StringVar(&pendingUser, "user", "", "user to inspect")
	pendingCmd.Flags().BoolVar(&pendingHistory, "history", false, "also list previously sent clusters")
	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "emit JSON")

	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(pendingCmd)
}
