package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	breakingUser  string
	breakingForce bool
)

var breakingCmd = &cobra.Command{
	Use:   "breaking",
	Short: "Run a breaking-news sweep",
	Long: `Score high-velocity story clusters for urgency and alert opted-in
users. Quiet hours and the per-user daily cap gate delivery; --force
bypasses both for manual runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.targetUsers(breakingUser)
		if err != nil {
			return err
		}

		sweeper, err := a.sweeper()
		if err != nil {
			return err
		}

		sent, err := sweeper.Sweep(ctx, users, breakingForce, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Sent %d breaking alerts\n", sent)
		return nil
	},
}

func init() {
	breakingCmd.Flags().StringVar(&breakingUser, "user", "", "sweep for one user only")
	breakingCmd.Flags().BoolVar(&breakingForce, "force", false, "bypass quiet hours and the daily cap")

	rootCmd.AddCommand(breakingCmd)
}
