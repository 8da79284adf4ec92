package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	digestUser    string
	digestEdition string
	digestDryRun  bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Build and send digests",
	Long: `Select each user's unseen story clusters, generate editorial copy,
render the newsletter, and send it. Without --user every profile gets a
digest; without --edition the edition is resolved from each user's
schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if digestEdition != "" && digestEdition != "morning" && digestEdition != "evening" {
			return fmt.Errorf("edition must be morning or evening, got %q", digestEdition)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.targetUsers(digestUser)
		if err != nil {
			return err
		}

		dispatcher, err := a.dispatcher()
		if err != nil {
			return err
		}

		outcomes := dispatcher.Dispatch(ctx, users, digestEdition, digestDryRun)

		var failed []error
		for _, o := range outcomes {
			if o.Err != nil {
				fmt.Printf("%s: FAILED: %v\n", o.User, o.Err)
				failed = append(failed, o.Err)
			} else {
				fmt.Printf("%s: ok\n", o.User)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d digests failed: %w", len(failed), len(outcomes), errors.Join(failed...))
		}
		return nil
	},
}

func init() {
	digestCmd.Flags().StringVar(&digestUser, "user", "", "send to one user only")
	digestCmd.Flags().StringVar(&digestEdition, "edition", "", "morning or evening (default: by schedule)")
	digestCmd.Flags().BoolVar(&digestDryRun, "dry-run", false, "build and render but do not send")

	rootCmd.AddCommand(digestCmd)
}
