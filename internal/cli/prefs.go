package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pressbrief/pressbrief/internal/model"
)

var (
	prefsUser    string
	prefsBoost   []string
	prefsExclude []string
	prefsLens    string
	prefsTone    string
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or edit a user's preference profile",
	Long: `Without edit flags, prints the user's profile as YAML. With --boost,
--exclude, --lens or --tone, applies the changes and writes the profile back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		if prefsUser == "" {
			users, err := model.ListUsers(settings.UsersDir)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Println(u)
			}
			return nil
		}

		profile, err := model.LoadUserProfile(settings.UsersDir, prefsUser)
		if err != nil {
			return err
		}

		changed := false
		for _, topic := range prefsBoost {
			profile.Topics.Boost = appendUnique(profile.Topics.Boost, topic)
			changed = true
		}
		for _, topic := range prefsExclude {
			profile.Topics.Exclude = appendUnique(profile.Topics.Exclude, topic)
			changed = true
		}
		if prefsLens != "" {
			profile.Editorial.Lens = prefsLens
			changed = true
		}
		if prefsTone != "" {
			profile.Editorial.Tone = prefsTone
			changed = true
		}

		if changed {
			if err := model.SaveUserProfile(settings.UsersDir, prefsUser, profile); err != nil {
				return err
			}
			fmt.Printf("Updated profile for %s\n", prefsUser)
		}

		data, err := yaml.Marshal(profile)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	},
}

func appendUnique(topics []string, topic string) []string {
	for _, t := range topics {
		if t == topic {
			return topics
		}
	}
	return append(topics, topic)
}

func init() {
	prefsCmd.Flags().StringVar(&prefsUser, "user", "", "user to show or edit; omit to list users")
	prefsCmd.Flags().StringSliceVar(&prefsBoost, "boost", nil, "append boost topics")
	prefsCmd.Flags().StringSliceVar(&prefsExclude, "exclude", nil, "append excluded topics")
	prefsCmd.Flags().StringVar(&prefsLens, "lens", "", "set editorial lens")
	prefsCmd.Flags().StringVar(&prefsTone, "tone", "", "set editorial tone")

	rootCmd.AddCommand(prefsCmd)
}
