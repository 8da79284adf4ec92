package cli

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pressbrief/pressbrief/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints defaults layered with the config file and environment, as YAML.
Credentials are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		redactSettings(&settings)

		if file := viper.ConfigFileUsed(); file != "" {
			fmt.Printf("# config file: %s\n", file)
		} else {
			fmt.Println("# config file: none (defaults and environment only)")
		}

		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		os.Stdout.Write(data)
		return nil
	},
}

func redactSettings(s *model.Settings) {
	s.Database.DSN = redactDSN(s.Database.DSN)
	s.Feed.Password = redact(s.Feed.Password)
	s.Postmark.ServerToken = redact(s.Postmark.ServerToken)
	s.Embeddings.APIKey = redact(s.Embeddings.APIKey)
	s.Index.APIKey = redact(s.Index.APIKey)
	s.Writer.APIKey = redact(s.Writer.APIKey)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func init() {
	rootCmd.AddCommand(configCmd)
}
