package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/learnhub/payhook/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and PAYHOOK_*
environment variables are applied. Secrets are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func writeConfig(out io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()

	if err := enc.Encode(config.Redacted(cfg)); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
