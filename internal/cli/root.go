package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/learnhub/payhook/internal/config"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=...".
var version = "0.1.0-dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "payhook",
	Short: "Payment gateway webhook settlement service",
	Long: `payhook receives payment notifications from the Nestpay bank gateway
and from PayPal, verifies that they are authentic and settles the matching
course purchase exactly once.

Start the server:
  payhook serve

Sign a payment form:
  payhook hash generate --clientid C1 --oid ORDER-1 ...`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Stderr, config.LoggingConfig{Format: "console"})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./payhook.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig reads the config file and PAYHOOK_* variables and validates
// the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}

	if path, pathErr := config.ConfigFilePath(cfgFile); pathErr == nil {
		log.Debug().Str("file", path).Msg("Using config file")
	}

	return cfg, nil
}

// setupLogging configures the global zerolog logger. --verbose always wins
// over the configured level.
func setupLogging(out io.Writer, cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("payhook version %s", version)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
