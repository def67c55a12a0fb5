// Package cmd provides the command-line interface for Chronos.
package cmd

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/chronos/internal/logging"
)

var logger = slog.Default()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chronos",
	Short: "Chronos runs workers on a tick-synchronized virtual clock.",
	Long: `Chronos runs workers on a tick-synchronized virtual clock. ` +
		`Each worker sleeps until a future tick and the scheduler wakes it ` +
		`exactly when the clock gets there.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadDotEnv(envFile); err != nil {
			return err
		}

		if err := applyEnvDefaults(cmd); err != nil {
			return err
		}

		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		logger = logging.NewLogger(logging.ParseLevel(level), format)
		slog.SetDefault(logger)

		return nil
	},
}

var envFile string

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

// loadDotEnv loads the variables of an env file into the environment. A
// missing file is not an error.
func loadDotEnv(filename string) error {
	err := godotenv.Load(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"File to load CHRONOS_* variables from")
	rootCmd.PersistentFlags().String("log-level", "info",
		"Log level (debug, info, warn, error) [CHRONOS_LOG_LEVEL]")
	rootCmd.PersistentFlags().String("log-format", "text",
		"Log format (text, json) [CHRONOS_LOG_FORMAT]")
}
