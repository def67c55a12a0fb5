package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envVars maps flag names to the environment variables providing their
// defaults.
var envVars = map[string]string{
	"tick-duration": "CHRONOS_TICK_DURATION",
	"workers":       "CHRONOS_WORKERS",
	"sleeps":        "CHRONOS_SLEEPS",
	"horizon":       "CHRONOS_HORIZON",
	"monitor-port":  "CHRONOS_MONITOR_PORT",
	"log-level":     "CHRONOS_LOG_LEVEL",
	"log-format":    "CHRONOS_LOG_FORMAT",
	"output":        "CHRONOS_OUTPUT",
}

// applyEnvDefaults sets every flag that was not given on the command line from
// its environment variable, if that variable is set.
func applyEnvDefaults(cmd *cobra.Command) error {
	var err error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}

		name, found := envVars[f.Name]
		if !found {
			return
		}

		value, set := os.LookupEnv(name)
		if !set {
			return
		}

		if setErr := cmd.Flags().Set(f.Name, value); setErr != nil {
			err = fmt.Errorf("invalid %s: %w", name, setErr)
		}
	})

	return err
}
