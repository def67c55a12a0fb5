package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/chronos/sim"
	"github.com/sarchlab/chronos/simulation"
)

// runConfig holds everything needed to run the sleeper workload.
type runConfig struct {
	tickDuration time.Duration
	horizon      uint64
	asyncPolicy  string
	workload     workload
	monitor      bool
	monitorPort  int
	browser      bool
	record       bool
	output       string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run synthetic sleeper workers on the scheduler.",
	Long: `Run starts a number of sleeper workers. Each sleeper parks on a ` +
		`series of seeded random alarms and reports every wake through the ` +
		`scheduler's async channel. A summary is printed once every worker ` +
		`has finished or the horizon has passed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := runConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		sum, err := runWorkload(cfg, logger)
		if err != nil {
			return err
		}

		return printSummary(cmd.OutOrStdout(), sum)
	},
}

func runConfigFromFlags(cmd *cobra.Command) (runConfig, error) {
	flags := cmd.Flags()
	cfg := runConfig{}

	cfg.tickDuration, _ = flags.GetDuration("tick-duration")
	cfg.horizon, _ = flags.GetUint64("horizon")
	cfg.asyncPolicy, _ = flags.GetString("async-policy")
	cfg.workload.workers, _ = flags.GetInt("workers")
	cfg.workload.sleeps, _ = flags.GetInt("sleeps")
	cfg.workload.maxInterval, _ = flags.GetInt("max-interval")
	cfg.workload.seed, _ = flags.GetInt64("seed")
	cfg.monitor, _ = flags.GetBool("monitor")
	cfg.monitorPort, _ = flags.GetInt("monitor-port")
	cfg.browser, _ = flags.GetBool("browser")
	cfg.output, _ = flags.GetString("output")

	noRecording, _ := flags.GetBool("no-recording")
	cfg.record = !noRecording

	return cfg, cfg.validate()
}

func (c runConfig) validate() error {
	switch {
	case c.tickDuration <= 0:
		return fmt.Errorf("tick duration must be positive, got %s",
			c.tickDuration)
	case c.workload.workers < 0:
		return fmt.Errorf("number of workers must not be negative, got %d",
			c.workload.workers)
	case c.workload.sleeps < 0:
		return fmt.Errorf("number of sleeps must not be negative, got %d",
			c.workload.sleeps)
	case c.workload.maxInterval <= 0:
		return fmt.Errorf("max interval must be positive, got %d",
			c.workload.maxInterval)
	case !c.record && c.output != "":
		return fmt.Errorf("output file given while recording is disabled")
	}

	_, err := parseAsyncPolicy(c.asyncPolicy)

	return err
}

func parseAsyncPolicy(s string) (sim.AsyncPolicy, error) {
	switch strings.ToLower(s) {
	case "continuous", "":
		return sim.AsyncDrainContinuous, nil
	case "per-tick", "pertick", "tick":
		return sim.AsyncDrainPerTick, nil
	default:
		return 0, fmt.Errorf("unknown async policy %q", s)
	}
}

func (c runConfig) builder(logger *slog.Logger) simulation.Builder {
	policy, _ := parseAsyncPolicy(c.asyncPolicy)

	b := simulation.MakeBuilder().
		WithTickDuration(c.tickDuration).
		WithHorizon(sim.VTimeInTick(c.horizon)).
		WithAsyncPolicy(policy).
		WithLogger(logger)

	if c.monitor {
		b = b.WithMonitorPort(c.monitorPort)
		if c.browser {
			b = b.WithBrowser()
		}
	} else {
		b = b.WithoutMonitoring()
	}

	if c.record {
		b = b.WithOutputFileName(c.output)
	} else {
		b = b.WithoutRecording()
	}

	return b
}

// runWorkload builds a simulation, runs the sleepers to completion and
// reports what happened.
func runWorkload(cfg runConfig, logger *slog.Logger) (summary, error) {
	s := cfg.builder(logger).Build()

	l := newLedger()
	sleepers := cfg.workload.register(s.Scheduler(), l)

	logger.Info("running sleepers",
		slog.String("run", s.ID()),
		slog.Int("workers", cfg.workload.workers),
		slog.Int("sleeps", cfg.workload.sleeps),
		slog.Duration("tick_duration", cfg.tickDuration))

	runErr := s.Run()
	sum := summarize(s.ID(), s.Scheduler(), l, sleepers)

	if err := s.Terminate(); err != nil {
		logger.Warn("cannot terminate simulation", slog.Any("error", err))
	}

	if runErr != nil {
		return sum, fmt.Errorf("running simulation %s: %w", s.ID(), runErr)
	}

	return sum, nil
}

func printSummary(w io.Writer, sum summary) error {
	_, err := io.WriteString(w, sum.String())
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.Duration("tick-duration", 10*time.Millisecond,
		"Wall-clock budget of a tick [CHRONOS_TICK_DURATION]")
	flags.Uint64("horizon", 0,
		"Last tick of the run, 0 for none [CHRONOS_HORIZON]")
	flags.String("async-policy", "continuous",
		"When async tasks run (continuous, per-tick)")
	flags.Int("workers", 8, "Number of sleeper workers [CHRONOS_WORKERS]")
	flags.Int("sleeps", 10, "Number of sleeps per worker [CHRONOS_SLEEPS]")
	flags.Int("max-interval", 5, "Maximum number of ticks between two alarms")
	flags.Int64("seed", 1, "Seed of the alarm generator")
	flags.Bool("monitor", false, "Serve the monitoring dashboard")
	flags.Int("monitor-port", 0,
		"Port of the monitoring server [CHRONOS_MONITOR_PORT]")
	flags.Bool("browser", false, "Open the monitoring dashboard in a browser")
	flags.Bool("no-recording", false, "Do not record ticks into SQLite")
	flags.String("output", "",
		"Name of the SQLite file, without extension [CHRONOS_OUTPUT]")
}
