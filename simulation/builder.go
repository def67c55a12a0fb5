package simulation

import (
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/chronos/datarecording"
	"github.com/sarchlab/chronos/monitoring"
	"github.com/sarchlab/chronos/sim"
	"github.com/sarchlab/chronos/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	schedulerBuilder sim.Builder
	logger           *slog.Logger
	monitorOn        bool
	monitorPort      int
	openBrowser      bool
	recordingOn      bool
	outputFileName   string
	overrunWindow    int
	overrunThreshold float64
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		schedulerBuilder: sim.MakeBuilder(),
		monitorOn:        true,
		recordingOn:      true,
		overrunWindow:    100,
		overrunThreshold: 0.1,
	}
}

// WithTickDuration sets the wall-clock budget of a tick.
func (b Builder) WithTickDuration(d time.Duration) Builder {
	b.schedulerBuilder = b.schedulerBuilder.WithTickDuration(d)
	return b
}

// WithHorizon sets the last tick of the run.
func (b Builder) WithHorizon(h sim.VTimeInTick) Builder {
	b.schedulerBuilder = b.schedulerBuilder.WithHorizon(h)
	return b
}

// WithTicker sets the callback invoked once per tick.
func (b Builder) WithTicker(t sim.Ticker) Builder {
	b.schedulerBuilder = b.schedulerBuilder.WithTicker(t)
	return b
}

// WithAsyncPolicy sets when Async tasks are executed.
func (b Builder) WithAsyncPolicy(p sim.AsyncPolicy) Builder {
	b.schedulerBuilder = b.schedulerBuilder.WithAsyncPolicy(p)
	return b
}

// WithLogger sets the logger shared by the scheduler and the overrun monitor.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	b.schedulerBuilder = b.schedulerBuilder.WithLogger(logger)
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowser opens the monitoring dashboard once the server is up.
func (b Builder) WithBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithoutRecording sets the simulation to not record ticks into a database.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithOverrunWarning sets the window and the ratio above which persistent
// tick overruns are reported.
func (b Builder) WithOverrunWarning(window int, threshold float64) Builder {
	b.overrunWindow = window
	b.overrunThreshold = threshold
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && b.outputFileName != "" {
		panic("output file name cannot be set when recording is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id: xid.New().String(),
	}

	s.scheduler = b.schedulerBuilder.Build()

	s.overrunMonitor = tracing.NewOverrunMonitor(
		b.overrunWindow, b.overrunThreshold, b.logger)
	s.scheduler.AcceptHook(s.overrunMonitor)

	if b.recordingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "chronos_sim_" + s.id
		}

		s.dataRecorder = datarecording.New(outputPath)
		s.tracer = tracing.NewTickTracer(s.scheduler, s.dataRecorder)
		s.scheduler.AcceptHook(s.tracer)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithBrowser(b.openBrowser)
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}

		s.monitor.RegisterScheduler(s.scheduler)
		s.monitor.TrackHorizon()
		s.monitor.StartServer()
	}

	return s
}
