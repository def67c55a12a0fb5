// Package simulation assembles a scheduler together with the services that
// record, trace and monitor its runs.
package simulation

import (
	"context"
	"errors"
	"time"

	"github.com/sarchlab/chronos/datarecording"
	"github.com/sarchlab/chronos/monitoring"
	"github.com/sarchlab/chronos/sim"
	"github.com/sarchlab/chronos/tracing"
)

// A Simulation provides the services required to run a set of workers.
type Simulation struct {
	id        string
	scheduler *sim.Scheduler

	dataRecorder   datarecording.DataRecorder
	monitor        *monitoring.Monitor
	tracer         *tracing.TickTracer
	overrunMonitor *tracing.OverrunMonitor
}

// ID returns the unique id of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Scheduler returns the scheduler driving the simulation.
func (s *Simulation) Scheduler() *sim.Scheduler {
	return s.scheduler
}

// DataRecorder returns the data recorder used in the simulation, or nil if
// recording is disabled.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Monitor returns the monitor used in the simulation, or nil if monitoring is
// disabled.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Tracer returns the tick tracer, or nil if recording is disabled.
func (s *Simulation) Tracer() *tracing.TickTracer {
	return s.tracer
}

// OverrunMonitor returns the monitor watching tick overruns.
func (s *Simulation) OverrunMonitor() *tracing.OverrunMonitor {
	return s.overrunMonitor
}

// RegisterWorker registers a worker with the simulation.
func (s *Simulation) RegisterWorker(w *sim.Worker) {
	s.scheduler.RegisterWorkers(w)
}

// RegisterWorkers registers several workers with the simulation.
func (s *Simulation) RegisterWorkers(workers ...*sim.Worker) {
	s.scheduler.RegisterWorkers(workers...)
}

// Workers returns all registered workers.
func (s *Simulation) Workers() []*sim.Worker {
	return s.scheduler.Workers()
}

// GetWorkerByName returns the worker with the given name, or nil.
func (s *Simulation) GetWorkerByName(name string) *sim.Worker {
	return s.scheduler.WorkerByName(name)
}

// Run runs the scheduler and flushes the recorded data.
func (s *Simulation) Run() error {
	err := s.scheduler.Run()

	if s.dataRecorder != nil {
		s.dataRecorder.Flush()
	}

	return err
}

// Terminate stops the monitoring server and closes the data recorder.
func (s *Simulation) Terminate() error {
	var errs []error

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		errs = append(errs, s.monitor.StopServer(ctx))
	}

	if s.dataRecorder != nil {
		errs = append(errs, s.dataRecorder.Close())
	}

	return errors.Join(errs...)
}
