package sim

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Routine is the entry body of a Worker. Main is invoked once per run on the
// worker's own goroutine. It may call SleepUntil any number of times and must
// eventually return.
type Routine interface {
	Main()
}

// RoutineFunc adapts a plain function to the Routine interface.
type RoutineFunc func()

// Main calls f.
func (f RoutineFunc) Main() {
	f()
}

// A Worker runs a Routine on a dedicated goroutine and lets the routine
// suspend itself until a future virtual time.
//
// Two primitives coordinate a worker with its scheduler. The active token is
// held whenever the routine is executing and released while it is parked in
// SleepUntil, so holding the token proves the worker is not mid-computation.
// The wake latch is what a parked worker blocks on; the scheduler takes the
// active token back on the worker's behalf before opening the latch.
type Worker struct {
	name    string
	id      string
	clock   TimeTeller
	routine Routine

	active *semaphore.Weighted
	wake   chan struct{}

	alarmLock sync.Mutex
	alarm     VTimeInTick

	running  atomic.Bool
	finished atomic.Bool

	threadLock sync.Mutex
	done       chan struct{}
	logger     *slog.Logger
	recovered  any
}

// NewWorker creates a worker that runs routine and reads the virtual time
// from clock.
func NewWorker(name string, clock TimeTeller, routine Routine) *Worker {
	if routine == nil {
		log.Panicf("worker %s: routine must not be nil", name)
	}

	return &Worker{
		name:    name,
		id:      GetIDGenerator().Generate("worker"),
		clock:   clock,
		routine: routine,
		active:  semaphore.NewWeighted(1),
		wake:    make(chan struct{}, 1),
		logger:  slog.Default(),
	}
}

// Name returns the name of the worker.
func (w *Worker) Name() string {
	return w.name
}

// ID returns the unique id of the worker.
func (w *Worker) ID() string {
	return w.id
}

// CurrentTime returns the virtual time of the clock the worker follows.
func (w *Worker) CurrentTime() VTimeInTick {
	return w.clock.CurrentTime()
}

func (w *Worker) setLogger(logger *slog.Logger) {
	w.threadLock.Lock()
	w.logger = logger
	w.threadLock.Unlock()
}

// Start begins executing the routine on a new goroutine. Starting a worker
// whose previous goroutine has not been collected with Wait panics.
func (w *Worker) Start() {
	w.threadLock.Lock()
	defer w.threadLock.Unlock()

	if w.done != nil {
		log.Panicf("worker %s: started again before Wait", w.name)
	}

	if !w.active.TryAcquire(1) {
		log.Panicf("worker %s: active token is already held", w.name)
	}

	select {
	case <-w.wake:
	default:
	}

	w.alarmLock.Lock()
	w.alarm = 0
	w.alarmLock.Unlock()

	w.recovered = nil
	w.finished.Store(false)
	w.running.Store(true)

	setup := make(chan struct{})
	done := make(chan struct{})
	w.done = done

	go w.threadMain(setup, done)

	close(setup)
}

func (w *Worker) threadMain(setup <-chan struct{}, done chan<- struct{}) {
	<-setup

	defer close(done)
	defer w.exit()
	defer func() {
		if r := recover(); r != nil {
			w.swallow(r)
		}
	}()

	w.routine.Main()
}

// swallow records a panic that escaped the routine. The worker ends as if the
// routine had returned; routines that need failures reported must record them
// before returning.
func (w *Worker) swallow(r any) {
	w.threadLock.Lock()
	w.recovered = r
	logger := w.logger
	w.threadLock.Unlock()

	logger.Warn("worker routine panicked",
		slog.String("worker", w.name),
		slog.Any("recovered", r),
		slog.Uint64("now", uint64(w.clock.CurrentTime())))
}

// exit must clear the running flag before handing the token back, so that
// whoever acquires the token next sees the worker as finished.
func (w *Worker) exit() {
	w.running.Store(false)
	w.active.Release(1)
}

// Wait blocks until the worker's goroutine terminates. It is a no-op if no
// goroutine is attached.
func (w *Worker) Wait() {
	w.threadLock.Lock()
	done := w.done
	w.threadLock.Unlock()

	if done == nil {
		return
	}

	<-done

	w.threadLock.Lock()
	if w.done == done {
		w.done = nil
	}
	w.threadLock.Unlock()
}

// Dispose collects the worker's goroutine. Disposing a worker that is still
// running violates the worker contract and panics.
func (w *Worker) Dispose() {
	if w.StillRunning() {
		log.Panicf("worker %s: disposed while still running", w.name)
	}

	w.Wait()
}

// StillRunning tells whether the routine is still executing or parked.
func (w *Worker) StillRunning() bool {
	return w.running.Load()
}

// MarkFinished flags the worker as finished from outside its routine. Later
// calls to SleepUntil return ErrAlreadyFinished without suspending.
func (w *Worker) MarkFinished() {
	w.finished.Store(true)
}

// IsFinished tells whether MarkFinished has been called during this run.
func (w *Worker) IsFinished() bool {
	return w.finished.Load()
}

// Alarm returns the virtual time the worker is parked on, or 0 if it is not
// parked.
func (w *Worker) Alarm() VTimeInTick {
	w.alarmLock.Lock()
	defer w.alarmLock.Unlock()

	return w.alarm
}

// Recovered returns the value of the last panic swallowed at the routine
// boundary, if any.
func (w *Worker) Recovered() any {
	w.threadLock.Lock()
	defer w.threadLock.Unlock()

	return w.recovered
}

// SleepUntil parks the calling routine until the virtual clock reaches t. A t
// of 0 means the next tick. It must only be called from the worker's own
// routine. It returns ErrAlreadyFinished, without suspending, when the worker
// has been marked finished, and also when the worker is released because the
// run is finishing.
func (w *Worker) SleepUntil(t VTimeInTick) error {
	if w.finished.Load() {
		return ErrAlreadyFinished
	}

	if t == 0 {
		t = w.clock.CurrentTime() + 1
	}

	w.alarmLock.Lock()
	w.alarm = t
	w.alarmLock.Unlock()

	w.active.Release(1)
	<-w.wake

	if w.finished.Load() {
		return ErrAlreadyFinished
	}

	return nil
}

// Yield parks the routine until the next tick.
func (w *Worker) Yield() error {
	return w.SleepUntil(0)
}

// SleepFor parks the routine for d ticks counted from the current time.
func (w *Worker) SleepFor(d VTimeInTick) error {
	return w.SleepUntil(w.clock.CurrentTime() + d)
}

// resume hands the active token back to a parked worker and opens its wake
// latch. The caller must hold alarmLock.
func (w *Worker) resume() {
	w.alarm = 0

	// The worker publishes its alarm before releasing the token, so this may
	// block for the short window in between.
	_ = w.active.Acquire(context.Background(), 1)

	w.wake <- struct{}{}
}

// holdUntil tries to take the active token before the deadline. A successful
// hold proves the worker is parked or finished and must be undone with
// unhold.
func (w *Worker) holdUntil(deadline time.Time) bool {
	if w.active.TryAcquire(1) {
		return true
	}

	if !time.Now().Before(deadline) {
		return false
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	return w.active.Acquire(ctx, 1) == nil
}

func (w *Worker) unhold() {
	w.active.Release(1)
}
