package sim

import (
	"log"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// A Scheduler owns a virtual clock and a roster of workers. It advances the
// clock one tick at a time, wakes the workers whose alarms are due, calls the
// tick callback and then gives the workers up to one tick duration of wall
// time to park again before moving on.
type Scheduler struct {
	*HookableBase

	tickDuration time.Duration
	horizon      VTimeInTick
	policy       AsyncPolicy
	logger       *slog.Logger
	ticker       Ticker

	now atomic.Uint64

	rosterLock  sync.RWMutex
	workers     []*Worker
	workerIndex map[string]int

	authority    sync.Mutex
	tickAsyncRun int
	async        *asyncQueue

	running        atomic.Bool
	horizonReached bool
	reported       []bool

	isPaused      bool
	isPausedLock  sync.Mutex
	pauseLock     sync.Mutex
	singleRunLock sync.Mutex

	statsLock sync.Mutex
	stats     Stats

	simulationEndHandlers []SimulationEndHandler
}

// NewScheduler creates a scheduler with the given tick duration and default
// settings otherwise.
func NewScheduler(tickDuration time.Duration) *Scheduler {
	return MakeBuilder().WithTickDuration(tickDuration).Build()
}

// CurrentTime returns the current virtual time. It is safe to call from any
// goroutine.
func (s *Scheduler) CurrentTime() VTimeInTick {
	return VTimeInTick(s.now.Load())
}

// TickDuration returns the wall-clock budget of one tick.
func (s *Scheduler) TickDuration() time.Duration {
	return s.tickDuration
}

// Horizon returns the last tick of the run, or 0 if the run is unbounded.
func (s *Scheduler) Horizon() VTimeInTick {
	return s.horizon
}

// AsyncPolicy returns the policy used to drain Async tasks.
func (s *Scheduler) AsyncPolicy() AsyncPolicy {
	return s.policy
}

// IsRunning tells whether Run is in progress.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// SetTicker sets the callback invoked once per tick.
func (s *Scheduler) SetTicker(t Ticker) {
	s.mustNotBeRunning("set the ticker")
	s.ticker = t
}

// RegisterWorkers adds workers to the roster. The roster cannot change while
// a run is in progress and worker names must be unique.
func (s *Scheduler) RegisterWorkers(workers ...*Worker) {
	s.mustNotBeRunning("register workers")

	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()

	for _, w := range workers {
		if _, found := s.workerIndex[w.Name()]; found {
			panic("worker " + w.Name() + " already registered")
		}

		s.workers = append(s.workers, w)
		s.workerIndex[w.Name()] = len(s.workers) - 1
	}
}

func (s *Scheduler) mustNotBeRunning(action string) {
	if s.running.Load() {
		log.Panicf("sim: cannot %s while the scheduler is running", action)
	}
}

// Workers returns the registered workers in registration order.
func (s *Scheduler) Workers() []*Worker {
	s.rosterLock.RLock()
	defer s.rosterLock.RUnlock()

	workers := make([]*Worker, len(s.workers))
	copy(workers, s.workers)

	return workers
}

// WorkerByName returns the worker with the given name, or nil.
func (s *Scheduler) WorkerByName(name string) *Worker {
	s.rosterLock.RLock()
	defer s.rosterLock.RUnlock()

	i, found := s.workerIndex[name]
	if !found {
		return nil
	}

	return s.workers[i]
}

// Stats returns a snapshot of the counters of the current or last run.
func (s *Scheduler) Stats() Stats {
	s.statsLock.Lock()
	defer s.statsLock.Unlock()

	return s.stats
}

// Run starts every registered worker and ticks until all of them have
// finished. Calling Run while another Run is in progress panics.
func (s *Scheduler) Run() error {
	if !s.singleRunLock.TryLock() {
		log.Panic("sim: Run called while the scheduler is already running")
	}
	defer s.singleRunLock.Unlock()

	workers := s.Workers()

	s.prepareRun(workers)

	stop, stopped := s.startDrainer()

	for _, w := range workers {
		w.setLogger(s.logger)
		w.Start()
	}

	s.logger.Debug("run started",
		slog.Int("workers", len(workers)),
		slog.Duration("tick_duration", s.tickDuration),
		slog.String("async_policy", s.policy.String()))

	// Give the workers one budget to reach their first suspension point
	// before the clock leaves 0.
	s.waitForTickBudget(workers, time.Now().Add(s.tickDuration))

	s.loop(workers)

	s.async.close()
	s.stopDrainer(stop, stopped)

	for _, w := range workers {
		w.Wait()
	}

	s.reportFinishedWorkers(workers)
	s.running.Store(false)

	stats := s.Stats()
	s.logger.Debug("run finished",
		slog.Uint64("now", uint64(s.CurrentTime())),
		slog.Uint64("ticks", stats.Ticks),
		slog.Uint64("overruns", stats.Overruns))

	s.finished()

	return nil
}

func (s *Scheduler) prepareRun(workers []*Worker) {
	s.now.Store(0)
	s.horizonReached = false
	s.tickAsyncRun = 0
	s.reported = make([]bool, len(workers))

	s.statsLock.Lock()
	s.stats = Stats{}
	s.statsLock.Unlock()

	s.async.open()
	s.running.Store(true)
}

func (s *Scheduler) startDrainer() (chan struct{}, chan struct{}) {
	if s.policy != AsyncDrainContinuous {
		return nil, nil
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})

	go s.drainAsync(stop, stopped)

	return stop, stopped
}

func (s *Scheduler) stopDrainer(stop, stopped chan struct{}) {
	if stop == nil {
		return
	}

	close(stop)
	<-stopped
}

// loop snapshots whether any worker is running before each tick's wake pass
// and stops after the first tick whose snapshot finds none.
func (s *Scheduler) loop(workers []*Worker) {
	if !anyRunning(workers) {
		return
	}

	nextAlarm := VTimeInTick(1)
	for running := true; running; {
		s.pauseLock.Lock()

		running = anyRunning(workers)
		nextAlarm = s.tick(workers, nextAlarm)
		s.reportFinishedWorkers(workers)

		s.pauseLock.Unlock()
	}
}

func anyRunning(workers []*Worker) bool {
	for _, w := range workers {
		if w.StillRunning() {
			return true
		}
	}

	return false
}

func (s *Scheduler) tick(workers []*Worker, nextAlarm VTimeInTick) VTimeInTick {
	start := time.Now()
	deadline := start.Add(s.tickDuration)
	now := VTimeInTick(s.now.Add(1))

	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosBeforeTick, Item: now})

	s.authority.Lock()

	if s.policy == AsyncDrainPerTick {
		tasks := s.async.takeAll()
		s.runAsyncLocked(tasks)
		s.tickAsyncRun += len(tasks)
	}

	woken := 0
	switch {
	case s.horizon > 0 && now > s.horizon:
		nextAlarm, woken = s.releaseAll(workers, now)
	case nextAlarm <= now:
		nextAlarm, woken = s.wakeDueWorkers(workers, now)
	}

	if s.ticker != nil {
		s.ticker.Tick()
	}

	s.authority.Unlock()

	overrun := time.Now().After(deadline)

	s.waitForTickBudget(workers, deadline)

	// Tasks drained while workers used the budget belong to this tick.
	s.authority.Lock()
	asyncRun := s.tickAsyncRun
	s.tickAsyncRun = 0
	s.authority.Unlock()

	rec := TickRecord{
		Tick:         now,
		WallStart:    start,
		WallDuration: time.Since(start),
		Woken:        woken,
		AsyncRun:     asyncRun,
		Overrun:      overrun,
	}
	s.record(rec)

	if overrun {
		s.logger.Debug("tick overran its budget",
			slog.Uint64("tick", uint64(now)),
			slog.Duration("budget", s.tickDuration),
			slog.Duration("took", rec.WallDuration))
		s.InvokeHook(HookCtx{Domain: s, Pos: HookPosTickOverrun, Item: rec})
	}

	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosAfterTick, Item: rec})

	return nextAlarm
}

// wakeDueWorkers wakes every parked worker whose alarm is due and returns the
// earliest tick at which another pass is needed. A worker that is running
// without an alarm forces a pass on the next tick, since it may park at any
// moment.
func (s *Scheduler) wakeDueWorkers(
	workers []*Worker,
	now VTimeInTick,
) (VTimeInTick, int) {
	next := VTimeInTick(math.MaxUint64)
	woken := 0

	for _, w := range workers {
		w.alarmLock.Lock()
		alarm := w.alarm

		switch {
		case alarm == 0:
			if w.StillRunning() {
				next = now + 1
			}
		case alarm <= now:
			w.resume()
			woken++
			next = now + 1
		case alarm < next:
			next = alarm
		}

		w.alarmLock.Unlock()

		if alarm != 0 && alarm <= now {
			s.InvokeHook(HookCtx{
				Domain: s,
				Pos:    HookPosWorkerWake,
				Item:   w,
				Detail: alarm,
			})
		}
	}

	return next, woken
}

// releaseAll ends the run once the clock has passed the horizon. Every worker
// is marked finished and parked workers are woken regardless of their alarms.
// It runs on every tick after the horizon, so that workers parking late are
// released too.
func (s *Scheduler) releaseAll(
	workers []*Worker,
	now VTimeInTick,
) (VTimeInTick, int) {
	if !s.horizonReached {
		s.horizonReached = true
		s.async.close()
		s.logger.Debug("horizon reached",
			slog.Uint64("horizon", uint64(s.horizon)))
	}

	woken := 0
	for _, w := range workers {
		w.MarkFinished()

		w.alarmLock.Lock()
		alarm := w.alarm
		if alarm != 0 {
			w.resume()
			woken++
		}
		w.alarmLock.Unlock()

		if alarm != 0 {
			s.InvokeHook(HookCtx{
				Domain: s,
				Pos:    HookPosWorkerWake,
				Item:   w,
				Detail: alarm,
			})
		}
	}

	return now + 1, woken
}

// waitForTickBudget returns once every running worker is parked or the
// deadline has passed. It reports whether all the workers were found parked.
// Every token taken here is handed back before returning.
func (s *Scheduler) waitForTickBudget(
	workers []*Worker,
	deadline time.Time,
) bool {
	held := make([]*Worker, 0, len(workers))
	allParked := true

	for _, w := range workers {
		if !w.StillRunning() {
			continue
		}

		if !w.holdUntil(deadline) {
			allParked = false
			break
		}

		held = append(held, w)
	}

	for _, w := range held {
		w.unhold()
	}

	return allParked
}

func (s *Scheduler) record(rec TickRecord) {
	s.statsLock.Lock()
	defer s.statsLock.Unlock()

	s.stats.Ticks++
	s.stats.Wakes += uint64(rec.Woken)
	if rec.Overrun {
		s.stats.Overruns++
	}
}

func (s *Scheduler) reportFinishedWorkers(workers []*Worker) {
	for i, w := range workers {
		if s.reported[i] || w.StillRunning() {
			continue
		}

		s.reported[i] = true

		s.logger.Debug("worker finished",
			slog.String("worker", w.Name()),
			slog.Uint64("now", uint64(s.CurrentTime())))
		s.InvokeHook(HookCtx{Domain: s, Pos: HookPosWorkerFinished, Item: w})
	}
}

// Pause prevents the scheduler from starting another tick until Continue is
// called. Workers that are running keep running.
//
// The loop holds the pause lock for a whole tick, so the tick callback and
// hooks invoked on the scheduler goroutine must not call Pause.
func (s *Scheduler) Pause() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if s.isPaused {
		return
	}

	s.pauseLock.Lock()
	s.isPaused = true
}

// Continue allows the scheduler to tick again after a Pause.
func (s *Scheduler) Continue() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if !s.isPaused {
		return
	}

	s.pauseLock.Unlock()
	s.isPaused = false
}

// IsPaused tells whether Pause is in effect.
func (s *Scheduler) IsPaused() bool {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	return s.isPaused
}

// RegisterSimulationEndHandler registers a handler to be called when Run
// returns.
func (s *Scheduler) RegisterSimulationEndHandler(handler SimulationEndHandler) {
	s.simulationEndHandlers = append(s.simulationEndHandlers, handler)
}

func (s *Scheduler) finished() {
	now := s.CurrentTime()
	for _, h := range s.simulationEndHandlers {
		h.Handle(now)
	}
}
