package cmd

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/sarchlab/chronos/sim"
)

// ledger collects the wakes reported by the sleepers. It is only mutated from
// tasks run through Async, so it needs no lock of its own.
type ledger struct {
	wakes map[string][]sim.VTimeInTick
	early int
}

func newLedger() *ledger {
	return &ledger{
		wakes: make(map[string][]sim.VTimeInTick),
	}
}

func (l *ledger) total() int {
	n := 0
	for _, w := range l.wakes {
		n += len(w)
	}

	return n
}

// sleeper parks on a precomputed list of alarms and reports every wake.
type sleeper struct {
	*sim.Worker

	scheduler *sim.Scheduler
	ledger    *ledger
	alarms    []sim.VTimeInTick
	released  bool
}

func (s *sleeper) Main() {
	for _, alarm := range s.alarms {
		if err := s.SleepUntil(alarm); err != nil {
			s.released = true
			return
		}

		now := s.CurrentTime()

		_, err := sim.Call(s.scheduler, func() (int, error) {
			s.ledger.wakes[s.Name()] = append(s.ledger.wakes[s.Name()], now)
			if now < alarm {
				s.ledger.early++
			}

			return len(s.ledger.wakes[s.Name()]), nil
		})
		if err != nil {
			return
		}
	}
}

// workload describes a set of sleepers with seeded random alarms.
type workload struct {
	workers     int
	sleeps      int
	maxInterval int
	seed        int64
}

// alarms returns, for each worker, strictly increasing alarms separated by
// 1 to maxInterval ticks.
func (w workload) alarms() [][]sim.VTimeInTick {
	rng := rand.New(rand.NewSource(w.seed))

	all := make([][]sim.VTimeInTick, w.workers)
	for i := range all {
		t := sim.VTimeInTick(0)
		for k := 0; k < w.sleeps; k++ {
			t += sim.VTimeInTick(rng.Intn(w.maxInterval) + 1)
			all[i] = append(all[i], t)
		}
	}

	return all
}

func (w workload) register(s *sim.Scheduler, l *ledger) []*sleeper {
	sleepers := make([]*sleeper, 0, w.workers)

	for i, alarms := range w.alarms() {
		sl := &sleeper{
			scheduler: s,
			ledger:    l,
			alarms:    alarms,
		}
		sl.Worker = sim.NewWorker(fmt.Sprintf("sleeper%d", i), s, sl)

		s.RegisterWorkers(sl.Worker)
		sleepers = append(sleepers, sl)
	}

	return sleepers
}

// summary is what a run reports once it is over.
type summary struct {
	RunID    string
	Now      sim.VTimeInTick
	Stats    sim.Stats
	Wakes    int
	Early    int
	Released int
	Panicked []string
}

func summarize(
	runID string,
	s *sim.Scheduler,
	l *ledger,
	sleepers []*sleeper,
) summary {
	sum := summary{
		RunID:    runID,
		Now:      s.CurrentTime(),
		Stats:    s.Stats(),
		Wakes:    l.total(),
		Early:    l.early,
	}

	for _, sl := range sleepers {
		if sl.released {
			sum.Released++
		}

		if sl.Recovered() != nil {
			sum.Panicked = append(sum.Panicked, sl.Name())
		}
	}

	sort.Strings(sum.Panicked)

	return sum
}

func (s summary) String() string {
	text := fmt.Sprintf(
		"run:       %s\n"+
			"now:       %d\n"+
			"ticks:     %d\n"+
			"overruns:  %d\n"+
			"wakes:     %d (reported %d)\n"+
			"async:     %d\n"+
			"early:     %d\n"+
			"released:  %d\n",
		s.RunID, s.Now, s.Stats.Ticks, s.Stats.Overruns,
		s.Stats.Wakes, s.Wakes, s.Stats.AsyncRun, s.Early, s.Released)

	if len(s.Panicked) > 0 {
		text += fmt.Sprintf("panicked:  %v\n", s.Panicked)
	}

	return text
}
