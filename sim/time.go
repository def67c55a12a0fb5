package sim

import "time"

// VTimeInTick is a virtual time counted in ticks since the start of a run.
type VTimeInTick uint64

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInTick
}

// A SimulationEndHandler is a handler that is called after the simulation ends.
type SimulationEndHandler interface {
	Handle(now VTimeInTick)
}

// A Ticker is called once per virtual tick, after the due workers are woken
// and before the scheduler waits out the tick budget.
type Ticker interface {
	Tick()
}

// TickerFunc adapts a plain function to the Ticker interface.
type TickerFunc func()

// Tick calls f.
func (f TickerFunc) Tick() {
	f()
}

// TickRecord summarizes what happened during one virtual tick.
type TickRecord struct {
	Tick         VTimeInTick
	WallStart    time.Time
	WallDuration time.Duration
	Woken        int
	AsyncRun     int
	Overrun      bool
}

// Stats is a snapshot of the counters maintained by a Scheduler.
type Stats struct {
	Ticks    uint64 `json:"ticks"`
	Overruns uint64 `json:"overruns"`
	Wakes    uint64 `json:"wakes"`
	AsyncRun uint64 `json:"async_run"`
}
