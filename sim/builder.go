package sim

import (
	"log"
	"log/slog"
	"time"
)

// Builder can be used to build a Scheduler.
type Builder struct {
	tickDuration time.Duration
	horizon      VTimeInTick
	policy       AsyncPolicy
	ticker       Ticker
	logger       *slog.Logger
}

// MakeBuilder creates a new builder with a 10ms tick duration, no horizon and
// continuous async draining.
func MakeBuilder() Builder {
	return Builder{
		tickDuration: 10 * time.Millisecond,
		policy:       AsyncDrainContinuous,
	}
}

// WithTickDuration sets the wall-clock budget of one virtual tick.
func (b Builder) WithTickDuration(d time.Duration) Builder {
	b.tickDuration = d
	return b
}

// WithHorizon sets the last tick of the run. Once the clock passes it, workers
// are released and Async reports ErrAlreadyFinished. 0 means no horizon.
func (b Builder) WithHorizon(h VTimeInTick) Builder {
	b.horizon = h
	return b
}

// WithAsyncPolicy sets when Async tasks are executed.
func (b Builder) WithAsyncPolicy(p AsyncPolicy) Builder {
	b.policy = p
	return b
}

// WithTicker sets the callback invoked once per tick.
func (b Builder) WithTicker(t Ticker) Builder {
	b.ticker = t
	return b
}

// WithLogger sets the logger of the scheduler and of its workers.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.tickDuration <= 0 {
		log.Panicf("sim: tick duration must be positive, got %s", b.tickDuration)
	}

	if b.policy != AsyncDrainContinuous && b.policy != AsyncDrainPerTick {
		log.Panicf("sim: unknown async policy %s", b.policy)
	}
}

// Build builds the scheduler.
func (b Builder) Build() *Scheduler {
	b.parametersMustBeValid()

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		HookableBase: NewHookableBase(),
		tickDuration: b.tickDuration,
		horizon:      b.horizon,
		policy:       b.policy,
		ticker:       b.ticker,
		logger:       logger,
		workerIndex:  make(map[string]int),
		async:        newAsyncQueue(),
	}
}
