package tracing

import (
	"log/slog"
	"sync"

	"github.com/sarchlab/chronos/sim"
)

// OverrunMonitor watches the most recent ticks and warns when too many of
// them overran their wall-clock budget.
type OverrunMonitor struct {
	logger    *slog.Logger
	threshold float64

	lock     sync.Mutex
	window   []bool
	next     int
	filled   int
	inWindow int
	total    uint64
	warning  bool
}

// NewOverrunMonitor creates a monitor over a window of the given number of
// ticks. A warning is logged when the share of overrun ticks in a full window
// rises above threshold, and again after it has fallen back to or below it.
func NewOverrunMonitor(
	window int,
	threshold float64,
	logger *slog.Logger,
) *OverrunMonitor {
	if window <= 0 {
		panic("overrun window must be positive")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &OverrunMonitor{
		logger:    logger,
		threshold: threshold,
		window:    make([]bool, window),
	}
}

// Func consumes the tick records of a scheduler.
func (m *OverrunMonitor) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterTick {
		return
	}

	rec := ctx.Item.(sim.TickRecord)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.push(rec.Overrun)

	if m.filled < len(m.window) {
		return
	}

	ratio := m.ratioLocked()
	switch {
	case ratio > m.threshold && !m.warning:
		m.warning = true
		m.logger.Warn("ticks persistently overrun their budget",
			slog.Uint64("tick", uint64(rec.Tick)),
			slog.Float64("ratio", ratio),
			slog.Int("window", len(m.window)))
	case ratio <= m.threshold && m.warning:
		m.warning = false
		m.logger.Info("tick overruns back under threshold",
			slog.Uint64("tick", uint64(rec.Tick)),
			slog.Float64("ratio", ratio))
	}
}

func (m *OverrunMonitor) push(overrun bool) {
	if m.window[m.next] {
		m.inWindow--
	}

	m.window[m.next] = overrun
	m.next = (m.next + 1) % len(m.window)

	if overrun {
		m.inWindow++
		m.total++
	}

	if m.filled < len(m.window) {
		m.filled++
	}
}

// Ratio returns the share of overrun ticks among the ticks in the window.
func (m *OverrunMonitor) Ratio() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.ratioLocked()
}

func (m *OverrunMonitor) ratioLocked() float64 {
	if m.filled == 0 {
		return 0
	}

	return float64(m.inWindow) / float64(m.filled)
}

// Total returns the number of overrun ticks seen so far.
func (m *OverrunMonitor) Total() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.total
}

// Warning tells whether the monitor currently considers overruns persistent.
func (m *OverrunMonitor) Warning() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.warning
}
