package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/chronos/sim"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

type progressBarSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

func (b *ProgressBar) snapshot() progressBarSnapshot {
	b.Lock()
	defer b.Unlock()

	return progressBarSnapshot{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// horizonProgress moves a bar forward by one for every tick up to the horizon.
type horizonProgress struct {
	bar *ProgressBar
}

func (h *horizonProgress) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterTick {
		return
	}

	rec := ctx.Item.(sim.TickRecord)
	if uint64(rec.Tick) <= h.bar.Total {
		h.bar.IncrementFinished(1)
	}
}

// TrackHorizon creates a progress bar that follows the clock of the
// registered scheduler towards its horizon. It returns nil when the
// scheduler has no horizon.
func (m *Monitor) TrackHorizon() *ProgressBar {
	if m.scheduler == nil || m.scheduler.Horizon() == 0 {
		return nil
	}

	bar := m.CreateProgressBar("Ticks", uint64(m.scheduler.Horizon()))
	m.scheduler.AcceptHook(&horizonProgress{bar: bar})

	return bar
}
