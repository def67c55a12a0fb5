// Package tracing turns the activity of a scheduler into records.
package tracing

import (
	"fmt"

	"github.com/sarchlab/chronos/datarecording"
	"github.com/sarchlab/chronos/sim"
)

// Names of the tables written by a TickTracer.
const (
	TickTableName   = "chronos_ticks"
	WakeTableName   = "chronos_wakes"
	FinishTableName = "chronos_finishes"
)

// TickEntry is a row of the tick table.
type TickEntry struct {
	Tick           uint64
	WallStartNS    int64
	WallDurationNS int64
	Woken          int
	AsyncRun       int
	Overrun        bool
}

// WakeEntry is a row of the wake table.
type WakeEntry struct {
	Tick     uint64
	Worker   string
	WorkerID string
	Alarm    uint64
}

// FinishEntry is a row of the finish table.
type FinishEntry struct {
	Tick      uint64
	Worker    string
	WorkerID  string
	Panicked  bool
	Recovered string
}

// TickTracer is a hook that records every tick, every wake and every worker
// completion of a scheduler.
type TickTracer struct {
	timeTeller sim.TimeTeller
	recorder   datarecording.DataRecorder
}

// NewTickTracer creates the tracer tables in the recorder.
func NewTickTracer(
	timeTeller sim.TimeTeller,
	recorder datarecording.DataRecorder,
) *TickTracer {
	t := &TickTracer{
		timeTeller: timeTeller,
		recorder:   recorder,
	}

	recorder.CreateTable(TickTableName, TickEntry{})
	recorder.CreateTable(WakeTableName, WakeEntry{})
	recorder.CreateTable(FinishTableName, FinishEntry{})

	return t
}

// Func records the event that triggered the hook.
func (t *TickTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosAfterTick:
		t.recordTick(ctx.Item.(sim.TickRecord))
	case sim.HookPosWorkerWake:
		t.recordWake(ctx.Item.(*sim.Worker), ctx.Detail.(sim.VTimeInTick))
	case sim.HookPosWorkerFinished:
		t.recordFinish(ctx.Item.(*sim.Worker))
	}
}

func (t *TickTracer) recordTick(rec sim.TickRecord) {
	t.recorder.InsertData(TickTableName, TickEntry{
		Tick:           uint64(rec.Tick),
		WallStartNS:    rec.WallStart.UnixNano(),
		WallDurationNS: rec.WallDuration.Nanoseconds(),
		Woken:          rec.Woken,
		AsyncRun:       rec.AsyncRun,
		Overrun:        rec.Overrun,
	})
}

func (t *TickTracer) recordWake(w *sim.Worker, alarm sim.VTimeInTick) {
	t.recorder.InsertData(WakeTableName, WakeEntry{
		Tick:     uint64(t.timeTeller.CurrentTime()),
		Worker:   w.Name(),
		WorkerID: w.ID(),
		Alarm:    uint64(alarm),
	})
}

func (t *TickTracer) recordFinish(w *sim.Worker) {
	entry := FinishEntry{
		Tick:     uint64(t.timeTeller.CurrentTime()),
		Worker:   w.Name(),
		WorkerID: w.ID(),
	}

	if r := w.Recovered(); r != nil {
		entry.Panicked = true
		entry.Recovered = fmt.Sprint(r)
	}

	t.recorder.InsertData(FinishTableName, entry)
}
