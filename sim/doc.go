// Package sim implements a tick-synchronized cooperative scheduler.
//
// A Scheduler drives a discrete virtual clock. Each Worker runs its Routine
// on a goroutine of its own, but only makes progress in virtual time by
// parking itself with SleepUntil. On every tick the scheduler wakes the
// workers whose alarms are due, invokes the tick callback, and then waits, for
// at most one tick duration of wall time, until every worker has parked again.
// If every worker parks early the scheduler moves on at once.
//
// From the routines' point of view the system behaves like a single-threaded
// discrete event simulation: a routine that sleeps until tick T resumes at
// tick T at the earliest, and the clock never moves while the scheduler can
// still see a routine computing within the tick budget.
//
// Routines must not touch state shared with other routines directly. They
// submit closures through Scheduler.Async, which runs them one at a time with
// the scheduler's authority.
//
// A panic escaping a Routine is recovered at the goroutine boundary, logged,
// and the worker ends as if the routine had returned. Routines that need
// failures to be visible record them before returning.
package sim
