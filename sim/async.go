package sim

import (
	"fmt"
	"sync"
)

// AsyncPolicy decides when the tasks submitted through Async are executed.
type AsyncPolicy int

const (
	// AsyncDrainContinuous runs each task as soon as it is submitted, on a
	// dedicated drainer goroutine. Tasks hold the scheduler's authority lock,
	// so they never overlap with each other, with a wake pass or with the
	// tick callback.
	AsyncDrainContinuous AsyncPolicy = iota

	// AsyncDrainPerTick runs the queued tasks on the scheduler goroutine once
	// per tick, at the start of the tick before the wake pass. A worker
	// blocked in Async during tick t resumes during tick t+1.
	AsyncDrainPerTick
)

func (p AsyncPolicy) String() string {
	switch p {
	case AsyncDrainContinuous:
		return "continuous"
	case AsyncDrainPerTick:
		return "per-tick"
	default:
		return fmt.Sprintf("AsyncPolicy(%d)", int(p))
	}
}

type asyncResult struct {
	value    any
	err      error
	panicked bool
	panicVal any
}

type asyncTask struct {
	fn     func() (any, error)
	result chan asyncResult
}

func (t *asyncTask) run() {
	res := asyncResult{}

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.panicked = true
				res.panicVal = r
			}
		}()

		res.value, res.err = t.fn()
	}()

	t.result <- res
}

func (t *asyncTask) fail(err error) {
	t.result <- asyncResult{err: err}
}

type asyncQueueState int

const (
	asyncQueueIdle asyncQueueState = iota
	asyncQueueOpen
	asyncQueueClosed
)

// asyncQueue is the channel between submitting goroutines and the goroutine
// that executes tasks. Any number of goroutines may push; draining belongs to
// one consumer at a time.
type asyncQueue struct {
	lock   sync.Mutex
	state  asyncQueueState
	tasks  []*asyncTask
	notify chan struct{}
}

func newAsyncQueue() *asyncQueue {
	return &asyncQueue{
		notify: make(chan struct{}, 1),
	}
}

func (q *asyncQueue) open() {
	q.lock.Lock()
	q.state = asyncQueueOpen
	q.tasks = nil
	q.lock.Unlock()
}

func (q *asyncQueue) push(t *asyncTask) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	switch q.state {
	case asyncQueueIdle:
		return ErrNotRunning
	case asyncQueueClosed:
		return ErrAlreadyFinished
	}

	q.tasks = append(q.tasks, t)

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

func (q *asyncQueue) takeAll() []*asyncTask {
	q.lock.Lock()
	defer q.lock.Unlock()

	tasks := q.tasks
	q.tasks = nil

	return tasks
}

// close stops accepting tasks and fails every task still queued.
func (q *asyncQueue) close() {
	q.lock.Lock()
	q.state = asyncQueueClosed
	tasks := q.tasks
	q.tasks = nil
	q.lock.Unlock()

	for _, t := range tasks {
		t.fail(ErrAlreadyFinished)
	}
}

// Async runs fn with the scheduler's authority and blocks until it completes.
// The error returned by fn is returned unchanged. If fn panics, the panic is
// raised again on the calling goroutine. Async returns ErrNotRunning before a
// run starts and ErrAlreadyFinished once the run has ended or the horizon has
// passed.
//
// Async is not tied to a worker. Use AsyncFor to refuse work on behalf of a
// worker that has already been marked finished.
//
// The tick callback and hooks invoked on the scheduler goroutine must not call
// Async.
func (s *Scheduler) Async(fn func() (any, error)) (any, error) {
	task := &asyncTask{
		fn:     fn,
		result: make(chan asyncResult, 1),
	}

	if err := s.async.push(task); err != nil {
		return nil, err
	}

	res := <-task.result
	if res.panicked {
		panic(res.panicVal)
	}

	return res.value, res.err
}

// AsyncFor runs fn like Async on behalf of w. It returns ErrAlreadyFinished
// without queueing fn when w has been marked finished.
func (s *Scheduler) AsyncFor(w *Worker, fn func() (any, error)) (any, error) {
	if w.IsFinished() {
		return nil, ErrAlreadyFinished
	}

	return s.Async(fn)
}

// Call is the typed form of Scheduler.Async.
func Call[T any](s *Scheduler, fn func() (T, error)) (T, error) {
	v, err := s.Async(func() (any, error) {
		return fn()
	})

	var zero T
	if v == nil {
		return zero, err
	}

	return v.(T), err
}

func (s *Scheduler) runAsyncLocked(tasks []*asyncTask) {
	for _, t := range tasks {
		t.run()
	}

	s.statsLock.Lock()
	s.stats.AsyncRun += uint64(len(tasks))
	s.statsLock.Unlock()
}

func (s *Scheduler) drainAsync(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	for {
		select {
		case <-s.async.notify:
		case <-stop:
			return
		}

		tasks := s.async.takeAll()
		if len(tasks) == 0 {
			continue
		}

		s.authority.Lock()
		s.runAsyncLocked(tasks)
		s.tickAsyncRun += len(tasks)
		s.authority.Unlock()
	}
}
