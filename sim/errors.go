package sim

import "errors"

// ErrAlreadyFinished is returned by scheduler-mediated calls made once the
// run is over. A worker that has been marked finished also gets it from
// SleepUntil. Callers near shutdown can usually treat it as a benign race.
var ErrAlreadyFinished = errors.New("sim: already finished")

// ErrNotRunning is returned by Async when the scheduler has not started a run.
var ErrNotRunning = errors.New("sim: scheduler is not running")
