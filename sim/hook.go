package sim

import "sync"

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// HookPosBeforeTick triggers right after the clock advances, before any
// worker is woken. The item is the new VTimeInTick.
var HookPosBeforeTick = &HookPos{Name: "BeforeTick"}

// HookPosAfterTick triggers once the tick budget has been waited out. The item
// is a TickRecord.
var HookPosAfterTick = &HookPos{Name: "AfterTick"}

// HookPosTickOverrun triggers when the wake pass and the tick callback took
// longer than the tick budget. The item is a TickRecord.
var HookPosTickOverrun = &HookPos{Name: "TickOverrun"}

// HookPosWorkerWake triggers when the scheduler wakes a parked worker. The
// item is the *Worker and the detail is the alarm it was sleeping on.
var HookPosWorkerWake = &HookPos{Name: "WorkerWake"}

// HookPosWorkerFinished triggers on the scheduler goroutine when a worker is
// first observed as no longer running. The item is the *Worker.
var HookPosWorkerFinished = &HookPos{Name: "WorkerFinished"}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	lock  sync.RWMutex
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.lock.Lock()
	h.Hooks = append(h.Hooks, hook)
	h.lock.Unlock()
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	h.lock.RLock()
	defer h.lock.RUnlock()

	return len(h.Hooks)
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	h.lock.RLock()
	hooks := h.Hooks
	h.lock.RUnlock()

	for _, hook := range hooks {
		hook.Func(ctx)
	}
}
