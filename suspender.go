package rtxoff

import (
	"fmt"
	"sync"
)

// suspenderThreadState is the per-thread FSM from spec.md §4.1 / the
// original thread_suspender.h, named to match the source so the state
// machine stays auditable against it: {Running, Suspended, Killed}.
type suspenderThreadState int8

const (
	suspenderRunning suspenderThreadState = iota
	suspenderSuspended
	suspenderKilled
)

// suspendHandle is the common, platform-independent half of a suspended
// thread's control data: the wakeup condition variable and the
// shouldWakeUp/shouldTerminate flags plus the {Running,Suspended,Killed}
// FSM described in spec.md §4.1. Platform back-ends (suspender_unix.go,
// suspender_windows.go) embed this and add whatever native handle they
// need to additionally force a thread off the CPU between cooperative
// checkpoints.
type suspendHandle struct {
	mu           sync.Mutex
	cond         *sync.Cond
	state        suspenderThreadState
	shouldWakeUp bool
	shouldStop   bool // shouldTerminate in the original

	started chan struct{} // start-handshake: closed once the thread's
	// own suspendHandle is fully initialized, so the controller never
	// signals/resumes before the target is ready to receive it.

	entry func()
	done  chan struct{}

	native nativeSuspendData
}

func newSuspendHandle(entry func()) *suspendHandle {
	h := &suspendHandle{
		state:   suspenderSuspended,
		started: make(chan struct{}),
		done:    make(chan struct{}),
		entry:   entry,
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// waitStartHandshake blocks the controller until the new thread has
// finished platform-specific setup and is genuinely parked waiting to be
// resumed for the first time.
func (h *suspendHandle) waitStartHandshake() {
	<-h.started
}

// parkUntilResumed is called from the target thread's own goroutine. It
// blocks until told to run or to terminate, exactly the signal-handler
// loop described in spec.md §4.1 bullet 2, implemented with a condition
// variable rather than a real POSIX signal handler (see suspender_unix.go
// for why: Go does not let a signal handler run on an
// arbitrary target thread's own stack without cgo).
func (h *suspendHandle) parkUntilResumed() (killed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.shouldWakeUp && !h.shouldStop {
		h.cond.Wait()
	}
	if h.shouldStop {
		h.state = suspenderKilled
		return true
	}
	h.shouldWakeUp = false
	h.state = suspenderRunning
	return false
}

// requestSuspend marks the thread as needing to park at its next
// checkpoint. Returns an error if the thread has already been killed.
func (h *suspendHandle) requestSuspend() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == suspenderKilled {
		return fmt.Errorf("rtxoff: suspend on killed thread")
	}
	h.state = suspenderSuspended
	return nil
}

// requestResume wakes a parked thread. Idempotent: calling it twice in a
// row without an intervening suspend is a no-op, guarding against
// double-signalling exactly as spec.md §4.1 describes.
func (h *suspendHandle) requestResume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == suspenderKilled {
		return fmt.Errorf("rtxoff: resume on killed thread")
	}
	h.shouldWakeUp = true
	h.cond.Broadcast()
	return nil
}

// requestKill tears the thread down permanently.
func (h *suspendHandle) requestKill() {
	h.mu.Lock()
	h.shouldStop = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Suspender is the thread-suspender capability from spec.md §4.1: create
// a host thread that starts not-yet-running user code, and later force
// any host thread to stop and later resume from another host thread.
// Two back-ends implement it, chosen at build time: suspender_windows.go
// (native SuspendThread/ResumeThread) and suspender_unix.go (POSIX
// signal-driven handshake, Linux/Darwin).
type Suspender interface {
	// Spawn starts entry on a new host thread that begins suspended: entry
	// does not run until the first Resume. It blocks until the thread's
	// suspend state is fully initialized (the start-handshake).
	Spawn(entry func()) (*suspendHandle, error)
	// Suspend stops h's thread before it next reaches a checkpoint.
	Suspend(h *suspendHandle) error
	// Resume lets h's thread proceed.
	Resume(h *suspendHandle) error
	// Kill tears h's thread down permanently. Exit discipline: the
	// thread tears its own suspend state down from its own context when
	// entry returns; Kill only unparks it so it can do so.
	Kill(h *suspendHandle) error
}
