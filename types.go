package rtxoff

import "time"

// ThreadID identifies a thread's control block by slot index into the
// kernel's thread arena, not by pointer — see DESIGN.md for the
// intrusive-list-by-index rationale.
type ThreadID int32

// noThread is the null ThreadID, analogous to a nil *osRtxThread_t.
const noThread ThreadID = -1

// ObjectID identifies a waitable object's control block by slot index
// into its class's arena (Kernel.mutexes, Kernel.sems, ...).
type ObjectID int32

const noObject ObjectID = -1

// Priority follows CMSIS-RTOS's convention: higher numeric value runs
// first. PriorityIdle is reserved for the kernel's idle thread.
type Priority int8

const (
	PriorityIdle        Priority = 1
	PriorityLow         Priority = 8
	PriorityBelowNormal Priority = 16
	PriorityNormal      Priority = 24
	PriorityAboveNormal Priority = 32
	PriorityHigh        Priority = 40
	PriorityRealtime    Priority = 48
	PriorityISR         Priority = 56
)

// ThreadState is the state machine from spec.md §3:
//
//	Inactive → Ready ↔ Running
//	              ↓
//	           Blocked (Delay | Join | ThreadFlags | EventFlags |
//	                    Mutex | Semaphore | MemoryPool |
//	                    MsgGet | MsgPut)  → Ready
//	Running → Terminated → (freed or joined-then-freed)
type ThreadState int8

const (
	ThreadInactive ThreadState = iota
	ThreadReady
	ThreadRunning
	ThreadBlockedDelay
	ThreadBlockedJoin
	ThreadBlockedThreadFlags
	ThreadBlockedEventFlags
	ThreadBlockedMutex
	ThreadBlockedSemaphore
	ThreadBlockedMemoryPool
	ThreadBlockedMsgGet
	ThreadBlockedMsgPut
	ThreadBlockedSuspend
	ThreadTerminated
)

func (s ThreadState) blocked() bool {
	return s >= ThreadBlockedDelay && s <= ThreadBlockedSuspend
}

// ThreadAttr configures a new thread at creation time.
type ThreadAttr struct {
	Name     string
	Priority Priority
	Detached bool
}

// waitResult is the value a blocked thread is woken with. It distinguishes
// "woken by the resource" (waitValPresent=true, Value holds the payload)
// from "woken by timeout expiry" (waitValPresent=false): the delay list
// and the object's wake path race to be the one that sets this, and
// whichever gets there first wins per spec.md §4.7.
type waitResult struct {
	present bool
	value   uint64
	status  Status
}

// thread is the control block for one RTOS thread: identity, state,
// priority, suspender handle, the wait-exit slot, the queue-blocked
// payload, the three intrusive link pairs (object-wait list,
// delay/forever list, and ready list), and the head of its owned-mutex
// chain, described in spec.md §3.
//
// Link fields are ThreadID/ObjectID slot indices into kernel arenas, not
// pointers: see DESIGN.md's "intrusive lists by index" note.
type thread struct {
	id       ThreadID
	name     string
	state    ThreadState
	priorityBase Priority
	priority     Priority // effective priority
	detached     bool

	entry func(args any)
	args  any

	suspend *suspendHandle

	// object wait list linkage (generic: mutex/sem/eventflags/mq/mp; a
	// joiner is recorded in joinWaiter instead)
	waitNext, waitPrev ThreadID
	waitObject         ObjectID
	waitKind           objectKind

	// flags-wait parameters, valid while state is ThreadBlockedThreadFlags
	// or ThreadBlockedEventFlags: what Check(mask, opts) this thread is
	// waiting to satisfy.
	waitMask uint32
	waitOpts FlagsOption

	// delay/forever list linkage
	delayNext, delayPrev ThreadID
	delayDelta           int64 // ticks, relative to predecessor
	onForeverList        bool
	onDelayList          bool

	// ready list linkage (priority-bucketed, FIFO within bucket)
	readyNext, readyPrev ThreadID

	// owned-mutex chain
	mutexList ObjectID // head of mutexes this thread owns

	// thread flags
	threadFlags uint32

	// wait-exit protocol
	waitExit waitResult

	// queue send/receive blocked payload
	msgPayload    []byte
	msgPriority   Priority

	joinWaiter ThreadID // thread blocked in ThreadJoin on us, or noThread

	exitRequested bool // not set or read anywhere in this package
}

// The tick period and tick count live on Kernel (cfg.TickPeriod,
// tickCount); see kernel.go.

// monotonicNow returns the current instant according to cfg.ClockSource.
func monotonicNow(cfg *Config) time.Time {
	if cfg.ClockSource == ClockProcessCPU {
		return processCPUTime()
	}
	return time.Now()
}
