package rtxoff

import (
	"sync"
	"time"
)

// KernelState is the top-level kernel state machine from spec.md §3's
// kernel singleton description (Inactive/Ready/Running/Locked/Suspended).
type KernelState int8

const (
	KernelInactive KernelState = iota
	KernelReady
	KernelRunning
	KernelLocked
	KernelSuspended
)

func (s KernelState) String() string {
	switch s {
	case KernelInactive:
		return "Inactive"
	case KernelReady:
		return "Ready"
	case KernelRunning:
		return "Running"
	case KernelLocked:
		return "Locked"
	case KernelSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// objectKind tags what a thread is blocked on (or what an ISR post-process
// entry refers to), so generic fixup code (delay-timeout, ISR drain) can
// dispatch to the right per-kind handler without a type switch on pointers.
type objectKind int8

const (
	objectKindNone objectKind = iota
	objectKindMutex
	objectKindSemaphore
	objectKindEventFlags
	objectKindMemoryPool
	objectKindMsgGet
	objectKindMsgPut
	objectKindJoin
	objectKindThreadFlags
)

// Ticks is a duration expressed in kernel ticks, the unit every timeout
// parameter in this package uses (spec.md §5).
type Ticks uint32

// Forever is the sentinel meaning "no timeout": the caller blocks until the
// resource becomes available or the object is deleted.
const Forever Ticks = 1<<32 - 1

// runBook tracks the dispatcher's current/next thread and the round-robin
// bookkeeping described in spec.md §4.2.
type runBook struct {
	curr ThreadID
	next ThreadID

	rrIncumbent ThreadID
	rrRemaining int32 // signed, zero-saturating per spec.md §9 open question
}

// Kernel is the process-wide RTOS singleton: the kernel lock, the
// dispatcher's run book, every entity arena, and the ready/delay lists.
// Exactly one Kernel is normally constructed per process (spec.md §9,
// "global singleton required"), but nothing here prevents more than one
// for testing in isolation.
type Kernel struct {
	mu sync.Mutex

	cfg   Config
	state KernelState

	wakeCh chan struct{}

	threads arena[thread]
	mutexes arena[mutexCB]
	sems    arena[semaphoreCB]
	events  arena[eventFlagsCB]
	pools   arena[memoryPoolCB]
	queues  arena[messageQueueCB]
	timers  arena[timerCB]

	readyHead   ThreadID
	delayHead   ThreadID
	foreverHead ThreadID

	idleThread  ThreadID
	timerThread ThreadID
	timerQueue  *MessageQueue
	timerActive timerHeap

	run runBook

	tickCount    uint64
	lastTickTime time.Time

	irq interruptState

	isrQueue []isrWorkItem

	inDispatcher bool

	dispatcherStarted bool

	registry threadRegistry
}

type isrWorkItem struct {
	kind objectKind
	obj  ObjectID
}

// NewKernel constructs a Kernel with the given options applied over the
// defaults. It does not start the dispatcher; call Initialize then
// KernelStart.
func NewKernel(opts ...KernelOption) *Kernel {
	k := &Kernel{
		cfg:         resolveConfig(opts),
		readyHead:   noThread,
		delayHead:   noThread,
		foreverHead: noThread,
		idleThread:  noThread,
		timerThread: noThread,
		wakeCh:      make(chan struct{}, 1),
	}
	k.run.curr = noThread
	k.run.next = noThread
	k.run.rrIncumbent = noThread
	k.irq.init()
	return k
}

// thread returns the control block for id. Callers must hold k.mu.
func (k *Kernel) thread(id ThreadID) *thread {
	return k.threads.get(int32(id))
}

// Initialize transitions the kernel from Inactive to Ready, creates the
// idle thread and the timer-service thread, and prepares the dispatcher.
// It must be called exactly once before KernelStart.
func (k *Kernel) Initialize() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state != KernelInactive {
		return Error
	}

	idleID := k.newThreadLocked(func(any) {
		for {
			k.mu.Lock()
			k.idleHookTick()
			k.mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}, nil, ThreadAttr{Name: "idle", Priority: PriorityIdle})
	k.idleThread = idleID
	k.run.curr = idleID
	k.thread(idleID).state = ThreadRunning
	k.readyListRemove(idleID) // running thread is not also on the ready list

	k.setupTimerServiceLocked()

	k.lastTickTime = monotonicNow(&k.cfg)
	k.state = KernelReady
	return OK
}

// idleHookTick invokes the configured idle hook, if any, outside the
// dispatcher's hot path. Called with the lock held; the hook itself should
// be quick (it runs once per idle-thread wake, not gated by dispatcher
// cadence).
func (k *Kernel) idleHookTick() {
	hook := k.cfg.IdleHook
	if hook == nil {
		return
	}
	k.mu.Unlock()
	hook()
	k.mu.Lock()
}

// KernelStart transitions the kernel to Running and launches the
// dispatcher loop on a dedicated goroutine. It returns once the dispatcher
// goroutine has been launched; the dispatcher itself runs forever (spec.md
// §4.2: "the loop never exits").
func (k *Kernel) KernelStart() Status {
	k.mu.Lock()
	if k.state != KernelReady {
		k.mu.Unlock()
		return Error
	}
	k.state = KernelRunning
	k.dispatcherStarted = true
	k.mu.Unlock()

	go k.dispatcherLoop()
	return OK
}

// KernelGetState reports the kernel's current top-level state.
func (k *Kernel) KernelGetState() KernelState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// KernelGetTickCount returns the number of ticks elapsed since the kernel
// started.
func (k *Kernel) KernelGetTickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tickCount
}

// KernelGetTickFreq returns the tick frequency in Hz, derived from the
// configured tick period.
func (k *Kernel) KernelGetTickFreq() uint32 {
	d := k.cfg.TickPeriod
	if d <= 0 {
		return 0
	}
	return uint32(time.Second / d)
}

// KernelGetSysTimerCount returns a free-running counter of the same
// monotonic source driving ticks, at whatever finer resolution the host
// clock offers (here: nanoseconds since the kernel's epoch).
func (k *Kernel) KernelGetSysTimerCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return uint64(monotonicNow(&k.cfg).Sub(k.lastTickTime).Nanoseconds()) + k.tickCount*uint64(k.cfg.TickPeriod)
}

// KernelGetSysTimerFreq returns the frequency, in Hz, of the counter
// KernelGetSysTimerCount reports (always nanosecond resolution here).
func (k *Kernel) KernelGetSysTimerFreq() uint32 {
	return uint32(time.Second)
}

// KernelInfo mirrors osVersion/osKernelGetInfo's identification fields.
type KernelInfo struct {
	Version uint32
	ID      string
}

// KernelGetInfo reports the emulator's identification, analogous to
// CMSIS-RTOS's osKernelGetInfo.
func (k *Kernel) KernelGetInfo() (KernelInfo, Status) {
	return KernelInfo{Version: 20010000, ID: "rtxoff-go"}, OK
}
