// Package rtxoff emulates a CMSIS-RTOS v2 real-time kernel on top of a
// commodity desktop OS, so firmware written against threads, priorities,
// delays, mutexes, semaphores, event flags, message queues, memory pools,
// timers, and a simulated NVIC can run unmodified on a developer
// workstation.
//
// # Architecture
//
// Each RTOS thread maps to one native OS thread, but at most one RTOS
// thread is ever runnable at a time. A dedicated [Kernel] dispatcher loop
// suspends and resumes host threads to enforce single-core semantics: it
// resumes the current thread, waits on a wake channel bounded by the tick
// period, reacquires the kernel lock, services interrupts and the clock,
// and selects the next thread to run.
//
// All mutable kernel state lives behind one lock (Kernel.mu) protecting
// the ready list, delay list, and every primitive's wait list. It is a
// plain sync.Mutex and is not reentrant: code that already holds it must
// not call a public API that takes it again. Interrupt sub-state (the
// NVIC* methods) has its own lock, also a plain sync.Mutex, so client
// threads can raise interrupts without holding the kernel lock.
//
// # Primitives
//
// [Mutex] implements priority inheritance and an optional robust/recursive
// mode. [Semaphore], [EventFlags], [MessageQueue], and [MemoryPool] share a
// common fast-path/slow-path/ISR-path shape built on the kernel's
// object-wait-list and wake protocol. A [Timer] service runs on a
// dedicated high-priority thread, driven by an active-timer heap ticked
// once per kernel tick.
//
// # Platform support
//
// The thread suspender — the primitive that creates a thread in a
// not-yet-running state and later forces any host thread to stop and
// later resume — has two back-ends selected at build time:
//   - Windows: native SuspendThread/ResumeThread via golang.org/x/sys/windows.
//   - Linux/Darwin: a signal-driven per-thread handshake via
//     golang.org/x/sys/unix, gated by a small {Running, Suspended, Killed} FSM.
//
// # Usage
//
//	k := rtxoff.NewKernel(rtxoff.WithTickPeriod(time.Millisecond))
//	if st := k.Initialize(); st != rtxoff.OK {
//	    log.Fatal(st)
//	}
//	_, st := k.ThreadNew(func(args any) {
//	    k.Delay(10)
//	    k.ThreadExit()
//	}, nil, rtxoff.ThreadAttr{Priority: rtxoff.PriorityNormal})
//	if st != rtxoff.OK {
//	    log.Fatal(st)
//	}
//	k.KernelStart()
//
// # Error handling
//
// Every API returns a [Status], a closed result-code taxonomy
// (OK, ErrorTimeout, ErrorResource, ErrorParameter, ErrorISR,
// ErrorNoMemory, Error) that implements the standard [error] interface
// and supports [errors.Is]. The one condition this package treats as
// unrecoverable — the thread suspender failing to resume, suspend or kill
// a host thread — is reported via [KernelPanic] and terminates the process.
package rtxoff
