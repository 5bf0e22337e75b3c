package rtxoff

import (
	"runtime"
	"time"
)

// dispatcherLoop is the single scheduler loop from spec.md §4.2. It is
// deliberately one procedure, not a handful of handler methods: the
// ordering (resume → wait → suspend → interrupts-disabled check → adopt
// run.next → service interrupts → service the clock/round-robin → mark
// Running) is itself the specification (DESIGN NOTES §9) and is far easier
// to audit linearly than scattered across callbacks.
func (k *Kernel) dispatcherLoop() {
	for {
		k.mu.Lock()

		// 1. Resume the current thread.
		if k.run.curr != noThread {
			th := k.thread(k.run.curr)
			if err := k.cfg.Suspender.Resume(th.suspend); err != nil {
				k.mu.Unlock()
				fatal("dispatcher: resume current thread", err)
			}
		}
		k.mu.Unlock()

		// 2. Release the kernel lock and wait, bounded by the tick period.
		remaining := k.cfg.TickPeriod - time.Since(k.lastTickTimeSnapshot())
		if remaining < 0 {
			remaining = 0
		}
		select {
		case <-k.wakeCh:
		case <-time.After(remaining):
		}

		// 3. Reacquire the lock. Suspend the current thread (if it still exists).
		k.mu.Lock()
		prevCurr := k.run.curr
		if k.run.curr != noThread {
			th := k.thread(k.run.curr)
			if th.state != ThreadTerminated && th.state != ThreadInactive {
				if err := k.cfg.Suspender.Suspend(th.suspend); err != nil {
					k.mu.Unlock()
					fatal("dispatcher: suspend current thread", err)
				}
			}
		}

		// 4. If interrupts are disabled, skip scheduling entirely.
		if k.irq.primask() {
			k.mu.Unlock()
			continue
		}

		// 5. Adopt any RTOS-operation-requested next thread.
		k.adoptNextLocked()

		// 6. Service pending interrupts, then the post-ISR queue (which also
		// holds work posted by ISR-variant calls made outside any handler).
		var servedIRQs []int
		if k.irq.hasPending() {
			servedIRQs = k.processInterrupts()
		}
		k.processQueuedISRData()
		k.adoptNextLocked()

		// 7. Service the clock.
		now := monotonicNow(&k.cfg)
		elapsedMs := now.Sub(k.lastTickTime).Milliseconds()
		tickAdvanced := elapsedMs >= 1
		if tickAdvanced {
			k.tickCount += uint64(elapsedMs)
			k.lastTickTime = k.lastTickTime.Add(time.Duration(elapsedMs) * time.Millisecond)
			k.handleTick(elapsedMs)
			k.adoptNextLocked()
		}

		// 8. Mark the (possibly new) current thread Running.
		newCurr := k.run.curr
		if newCurr != noThread {
			k.thread(newCurr).state = ThreadRunning
		}
		k.mu.Unlock()

		// Logging happens only after the lock is released (spec.md §4.9):
		// the kernel lock must never block on I/O.
		if len(servedIRQs) > 0 {
			logDebug("nvic", "interrupts serviced", map[string]any{"irqs": servedIRQs})
		}
		if tickAdvanced {
			logDebug("dispatch", "tick advanced", map[string]any{"elapsed_ms": elapsedMs, "tick_count": k.KernelGetTickCount()})
		}
		if newCurr != prevCurr {
			logDebug("dispatch", "thread switch", map[string]any{"from": int32(prevCurr), "to": int32(newCurr)})
		}
	}
}

func (k *Kernel) lastTickTimeSnapshot() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastTickTime
}

// adoptNextLocked promotes run.next to run.curr if set. Called with the
// lock held.
func (k *Kernel) adoptNextLocked() {
	if k.run.next != noThread {
		k.run.curr = k.run.next
		k.run.next = noThread
	}
}

// handleTick advances the delay list and round-robin bookkeeping by
// elapsedMs ticks (the tick period is conventionally one millisecond, per
// the glossary, but the clock may report a coarser jump if the host was
// descheduled). Called with the lock held, from dispatcherLoop step 7.
func (k *Kernel) handleTick(elapsedMs int64) {
	k.delayListTick(elapsedMs)
	k.timerServiceTick(elapsedMs)
	k.roundRobinTick()
}

// roundRobinTick implements spec.md §4.2's round-robin rule: if the
// quantum is configured and run.next (or, absent one, run.curr) has been
// the round-robin incumbent for quantum consecutive ticks, and another
// ready thread shares its priority, swap them.
func (k *Kernel) roundRobinTick() {
	if k.cfg.RoundRobinQuantum == 0 {
		return
	}
	curr := k.run.curr
	if k.run.next != noThread {
		curr = k.run.next
	}
	if curr == noThread || curr == k.idleThread {
		return
	}
	if k.run.rrIncumbent != curr {
		k.run.rrIncumbent = curr
		k.run.rrRemaining = int32(k.cfg.RoundRobinQuantum)
		return
	}
	k.run.rrRemaining--
	if k.run.rrRemaining > 0 {
		return
	}
	k.run.rrRemaining = 0 // saturate at zero, never go negative (spec.md §9)

	currPrio := k.thread(curr).priority
	// find another ready thread of equal priority
	cand := k.readyHead
	for cand != noThread {
		if k.thread(cand).priority == currPrio {
			break
		}
		if k.thread(cand).priority < currPrio {
			cand = noThread
			break
		}
		cand = k.thread(cand).readyNext
	}
	if cand == noThread {
		k.run.rrRemaining = int32(k.cfg.RoundRobinQuantum)
		return
	}
	k.readyListRemove(cand)
	k.thread(cand).state = ThreadReady
	if k.run.next != noThread {
		k.readyListPut(k.run.next)
		k.thread(k.run.next).state = ThreadReady
		k.run.next = cand
	} else {
		k.readyListPut(curr)
		k.thread(curr).state = ThreadReady
		k.run.next = cand
	}
	k.run.rrIncumbent = cand
	k.run.rrRemaining = int32(k.cfg.RoundRobinQuantum)
}

// yieldToScheduler gives the host scheduler a chance to run other
// goroutines (the dispatcher, in particular) without actually blocking.
func yieldToScheduler() {
	runtime.Gosched()
}

// wake signals the dispatcher to re-run its loop immediately instead of
// waiting out the remainder of the tick period. Safe to call with or
// without the lock held; send is non-blocking (buffered 1, coalescing).
func (k *Kernel) wake() {
	select {
	case k.wakeCh <- struct{}{}:
	default:
	}
}

// requestSchedule is called by user-thread code that has just blocked or
// exited and needs the dispatcher to pick a replacement. If nothing else
// has already claimed run.next, it pops the highest-priority ready thread
// (FIFO within a priority bucket) into run.next. Must be called with the
// lock held.
func (k *Kernel) requestSchedule() {
	if k.run.next == noThread {
		if k.readyHead != noThread {
			id := k.readyHead
			k.readyListRemove(id)
			k.run.next = id
		} else {
			k.run.next = k.idleThread
		}
	}
	k.wake()
}

// dispatch implements spec.md §4.2's preemptive-dispatch rule.
//
//   - candidate == noThread ("nil"): if the ready list's head has strictly
//     greater priority than run.curr, it preempts.
//   - candidate != noThread: if it has strictly greater priority than
//     run.curr, it preempts; otherwise it is inserted into the ready list
//     at the back of its priority bucket.
//
// Preemption moves the outgoing run.curr to the front of its own priority
// bucket in the ready list (it must run again before any equal-priority
// thread that was already waiting) and marks it Ready.
func (k *Kernel) dispatch(candidate ThreadID) {
	if candidate == noThread {
		top := k.readyHead
		if top == noThread {
			return
		}
		if k.run.curr == noThread || k.thread(top).priority > k.thread(k.run.curr).priority {
			k.readyListRemove(top)
			k.preemptCurrentLocked()
			k.run.next = top
			k.wake()
		}
		return
	}

	if k.run.curr == noThread || k.thread(candidate).priority > k.thread(k.run.curr).priority {
		k.preemptCurrentLocked()
		k.run.next = candidate
		k.wake()
		return
	}
	k.readyListPut(candidate)
	k.thread(candidate).state = ThreadReady
}

func (k *Kernel) preemptCurrentLocked() {
	curr := k.run.curr
	if curr == noThread {
		return
	}
	if curr == k.idleThread {
		// idle thread is never tracked on the ready list
		return
	}
	k.readyListPutFront(curr)
	k.thread(curr).state = ThreadReady
}

// blockUntilWoken is called by user-thread code, with the lock held, after
// the caller has arranged to no longer be run.curr (enqueued on some wait
// list, and optionally the delay list). It requests a schedule, releases
// the lock, spins yielding until its own state becomes Running again (the
// dispatcher will have suspended this thread's host handle in the
// meantime via the Suspender), then reacquires the lock.
//
// When k.inDispatcher is set the call is a no-op. dispatcherLoop does not
// set that field; its own timer-service posts go through
// timerEnqueueLocked, which never calls this function.
func (k *Kernel) blockUntilWoken(id ThreadID) {
	if k.inDispatcher {
		return
	}
	k.requestSchedule()
	k.mu.Unlock()
	for {
		k.mu.Lock()
		if k.thread(id).state == ThreadRunning {
			return
		}
		k.mu.Unlock()
		runtime.Gosched()
	}
}
