package rtxoff

import "sync"

// MaxIRQ bounds the simulated vector table, matching a typical Cortex-M
// NVIC's IRQ number range for this emulator's purposes.
const MaxIRQ = 240

// IRQHandler is a simulated interrupt vector, invoked by the dispatcher
// between thread slices (spec.md §4.4, invariant 8).
type IRQHandler func()

// irqLine is one IRQ's state: enabled, pending, active, priority, vector.
type irqLine struct {
	enabled  bool
	pending  bool
	active   bool
	priority uint8
	handler  IRQHandler
}

// interruptState is the NVIC sub-state from spec.md §4.4: a priority-
// ordered pending set plus enable/pending/active bits per IRQ, under its
// own recursive-by-convention lock (separate from the kernel lock) so
// client threads can raise interrupts without holding it. "Recursive" here
// means call sites within this file never re-enter irq.mu; NVIC_SetPending
// briefly releases it to request a schedule and yield.
type interruptState struct {
	mu sync.Mutex

	lines [MaxIRQ]irqLine

	active     bool // true while some handler is running (processInterrupts)
	primaskSet bool // PRIMASK: global interrupt mask
}

func (s *interruptState) init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		s.lines[i].priority = 0
	}
}

// irqPrimaskLocked reports whether interrupts are globally masked. It and
// interruptState.primask (the dispatcher's check) both take irq.mu for the
// read, so neither may be called with irq.mu already held.
func (k *Kernel) irqPrimaskLocked() bool {
	k.irq.mu.Lock()
	defer k.irq.mu.Unlock()
	return k.irq.primaskSet
}

func (s *interruptState) primask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primaskSet
}

func (s *interruptState) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	for i := range s.lines {
		if s.lines[i].enabled && s.lines[i].pending {
			return true
		}
	}
	return false
}

// highestPendingLocked returns the IRQ number of the highest-priority
// pending, enabled IRQ (lowest priority value wins; ties broken by lowest
// IRQ number), or -1 if none. Caller holds s.mu.
func (s *interruptState) highestPendingLocked() int {
	best := -1
	for i := range s.lines {
		l := &s.lines[i]
		if !l.enabled || !l.pending {
			continue
		}
		if best == -1 || l.priority < s.lines[best].priority {
			best = i
		}
	}
	return best
}

// NVICSetEnable enables or disables delivery of irq.
func (k *Kernel) NVICSetEnable(irq int, enabled bool) Status {
	if irq < 0 || irq >= MaxIRQ {
		return ErrorParameter
	}
	k.irq.mu.Lock()
	k.irq.lines[irq].enabled = enabled
	k.irq.mu.Unlock()
	logDebug("nvic", "irq enable changed", map[string]any{"irq": irq, "enabled": enabled})
	if enabled {
		k.wake()
	}
	return OK
}

// NVICGetEnable reports whether irq is enabled.
func (k *Kernel) NVICGetEnable(irq int) (bool, Status) {
	if irq < 0 || irq >= MaxIRQ {
		return false, ErrorParameter
	}
	k.irq.mu.Lock()
	defer k.irq.mu.Unlock()
	return k.irq.lines[irq].enabled, OK
}

// NVICSetPriority sets irq's priority (lower numeric value preempts
// higher).
func (k *Kernel) NVICSetPriority(irq int, priority uint8) Status {
	if irq < 0 || irq >= MaxIRQ {
		return ErrorParameter
	}
	k.irq.mu.Lock()
	k.irq.lines[irq].priority = priority
	k.irq.mu.Unlock()
	return OK
}

// NVICGetPriority reports irq's priority.
func (k *Kernel) NVICGetPriority(irq int) (uint8, Status) {
	if irq < 0 || irq >= MaxIRQ {
		return 0, ErrorParameter
	}
	k.irq.mu.Lock()
	defer k.irq.mu.Unlock()
	return k.irq.lines[irq].priority, OK
}

// NVICSetVector installs handler as irq's vector. Handlers run on the
// dispatcher's own goroutine, never concurrently with user-thread RTOS
// code (spec.md invariant 8), and may hold a full host closure rather than
// a 32-bit function pointer — there is no on-target ABI to preserve.
func (k *Kernel) NVICSetVector(irq int, handler IRQHandler) Status {
	if irq < 0 || irq >= MaxIRQ {
		return ErrorParameter
	}
	k.irq.mu.Lock()
	k.irq.lines[irq].handler = handler
	k.irq.mu.Unlock()
	return OK
}

// NVICGetVector returns irq's currently installed handler, or nil.
func (k *Kernel) NVICGetVector(irq int) (IRQHandler, Status) {
	if irq < 0 || irq >= MaxIRQ {
		return nil, ErrorParameter
	}
	k.irq.mu.Lock()
	defer k.irq.mu.Unlock()
	return k.irq.lines[irq].handler, OK
}

// NVICSetPendingIRQ marks irq pending. If no handler is currently running,
// the calling client thread releases the kernel lock, requests a
// schedule, and yields so the dispatcher gets a chance to service it
// promptly (spec.md §4.4); it keeps checking until the IRQ is delivered,
// disabled, or interrupts are globally masked.
func (k *Kernel) NVICSetPendingIRQ(irq int) Status {
	if irq < 0 || irq >= MaxIRQ {
		return ErrorParameter
	}
	k.irq.mu.Lock()
	if !k.irq.lines[irq].enabled {
		k.irq.mu.Unlock()
		return ErrorParameter
	}
	k.irq.lines[irq].pending = true
	wasActive := k.irq.active
	k.irq.mu.Unlock()
	logDebug("nvic", "irq pending set", map[string]any{"irq": irq})

	if wasActive {
		return OK
	}

	for {
		k.mu.Lock()
		k.wake()
		k.mu.Unlock()

		k.irq.mu.Lock()
		l := k.irq.lines[irq]
		if !l.enabled || !l.pending || k.irq.primaskSet {
			k.irq.mu.Unlock()
			return OK
		}
		k.irq.mu.Unlock()
		// brief yield before rechecking; the dispatcher runs on its own
		// goroutine and will clear pending once it services the IRQ.
		yieldToScheduler()
	}
}

// NVICGetPendingIRQ reports whether irq is pending.
func (k *Kernel) NVICGetPendingIRQ(irq int) (bool, Status) {
	if irq < 0 || irq >= MaxIRQ {
		return false, ErrorParameter
	}
	k.irq.mu.Lock()
	defer k.irq.mu.Unlock()
	return k.irq.lines[irq].pending, OK
}

// NVICClearPendingIRQ clears irq's pending flag without invoking its
// handler.
func (k *Kernel) NVICClearPendingIRQ(irq int) Status {
	if irq < 0 || irq >= MaxIRQ {
		return ErrorParameter
	}
	k.irq.mu.Lock()
	k.irq.lines[irq].pending = false
	k.irq.mu.Unlock()
	return OK
}

// NVICGetActive reports whether irq's handler is currently executing.
func (k *Kernel) NVICGetActive(irq int) (bool, Status) {
	if irq < 0 || irq >= MaxIRQ {
		return false, ErrorParameter
	}
	k.irq.mu.Lock()
	defer k.irq.mu.Unlock()
	return k.irq.lines[irq].active, OK
}

// NVICSetPrimask globally masks (true) or unmasks (false) interrupt
// delivery.
func (k *Kernel) NVICSetPrimask(masked bool) {
	k.irq.mu.Lock()
	k.irq.primaskSet = masked
	k.irq.mu.Unlock()
	if !masked {
		k.wake()
	}
}

// NVICGetPrimask reports the global interrupt mask.
func (k *Kernel) NVICGetPrimask() bool {
	return k.irq.primask()
}

// NVICEncodePriority packs a preempt-priority and sub-priority pair into a
// single priority value, following the ARM Cortex-M NVIC priority-grouping
// convention: group selects how many of the low bits are sub-priority vs
// preempt-priority (original_source/rtxoff_nvic.cpp).
func NVICEncodePriority(group int, preemptPriority, subPriority uint8) uint8 {
	subBits, preemptBits := priorityGroupSplit(group)
	preemptPriority &= (1 << preemptBits) - 1
	subPriority &= (1 << subBits) - 1
	return (preemptPriority << subBits) | subPriority
}

// NVICDecodePriority splits a packed priority value back into its
// preempt-priority and sub-priority components for the given group.
func NVICDecodePriority(priority uint8, group int) (preemptPriority, subPriority uint8) {
	subBits, preemptBits := priorityGroupSplit(group)
	subPriority = priority & ((1 << subBits) - 1)
	preemptPriority = (priority >> subBits) & ((1 << preemptBits) - 1)
	return
}

// priorityGroupSplit returns (subPriorityBits, preemptPriorityBits) for
// group in [0,7], the standard Cortex-M NVIC_PriorityGroup_x split over an
// 8-bit priority field (group 0: 7 preempt bits/1 sub bit ... group 7: 0
// preempt bits/8 sub bits, saturating at the field width).
func priorityGroupSplit(group int) (subBits, preemptBits int) {
	if group < 0 {
		group = 0
	}
	if group > 7 {
		group = 7
	}
	preemptBits = 7 - group
	subBits = 8 - preemptBits
	return
}

// processInterrupts is invoked by the dispatcher (never by a client
// thread) once it finds pending IRQs. It sets irq.active, then repeatedly
// takes the highest-priority pending IRQ, marks it active, invokes its
// vector, and clears active/pending — new IRQs raised while a handler
// runs are picked up by the same loop. It stops once the pending set is
// empty or interrupts become globally masked. Called with the kernel lock
// held; that lock is released across each vector call, so a handler may
// use the ISR-variant APIs (which take it). The IRQ lock is taken only for
// the bookkeeping around each vector call, never across the call itself,
// so a handler is free to call back into NVIC_SetPendingIRQ. Returns the serviced IRQ numbers, in service
// order, so the caller can log them once the kernel lock is released
// (spec.md §4.9) instead of from within this lock-held path.
func (k *Kernel) processInterrupts() []int {
	k.irq.mu.Lock()
	k.irq.active = true
	k.irq.mu.Unlock()

	var served []int
	for {
		k.irq.mu.Lock()
		if k.irq.primaskSet {
			k.irq.mu.Unlock()
			break
		}
		n := k.irq.highestPendingLocked()
		if n < 0 {
			k.irq.mu.Unlock()
			break
		}
		k.irq.lines[n].active = true
		handler := k.irq.lines[n].handler
		k.irq.mu.Unlock()

		if handler != nil {
			k.mu.Unlock()
			handler()
			k.mu.Lock()
		}

		k.irq.mu.Lock()
		k.irq.lines[n].active = false
		k.irq.lines[n].pending = false
		k.irq.mu.Unlock()

		served = append(served, n)
	}

	k.irq.mu.Lock()
	k.irq.active = false
	k.irq.mu.Unlock()

	return served
}
