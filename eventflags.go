package rtxoff

// eventFlagsCB is an event-flags object's control block: the common
// waitable-object header plus its 31-bit bitset (spec.md §3/§4.7).
type eventFlagsCB struct {
	hdr   objectHeader
	flags uint32
}

// EventFlags is a handle to a kernel event-flags object.
type EventFlags struct {
	k  *Kernel
	id ObjectID
}

// EventFlagsNew creates an event-flags object, all bits initially clear.
func (k *Kernel) EventFlagsNew(name string) (*EventFlags, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, e := k.events.alloc()
	*e = eventFlagsCB{hdr: objectHeader{valid: true, name: name, waitHead: noThread}}
	return &EventFlags{k: k, id: ObjectID(idx)}, OK
}

func (e *EventFlags) cb() *eventFlagsCB {
	return e.k.events.get(int32(e.id))
}

// GetName returns the event-flags object's display name.
func (e *EventFlags) GetName() string {
	e.k.mu.Lock()
	defer e.k.mu.Unlock()
	return e.cb().hdr.name
}

// Delete destroys the event-flags object, waking every waiter with
// ErrorResource.
func (e *EventFlags) Delete() Status {
	k := e.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := e.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	for cb.hdr.waitHead != noThread {
		w := k.threadListGet(&cb.hdr.waitHead)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, ErrorResource, 0)
	}
	k.events.release(int32(e.id))
	k.dispatch(noThread)
	return OK
}

// Set ORs flags into the bitset and wakes every waiter whose condition is
// now satisfied, highest priority first. Returns the bitset as it stood
// after the OR (before any waiter's clear).
func (e *EventFlags) Set(flags uint32) (uint32, Status) {
	if flags&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k := e.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := e.cb()
	if !cb.hdr.valid {
		return 0, ErrorParameter
	}
	cb.flags |= flags
	result := cb.flags
	k.eventFlagsWakeLocked(e.id)
	return result, OK
}

// SetISR is the ISR-context equivalent of Set: the OR happens immediately,
// but any resulting wakes are deferred to the post-ISR queue.
func (e *EventFlags) SetISR(flags uint32) (uint32, Status) {
	if flags&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k := e.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := e.cb()
	if !cb.hdr.valid {
		return 0, ErrorParameter
	}
	cb.flags |= flags
	result := cb.flags
	k.enqueueISRWork(objectKindEventFlags, e.id)
	return result, OK
}

// eventFlagsPostProcess performs the deferred wake for a SetISR call.
func (k *Kernel) eventFlagsPostProcess(id ObjectID) {
	if !k.events.get(int32(id)).hdr.valid {
		return
	}
	k.eventFlagsWakeLocked(id)
}

// eventFlagsWakeLocked scans the wait list front-to-back (priority order)
// waking every waiter whose mask is now satisfied. Each waiter's snapshot
// is computed, and its bits cleared unless FlagsNoClear, before moving to
// the next — so an early high-priority waiter can legitimately consume
// bits a later lower-priority waiter also wanted (spec.md §4.7).
func (k *Kernel) eventFlagsWakeLocked(id ObjectID) {
	cb := k.events.get(int32(id))
	woken := false
	for cur := cb.hdr.waitHead; cur != noThread; {
		t := k.thread(cur)
		next := t.waitNext
		if snapshot, ok := checkFlags(&cb.flags, t.waitMask, t.waitOpts); ok {
			k.threadListUnlink(&cb.hdr.waitHead, cur)
			t.waitKind = objectKindNone
			t.waitObject = noObject
			k.threadWaitExit(cur, OK, uint64(snapshot))
			woken = true
		}
		cur = next
	}
	if woken {
		k.dispatch(noThread)
	}
}

// Clear clears flags from the bitset and returns the bitset as it stood
// before clearing.
func (e *EventFlags) Clear(flags uint32) (uint32, Status) {
	if flags&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k := e.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := e.cb()
	if !cb.hdr.valid {
		return 0, ErrorParameter
	}
	prev := cb.flags
	cb.flags &^= flags
	return prev, OK
}

// Get returns the current bitset without modifying it.
func (e *EventFlags) Get() (uint32, Status) {
	e.k.mu.Lock()
	defer e.k.mu.Unlock()
	cb := e.cb()
	if !cb.hdr.valid {
		return 0, ErrorParameter
	}
	return cb.flags, OK
}

// Wait blocks the calling thread until the bitset satisfies mask under
// opts, or timeout expires. Returns the snapshot of bits that satisfied
// the wait.
func (e *EventFlags) Wait(mask uint32, opts FlagsOption, timeout Ticks) (uint32, Status) {
	if mask&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k := e.k
	k.mu.Lock()
	cb := e.cb()
	if !cb.hdr.valid {
		k.mu.Unlock()
		return 0, ErrorParameter
	}
	if snapshot, ok := checkFlags(&cb.flags, mask, opts); ok {
		k.mu.Unlock()
		return snapshot, OK
	}
	if timeout == 0 {
		k.mu.Unlock()
		return 0, ErrorResource
	}
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return 0, Error
	}
	t := k.thread(id)
	t.waitKind = objectKindEventFlags
	t.waitObject = e.id
	t.waitMask = mask
	t.waitOpts = opts
	k.threadListPut(&cb.hdr.waitHead, id)
	k.threadBlock(id, ThreadBlockedEventFlags)
	if timeout == Forever {
		k.delayListInsert(id, 0, true)
	} else {
		k.delayListInsert(id, int64(timeout), false)
	}
	k.blockUntilWoken(id)

	res := t.waitExit
	k.mu.Unlock()
	if !res.present {
		return 0, ErrorTimeout
	}
	return uint32(res.value), res.status
}
