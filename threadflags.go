package rtxoff

// Thread flags are a per-thread 31-bit bitset (spec.md §4.8): Set is legal
// from both ISR (deferred through the post-ISR queue) and thread context
// (synchronous wake check); Wait uses the same Check semantics as event
// flags (checkFlags in object.go), applied against the thread's own
// bitset rather than an external object's.

// ThreadFlagsSet ORs flags into id's bitset and, if id is currently
// blocked in ThreadFlagsWait with a now-satisfied mask, wakes it. Legal
// from thread context; see ThreadFlagsSetISR for the ISR-safe variant.
func (k *Kernel) ThreadFlagsSet(id ThreadID, flags uint32) (uint32, Status) {
	if flags&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return 0, ErrorParameter
	}
	t := k.thread(id)
	t.threadFlags |= flags
	k.tryWakeThreadFlags(id)
	return t.threadFlags, OK
}

// ThreadFlagsSetISR is the ISR-context equivalent of ThreadFlagsSet: the
// OR happens immediately, but any resulting wake is deferred to the
// post-ISR queue.
func (k *Kernel) ThreadFlagsSetISR(id ThreadID, flags uint32) (uint32, Status) {
	if flags&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return 0, ErrorParameter
	}
	t := k.thread(id)
	t.threadFlags |= flags
	k.enqueueISRWork(objectKindThreadFlags, ObjectID(id))
	return t.threadFlags, OK
}

// threadFlagsPostProcess performs the deferred wake for a ThreadFlagsSetISR
// call, outside ISR mode so it may touch the ready list.
func (k *Kernel) threadFlagsPostProcess(id ThreadID) {
	if !k.validThread(id) {
		return
	}
	k.tryWakeThreadFlags(id)
}

// tryWakeThreadFlags wakes id if it is blocked in ThreadFlagsWait and its
// wait condition is now satisfied. Called with the lock held.
func (k *Kernel) tryWakeThreadFlags(id ThreadID) {
	t := k.thread(id)
	if t.state != ThreadBlockedThreadFlags {
		return
	}
	snapshot, ok := checkFlags(&t.threadFlags, t.waitMask, t.waitOpts)
	if !ok {
		return
	}
	k.threadWaitExit(id, OK, uint64(snapshot))
	k.dispatch(noThread)
}

// ThreadFlagsClear clears flags from id's bitset and returns the bitset as
// it was before clearing.
func (k *Kernel) ThreadFlagsClear(id ThreadID, flags uint32) (uint32, Status) {
	if flags&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return 0, ErrorParameter
	}
	t := k.thread(id)
	prev := t.threadFlags
	t.threadFlags &^= flags
	return prev, OK
}

// ThreadFlagsGet returns id's current bitset without modifying it.
func (k *Kernel) ThreadFlagsGet(id ThreadID) (uint32, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return 0, ErrorParameter
	}
	return k.thread(id).threadFlags, OK
}

// ThreadFlagsWait blocks the calling thread until its own bitset satisfies
// mask under opts, or the timeout expires. Returns the snapshot of bits
// that satisfied the wait.
func (k *Kernel) ThreadFlagsWait(mask uint32, opts FlagsOption, timeout Ticks) (uint32, Status) {
	if mask&^flagsLegalMask != 0 {
		return 0, ErrorParameter
	}
	k.mu.Lock()
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return 0, Error
	}
	t := k.thread(id)
	if snapshot, satisfied := checkFlags(&t.threadFlags, mask, opts); satisfied {
		k.mu.Unlock()
		return snapshot, OK
	}
	if timeout == 0 {
		k.mu.Unlock()
		return 0, ErrorResource
	}

	t.waitMask = mask
	t.waitOpts = opts
	k.threadBlock(id, ThreadBlockedThreadFlags)
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
