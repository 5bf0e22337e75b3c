package rtxoff

// newThreadLocked allocates and fully initializes a thread control block,
// spawns its host thread (suspended), and returns its ThreadID, or
// noThread if the suspender failed to spawn. Must be called with the
// kernel lock held.
func (k *Kernel) newThreadLocked(entry func(args any), args any, attr ThreadAttr) ThreadID {
	idx, t := k.threads.alloc()
	tid := ThreadID(idx)

	*t = thread{
		id:           tid,
		name:         attr.Name,
		priorityBase: attr.Priority,
		priority:     attr.Priority,
		detached:     attr.Detached,
		entry:        entry,
		args:         args,
		state:        ThreadInactive,
		waitNext:     noThread,
		waitPrev:     noThread,
		waitObject:   noObject,
		delayNext:    noThread,
		delayPrev:    noThread,
		readyNext:    noThread,
		readyPrev:    noThread,
		mutexList:    noObject,
		joinWaiter:   noThread,
	}

	h, err := k.cfg.Suspender.Spawn(func() { k.runThreadEntry(tid) })
	if err != nil {
		k.threads.release(idx)
		return noThread
	}
	t.suspend = h

	k.threadReadyPut(tid)
	return tid
}

// runThreadEntry is the body every RTOS thread's host goroutine executes,
// once first resumed by the dispatcher. It registers the goroutine so the
// rest of this package's "calling thread" API (Delay, ThreadExit, ...) can
// resolve who is calling, runs the user entry function, and — if the
// entry function returns instead of calling ThreadExit itself — performs
// an implicit exit rather than leaving the thread's state undefined
// (spec.md §6 flags this as undefined for native back-ends that lack a
// stack-unwind hook; this Go port can safely supply one).
func (k *Kernel) runThreadEntry(id ThreadID) {
	gid := getGoroutineID()
	k.registry.register(gid, id)
	defer k.registry.unregister(gid)

	k.mu.Lock()
	entry := k.thread(id).entry
	args := k.thread(id).args
	k.mu.Unlock()

	entry(args)
	k.ThreadExit()
}

// ThreadNew creates a new RTOS thread in Ready state and returns its id.
func (k *Kernel) ThreadNew(entry func(args any), args any, attr ThreadAttr) (ThreadID, Status) {
	if entry == nil {
		return noThread, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == KernelInactive {
		return noThread, Error
	}
	id := k.newThreadLocked(entry, args, attr)
	if id == noThread {
		return noThread, ErrorNoMemory
	}
	k.dispatch(noThread)
	return id, OK
}

// ThreadGetId returns the calling thread's own id.
func (k *Kernel) ThreadGetId() (ThreadID, Status) {
	id, ok := k.currentThreadID()
	if !ok {
		return noThread, Error
	}
	return id, OK
}

// ThreadGetName returns id's display name.
func (k *Kernel) ThreadGetName(id ThreadID) (string, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return "", ErrorParameter
	}
	return k.thread(id).name, OK
}

// ThreadGetState reports id's current state.
func (k *Kernel) ThreadGetState(id ThreadID) (ThreadState, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return ThreadInactive, ErrorParameter
	}
	return k.thread(id).state, OK
}

// ThreadSetPriority sets id's base priority. If id currently holds no
// priority-inheritance boost, its effective priority is updated too, and
// it is repositioned in whichever list currently holds it.
func (k *Kernel) ThreadSetPriority(id ThreadID, prio Priority) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return ErrorParameter
	}
	t := k.thread(id)
	boosted := t.priority > t.priorityBase
	t.priorityBase = prio
	if !boosted {
		t.priority = prio
	}
	switch t.state {
	case ThreadReady:
		k.readyListRemove(id)
		k.readyListPut(id)
	default:
		if t.waitObject != noObject {
			k.threadListSort(k.waitHeadFor(t.waitKind, t.waitObject), id)
		}
	}
	k.dispatch(noThread)
	return OK
}

// ThreadGetPriority returns id's current effective priority.
func (k *Kernel) ThreadGetPriority(id ThreadID) (Priority, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return 0, ErrorParameter
	}
	return k.thread(id).priority, OK
}

// waitHeadFor returns a pointer to the wait-list head field for the given
// object kind/id, so generic code (ThreadSetPriority's re-sort, mutex
// inheritance) can operate without a large per-kind switch at every call
// site.
func (k *Kernel) waitHeadFor(kind objectKind, obj ObjectID) *ThreadID {
	switch kind {
	case objectKindMutex:
		return &k.mutexes.get(int32(obj)).hdr.waitHead
	case objectKindSemaphore:
		return &k.sems.get(int32(obj)).hdr.waitHead
	case objectKindEventFlags:
		return &k.events.get(int32(obj)).hdr.waitHead
	case objectKindMemoryPool:
		return &k.pools.get(int32(obj)).hdr.waitHead
	case objectKindMsgGet:
		return &k.queues.get(int32(obj)).waitGet
	case objectKindMsgPut:
		return &k.queues.get(int32(obj)).waitPut
	default:
		var none ThreadID = noThread
		return &none
	}
}

// ThreadYield gives up the CPU to another ready thread of the same
// priority, if any, without blocking.
func (k *Kernel) ThreadYield() Status {
	k.mu.Lock()
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return Error
	}
	t := k.thread(id)
	cand := k.readyHead
	if cand == noThread || k.thread(cand).priority != t.priority {
		k.mu.Unlock()
		return OK
	}
	k.readyListRemove(cand)
	k.readyListPut(id)
	t.state = ThreadReady
	k.run.next = cand
	k.blockUntilWoken(id)
	k.mu.Unlock()
	return OK
}

// ThreadSuspend forcibly blocks id until ThreadResume is called, with no
// timeout.
func (k *Kernel) ThreadSuspend(id ThreadID) Status {
	k.mu.Lock()
	if !k.validThread(id) {
		k.mu.Unlock()
		return ErrorParameter
	}
	t := k.thread(id)
	if t.state != ThreadReady && t.state != ThreadRunning {
		k.mu.Unlock()
		return ErrorResource
	}
	k.threadBlock(id, ThreadBlockedSuspend)
	self, isSelf := k.currentThreadID()
	if isSelf && self == id {
		k.blockUntilWoken(id)
		k.mu.Unlock()
		return OK
	}
	k.mu.Unlock()
	return OK
}

// ThreadResume makes a suspended thread Ready again.
func (k *Kernel) ThreadResume(id ThreadID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return ErrorParameter
	}
	t := k.thread(id)
	if t.state != ThreadBlockedSuspend {
		return ErrorResource
	}
	k.threadReadyPut(id)
	k.dispatch(noThread)
	return OK
}

// ThreadDetach marks a joinable thread as detached: it will free
// immediately on exit rather than lingering in Terminated for a joiner.
func (k *Kernel) ThreadDetach(id ThreadID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return ErrorParameter
	}
	k.thread(id).detached = true
	return OK
}

// ThreadJoin blocks the calling thread until id terminates (or returns
// immediately if it already has), then frees id's control block.
func (k *Kernel) ThreadJoin(id ThreadID) Status {
	k.mu.Lock()
	if !k.validThread(id) {
		k.mu.Unlock()
		return ErrorParameter
	}
	target := k.thread(id)
	if target.detached {
		k.mu.Unlock()
		return ErrorParameter
	}
	if target.state == ThreadTerminated {
		k.freeThreadLocked(id)
		k.mu.Unlock()
		return OK
	}
	self, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return Error
	}
	target.joinWaiter = self
	k.threadBlock(self, ThreadBlockedJoin)
	k.blockUntilWoken(self)
	// terminateLocked woke us and freed id only if it was detached by
	// then; a freed slot reads as ThreadInactive, so free it here only if
	// it is still parked in Terminated.
	if k.thread(id).state == ThreadTerminated {
		k.freeThreadLocked(id)
	}
	k.mu.Unlock()
	return OK
}

// ThreadExit is the self-termination path every thread entry function
// must use instead of returning (spec.md §6); runThreadEntry also calls
// this implicitly if the entry function does return.
func (k *Kernel) ThreadExit() {
	k.mu.Lock()
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return
	}
	k.terminateLocked(id, true)
	k.mu.Unlock()
}

// ThreadTerminate forcibly terminates another thread.
func (k *Kernel) ThreadTerminate(id ThreadID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.validThread(id) {
		return ErrorParameter
	}
	if id == k.idleThread || id == k.timerThread {
		return ErrorParameter
	}
	self, _ := k.currentThreadID()
	k.terminateLocked(id, self == id)
	return OK
}

// terminateLocked implements the shared body of ThreadExit/ThreadTerminate
// (spec.md §5 "Cancellation"): remove the thread from any list it is in,
// force-release its robust mutexes, wake its joiner if any, kill its host
// thread, and either free its control block immediately (detached) or
// park it in Terminated for a future ThreadJoin. Terminating the current
// thread additionally yields to the next Ready thread by requesting a
// schedule and clearing run.curr.
func (k *Kernel) terminateLocked(id ThreadID, isSelf bool) {
	t := k.thread(id)
	if t.state == ThreadTerminated {
		return
	}

	if t.state == ThreadReady {
		k.readyListRemove(id)
	}
	if t.waitObject != noObject {
		k.threadListUnlink(k.waitHeadFor(t.waitKind, t.waitObject), id)
		if t.waitKind == objectKindMutex {
			k.recomputeOwnerPriority(t.waitObject)
		}
	}
	if t.onDelayList || t.onForeverList {
		k.delayListRemove(id)
	}

	k.releaseOwnedMutexesLocked(id)

	if t.joinWaiter != noThread {
		waiter := t.joinWaiter
		t.joinWaiter = noThread
		k.threadWaitExit(waiter, OK, 0)
	}

	t.state = ThreadTerminated

	if hook := k.cfg.ThreadExitHook; hook != nil {
		k.mu.Unlock()
		hook(id)
		k.mu.Lock()
	}

	if err := k.cfg.Suspender.Kill(t.suspend); err != nil {
		fatal("terminate: kill host thread", err)
	}

	if t.detached {
		k.freeThreadLocked(id)
	}

	if isSelf {
		// Hand off to the dispatcher; this goroutine's remaining work is
		// just to unwind its own call stack back out of entry() — it
		// never touches kernel state again, so letting it keep running
		// natively for those last few return statements is harmless
		// (the real target's osThreadExit never returns control at all,
		// but nothing after the call in well-formed firmware runs
		// either way).
		k.run.curr = noThread
		k.requestSchedule()
	} else {
		k.dispatch(noThread)
	}
}

// freeThreadLocked releases a Terminated thread's control-block slot back
// to the arena. Must only be called once no joiner is pending.
func (k *Kernel) freeThreadLocked(id ThreadID) {
	k.threads.release(int32(id))
}

// validThread reports whether id currently refers to an allocated thread
// control block (not a freed/reused slot would be indistinguishable
// without a generation tag; callers are expected to treat ids as opaque
// and not reuse them past Terminate+Join, exactly as CMSIS-RTOS requires).
func (k *Kernel) validThread(id ThreadID) bool {
	return id >= 0 && int(id) < len(k.threads.items) && k.isLiveSlot(int32(id))
}

// ThreadGetCount returns the number of currently-allocated thread control
// blocks (including the idle and timer-service threads).
func (k *Kernel) ThreadGetCount() uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return uint32(k.threads.len())
}

// ThreadEnumerate returns the ids of all currently-allocated threads.
func (k *Kernel) ThreadEnumerate() []ThreadID {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]ThreadID, 0, k.threads.len())
	for i := range k.threads.items {
		if k.isLiveSlot(int32(i)) {
			ids = append(ids, ThreadID(i))
		}
	}
	return ids
}

// isLiveSlot reports whether arena slot i is currently allocated (not on
// the free list). Used by enumeration; linear in the free list length,
// which is small relative to thread counts in this emulator's scale.
func (k *Kernel) isLiveSlot(i int32) bool {
	for _, f := range k.threads.free {
		if f == i {
			return false
		}
	}
	return true
}

// Delay blocks the calling thread for the given number of ticks (0
// returns immediately).
func (k *Kernel) Delay(ticks Ticks) Status {
	if ticks == 0 {
		return OK
	}
	k.mu.Lock()
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return Error
	}
	k.threadBlock(id, ThreadBlockedDelay)
	if ticks == Forever {
		k.delayListInsert(id, 0, true)
	} else {
		k.delayListInsert(id, int64(ticks), false)
	}
	k.blockUntilWoken(id)
	k.mu.Unlock()
	return OK
}

// DelayUntil blocks the calling thread until the kernel's absolute tick
// counter reaches absTicks.
func (k *Kernel) DelayUntil(absTicks uint64) Status {
	k.mu.Lock()
	now := k.tickCount
	k.mu.Unlock()
	if absTicks <= now {
		return OK
	}
	return k.Delay(Ticks(absTicks - now))
}
