package rtxoff

// MutexAttr configures a Mutex at creation (spec.md §3/§4.6).
type MutexAttr struct {
	Name        string
	Recursive   bool
	PrioInherit bool
	Robust      bool
}

// mutexCB is a mutex's control block: the common waitable-object header
// plus owner, lock count, and the owner's owned-mutex chain linkage
// (spec.md §3's "Mutex").
type mutexCB struct {
	hdr objectHeader

	owner             ThreadID
	ownerNext, ownerPrev ObjectID
	count             int32
	attr              MutexAttr
}

// maxMutexCount is the recursive lock-count ceiling spec.md §3 calls out
// ("capped at 255").
const maxMutexCount = 255

// Mutex is a handle to a kernel mutex object.
type Mutex struct {
	k  *Kernel
	id ObjectID
}

// MutexNew creates a new mutex.
func (k *Kernel) MutexNew(attr MutexAttr) (*Mutex, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, m := k.mutexes.alloc()
	*m = mutexCB{
		hdr:       objectHeader{valid: true, name: attr.Name, waitHead: noThread},
		owner:     noThread,
		ownerNext: noObject,
		ownerPrev: noObject,
		attr:      attr,
	}
	return &Mutex{k: k, id: ObjectID(idx)}, OK
}

func (m *Mutex) cb() *mutexCB {
	return m.k.mutexes.get(int32(m.id))
}

// GetName returns the mutex's display name.
func (m *Mutex) GetName() string {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return m.cb().hdr.name
}

// Delete destroys the mutex, waking every waiter with ErrorResource.
func (m *Mutex) Delete() Status {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := m.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	if cb.owner != noThread {
		k.unchainMutexFromOwner(m.id, cb.owner)
	}
	for cb.hdr.waitHead != noThread {
		w := k.threadListGet(&cb.hdr.waitHead)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, ErrorResource, 0)
	}
	k.mutexes.release(int32(m.id))
	k.dispatch(noThread)
	return OK
}

// Acquire locks the mutex, implementing priority inheritance and recursive
// locking per spec.md §4.6.
func (m *Mutex) Acquire(timeout Ticks) Status {
	k := m.k
	k.mu.Lock()
	cb := m.cb()
	if !cb.hdr.valid {
		k.mu.Unlock()
		return ErrorParameter
	}
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return Error
	}

	if cb.owner == noThread {
		k.claimMutexLocked(m.id, id)
		k.mu.Unlock()
		return OK
	}
	if cb.owner == id {
		if !cb.attr.Recursive {
			k.mu.Unlock()
			return ErrorResource
		}
		if cb.count >= maxMutexCount {
			k.mu.Unlock()
			return ErrorResource
		}
		cb.count++
		k.mu.Unlock()
		return OK
	}
	if timeout == 0 {
		k.mu.Unlock()
		return ErrorResource
	}

	var boostedOwner ThreadID = noThread
	var boostedTo Priority
	if cb.attr.PrioInherit {
		owner := k.thread(cb.owner)
		caller := k.thread(id)
		if caller.priority > owner.priority {
			owner.priority = caller.priority
			k.resortOwnerLocked(cb.owner)
			boostedOwner, boostedTo = cb.owner, caller.priority
		}
	}

	t := k.thread(id)
	t.waitKind = objectKindMutex
	t.waitObject = m.id
	k.threadListPut(&cb.hdr.waitHead, id)
	k.threadBlock(id, ThreadBlockedMutex)
	if timeout == Forever {
		k.delayListInsert(id, 0, true)
	} else {
		k.delayListInsert(id, int64(timeout), false)
	}
	k.blockUntilWoken(id)

	res := t.waitExit
	k.mu.Unlock()

	if boostedOwner != noThread {
		logDebug("mutex", "priority inheritance boost", map[string]any{"owner": int32(boostedOwner), "to": int32(boostedTo)})
	}
	if !res.present {
		return ErrorTimeout
	}
	return res.status
}

// claimMutexLocked gives ownership of mutex cbID to id with lock count 1,
// pushing it onto id's owned-mutex chain. Called with the lock held.
func (k *Kernel) claimMutexLocked(cbID ObjectID, id ThreadID) {
	cb := k.mutexes.get(int32(cbID))
	cb.owner = id
	cb.count = 1
	t := k.thread(id)
	cb.ownerNext = t.mutexList
	cb.ownerPrev = noObject
	if t.mutexList != noObject {
		k.mutexes.get(int32(t.mutexList)).ownerPrev = cbID
	}
	t.mutexList = cbID
}

// unchainMutexFromOwner removes mutex id from owner's owned-mutex chain.
func (k *Kernel) unchainMutexFromOwner(id ObjectID, owner ThreadID) {
	cb := k.mutexes.get(int32(id))
	t := k.thread(owner)
	if cb.ownerPrev != noObject {
		k.mutexes.get(int32(cb.ownerPrev)).ownerNext = cb.ownerNext
	} else {
		t.mutexList = cb.ownerNext
	}
	if cb.ownerNext != noObject {
		k.mutexes.get(int32(cb.ownerNext)).ownerPrev = cb.ownerPrev
	}
	cb.ownerNext, cb.ownerPrev = noObject, noObject
	cb.owner = noThread
}

// recomputeOwnerPriority recomputes t's effective priority as
// max(base, max priority of top waiter of each owned mutex) per spec.md
// §4.6/invariant 6, after a waiter on one of its mutexes has left (timeout
// or termination). obj is accepted for call-site symmetry with the
// timeout path even though only the owner's identity matters.
func (k *Kernel) recomputeOwnerPriority(obj ObjectID) {
	cb := k.mutexes.get(int32(obj))
	if cb.owner == noThread {
		return
	}
	k.recomputeThreadPriorityLocked(cb.owner)
}

func (k *Kernel) recomputeThreadPriorityLocked(owner ThreadID) {
	t := k.thread(owner)
	best := t.priorityBase
	for m := t.mutexList; m != noObject; m = k.mutexes.get(int32(m)).ownerNext {
		mcb := k.mutexes.get(int32(m))
		if !mcb.attr.PrioInherit || mcb.hdr.waitHead == noThread {
			continue
		}
		if p := k.thread(mcb.hdr.waitHead).priority; p > best {
			best = p
		}
	}
	if t.priority == best {
		return
	}
	t.priority = best
	k.resortOwnerLocked(owner)
}

// resortOwnerLocked re-positions owner in whichever list currently holds
// it after its effective priority changed.
func (k *Kernel) resortOwnerLocked(owner ThreadID) {
	t := k.thread(owner)
	switch t.state {
	case ThreadReady:
		k.readyListRemove(owner)
		k.readyListPut(owner)
	default:
		if t.waitObject != noObject {
			k.threadListSort(k.waitHeadFor(t.waitKind, t.waitObject), owner)
		}
	}
}

// Release unlocks the mutex. Only the current owner may call this.
func (m *Mutex) Release() Status {
	k := m.k
	k.mu.Lock()
	cb := m.cb()
	if !cb.hdr.valid {
		k.mu.Unlock()
		return ErrorParameter
	}
	id, ok := k.currentThreadID()
	if !ok || cb.owner != id {
		k.mu.Unlock()
		return ErrorResource
	}
	cb.count--
	if cb.count > 0 {
		k.mu.Unlock()
		return OK
	}

	k.unchainMutexFromOwner(m.id, id)
	k.recomputeThreadPriorityLocked(id)

	newOwner := noThread
	if cb.hdr.waitHead != noThread {
		next := k.threadListGet(&cb.hdr.waitHead)
		k.thread(next).waitKind = objectKindNone
		k.thread(next).waitObject = noObject
		k.claimMutexLocked(m.id, next)
		k.threadWaitExit(next, OK, 0)
		newOwner = next
	}

	k.dispatch(noThread)
	k.mu.Unlock()

	if newOwner != noThread {
		logDebug("mutex", "ownership handed off", map[string]any{"from": int32(id), "to": int32(newOwner)})
	}
	return OK
}

// releaseOwnedMutexesLocked force-releases every robust mutex id owns
// (spec.md §4.6's robust-attribute rule, invoked on termination), waking
// each one's head waiter as the new owner — mirroring
// osRtxMutexOwnerRelease's `(mutex->attr & osMutexRobust) != 0U` gate
// (original_source/RTXOff/rtxoff_mutex.cpp). Non-robust mutexes are left
// alone by the original (their lock count and waiters untouched); this
// port still unchains them from id's owned-mutex chain and clears their
// owner, since id's control-block slot is about to be freed or recycled
// and a mutex left pointing at a stale/reused ThreadID would be worse
// than the original's dangling-pointer behavior, but it does not wake or
// transfer ownership to any waiter.
func (k *Kernel) releaseOwnedMutexesLocked(id ThreadID) {
	t := k.thread(id)
	for m := t.mutexList; m != noObject; {
		cb := k.mutexes.get(int32(m))
		next := cb.ownerNext
		robust := cb.attr.Robust
		k.unchainMutexFromOwner(m, id)
		if !robust {
			cb.count = 0
		}
		if robust && cb.hdr.waitHead != noThread {
			w := k.threadListGet(&cb.hdr.waitHead)
			k.thread(w).waitKind = objectKindNone
			k.thread(w).waitObject = noObject
			k.claimMutexLocked(m, w)
			k.threadWaitExit(w, OK, 0)
		}
		m = next
	}
	t.mutexList = noObject
}
