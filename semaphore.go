package rtxoff

// semaphoreCB is a counting semaphore's control block (spec.md §3/§4.7):
// the common waitable-object header plus a token count bounded by
// maxTokens.
type semaphoreCB struct {
	hdr       objectHeader
	tokens    int32
	maxTokens int32
}

// Semaphore is a handle to a kernel counting semaphore.
type Semaphore struct {
	k  *Kernel
	id ObjectID
}

// SemaphoreNew creates a counting semaphore with the given maximum token
// count and initial token count.
func (k *Kernel) SemaphoreNew(name string, maxTokens, initialTokens int32) (*Semaphore, Status) {
	if maxTokens <= 0 || initialTokens < 0 || initialTokens > maxTokens {
		return nil, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, s := k.sems.alloc()
	*s = semaphoreCB{
		hdr:       objectHeader{valid: true, name: name, waitHead: noThread},
		tokens:    initialTokens,
		maxTokens: maxTokens,
	}
	return &Semaphore{k: k, id: ObjectID(idx)}, OK
}

func (s *Semaphore) cb() *semaphoreCB {
	return s.k.sems.get(int32(s.id))
}

// GetName returns the semaphore's display name.
func (s *Semaphore) GetName() string {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.cb().hdr.name
}

// Delete destroys the semaphore, waking every waiter with ErrorResource.
func (s *Semaphore) Delete() Status {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := s.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	for cb.hdr.waitHead != noThread {
		w := k.threadListGet(&cb.hdr.waitHead)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, ErrorResource, 0)
	}
	k.sems.release(int32(s.id))
	k.dispatch(noThread)
	return OK
}

// GetCount returns the current token count.
func (s *Semaphore) GetCount() (int32, Status) {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	cb := s.cb()
	if !cb.hdr.valid {
		return 0, ErrorParameter
	}
	return cb.tokens, OK
}

// Acquire takes one token, blocking up to timeout ticks if none are
// available.
func (s *Semaphore) Acquire(timeout Ticks) Status {
	k := s.k
	k.mu.Lock()
	cb := s.cb()
	if !cb.hdr.valid {
		k.mu.Unlock()
		return ErrorParameter
	}
	if cb.tokens > 0 {
		cb.tokens--
		k.mu.Unlock()
		return OK
	}
	if timeout == 0 {
		k.mu.Unlock()
		return ErrorResource
	}
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return Error
	}
	t := k.thread(id)
	t.waitKind = objectKindSemaphore
	t.waitObject = s.id
	k.threadListPut(&cb.hdr.waitHead, id)
	k.threadBlock(id, ThreadBlockedSemaphore)
	if timeout == Forever {
		k.delayListInsert(id, 0, true)
	} else {
		k.delayListInsert(id, int64(timeout), false)
	}
	k.blockUntilWoken(id)

	res := t.waitExit
	k.mu.Unlock()
	if !res.present {
		return ErrorTimeout
	}
	return res.status
}

// Release returns one token to the semaphore, waking the highest-priority
// waiter if any (bypassing the counter entirely — the token goes straight
// to the waiter, mirroring spec.md §4.7's "wake is performed under the
// kernel lock together with the state mutation").
func (s *Semaphore) Release() Status {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := s.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	if cb.hdr.waitHead != noThread {
		w := k.threadListGet(&cb.hdr.waitHead)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, OK, 0)
		k.dispatch(noThread)
		return OK
	}
	if cb.tokens >= cb.maxTokens {
		return ErrorResource
	}
	cb.tokens++
	return OK
}

// ReleaseISR is the ISR-context equivalent of Release: validation is
// identical, but any wake is deferred to the post-ISR queue rather than
// performed inline (spec.md §4.4/§4.7).
func (s *Semaphore) ReleaseISR() Status {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := s.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	if cb.hdr.waitHead == noThread {
		if cb.tokens >= cb.maxTokens {
			return ErrorResource
		}
		cb.tokens++
		return OK
	}
	k.enqueueISRWork(objectKindSemaphore, s.id)
	return OK
}

// semaphorePostProcess performs the deferred wake for a ReleaseISR call.
// Called by the dispatcher outside ISR mode, with the lock held.
func (k *Kernel) semaphorePostProcess(id ObjectID) {
	cb := k.sems.get(int32(id))
	if !cb.hdr.valid || cb.hdr.waitHead == noThread {
		return
	}
	w := k.threadListGet(&cb.hdr.waitHead)
	k.thread(w).waitKind = objectKindNone
	k.thread(w).waitObject = noObject
	k.threadWaitExit(w, OK, 0)
	k.dispatch(noThread)
}
