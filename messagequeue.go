package rtxoff

// messageQueueCB is a priority-ordered message queue's control block
// (spec.md §3/§4.7's "Message queue"). Slot storage and the free-slot
// stack mirror MemoryPool's design (see memorypool.go's doc comment);
// queued messages form their own priority-ordered intrusive list over the
// same slot indices, separate from the free stack.
//
// Unlike the other waitable objects, a message queue has two independent
// wait lists — waitGet (readers blocked because the queue is empty) and
// waitPut (writers blocked because it's full) — so it does not use
// objectHeader.waitHead at all.
type messageQueueCB struct {
	hdr objectHeader

	msgSize  uint32
	capacity uint32

	waitGet ThreadID
	waitPut ThreadID

	slots     [][]byte
	freeSlots []int32

	msgPriority []Priority
	msgNext     []int32
	msgPrev     []int32
	msgHead     int32
	msgTail     int32
	count       uint32
}

// MessageQueue is a handle to a kernel message queue.
type MessageQueue struct {
	k  *Kernel
	id ObjectID
}

// MessageQueueNew creates a queue holding up to capacity messages, each at
// most msgSize bytes.
func (k *Kernel) MessageQueueNew(name string, capacity, msgSize uint32) (*MessageQueue, Status) {
	if capacity == 0 || msgSize == 0 {
		return nil, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, q := k.queues.alloc()
	slots := make([][]byte, capacity)
	free := make([]int32, capacity)
	for i := range slots {
		slots[i] = make([]byte, msgSize)
		free[capacity-1-uint32(i)] = int32(i)
	}
	*q = messageQueueCB{
		hdr:         objectHeader{valid: true, name: name},
		msgSize:     msgSize,
		capacity:    capacity,
		waitGet:     noThread,
		waitPut:     noThread,
		slots:       slots,
		freeSlots:   free,
		msgPriority: make([]Priority, capacity),
		msgNext:     make([]int32, capacity),
		msgPrev:     make([]int32, capacity),
		msgHead:     -1,
		msgTail:     -1,
	}
	return &MessageQueue{k: k, id: ObjectID(idx)}, OK
}

func (q *MessageQueue) cb() *messageQueueCB {
	return q.k.queues.get(int32(q.id))
}

// GetName returns the queue's display name.
func (q *MessageQueue) GetName() string {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.cb().hdr.name
}

// GetCapacity returns the maximum number of messages the queue holds.
func (q *MessageQueue) GetCapacity() uint32 {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.cb().capacity
}

// GetMsgSize returns the maximum size, in bytes, of one message.
func (q *MessageQueue) GetMsgSize() uint32 {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.cb().msgSize
}

// GetCount returns the number of messages currently queued.
func (q *MessageQueue) GetCount() uint32 {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.cb().count
}

// GetSpace returns the number of free slots remaining.
func (q *MessageQueue) GetSpace() uint32 {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	cb := q.cb()
	return cb.capacity - cb.count
}

// Delete destroys the queue, waking every reader and writer with
// ErrorResource.
func (q *MessageQueue) Delete() Status {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := q.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	for cb.waitGet != noThread {
		w := k.threadListGet(&cb.waitGet)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, ErrorResource, 0)
	}
	for cb.waitPut != noThread {
		w := k.threadListGet(&cb.waitPut)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, ErrorResource, 0)
	}
	k.queues.release(int32(q.id))
	k.dispatch(noThread)
	return OK
}

// msgListInsert links slot idx into cb's priority-ordered message list:
// descending priority, FIFO within a priority (append to the back of the
// matching run).
func msgListInsert(cb *messageQueueCB, idx int32, priority Priority) {
	cb.msgPriority[idx] = priority
	if cb.msgHead == -1 {
		cb.msgHead, cb.msgTail = idx, idx
		cb.msgNext[idx], cb.msgPrev[idx] = -1, -1
		return
	}
	cur := cb.msgHead
	var prev int32 = -1
	for cur != -1 && cb.msgPriority[cur] >= priority {
		prev = cur
		cur = cb.msgNext[cur]
	}
	cb.msgNext[idx] = cur
	cb.msgPrev[idx] = prev
	if cur != -1 {
		cb.msgPrev[cur] = idx
	} else {
		cb.msgTail = idx
	}
	if prev == -1 {
		cb.msgHead = idx
	} else {
		cb.msgNext[prev] = idx
	}
}

// msgListPopFront removes and returns the highest-priority, oldest queued
// message's slot index.
func msgListPopFront(cb *messageQueueCB) int32 {
	idx := cb.msgHead
	cb.msgHead = cb.msgNext[idx]
	if cb.msgHead != -1 {
		cb.msgPrev[cb.msgHead] = -1
	} else {
		cb.msgTail = -1
	}
	return idx
}

// Put enqueues payload (copied) with the given priority, blocking up to
// timeout ticks if the queue is full. If a reader is already blocked in
// Get, the message bypasses slot storage entirely and is copied straight
// into the reader's destination buffer (spec.md §4.7/§8 scenario 6).
func (q *MessageQueue) Put(payload []byte, priority Priority, timeout Ticks) Status {
	k := q.k
	k.mu.Lock()
	cb := q.cb()
	if !cb.hdr.valid {
		k.mu.Unlock()
		return ErrorParameter
	}
	if uint32(len(payload)) > cb.msgSize {
		k.mu.Unlock()
		return ErrorParameter
	}
	if cb.waitGet != noThread {
		w := k.threadListGet(&cb.waitGet)
		t := k.thread(w)
		copy(t.msgPayload, payload)
		t.waitKind = objectKindNone
		t.waitObject = noObject
		k.threadWaitExit(w, OK, uint64(priority))
		k.dispatch(noThread)
		k.mu.Unlock()
		return OK
	}
	if n := len(cb.freeSlots); n > 0 {
		idx := cb.freeSlots[n-1]
		cb.freeSlots = cb.freeSlots[:n-1]
		copy(cb.slots[idx], payload)
		msgListInsert(cb, idx, priority)
		cb.count++
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
	t.waitKind = objectKindMsgPut
	t.waitObject = q.id
	t.msgPayload = append(t.msgPayload[:0], payload...)
	t.msgPriority = priority
	k.threadListPut(&cb.waitPut, id)
	k.threadBlock(id, ThreadBlockedMsgPut)
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

// PutISR is the ISR-context equivalent of Put: if a slot is free the
// message is stored immediately, but any resulting wake of a blocked
// reader is deferred to the post-ISR queue. Unlike Put, it never performs
// the direct reader-bypass (that requires touching the ready list, which
// only the dispatcher goroutine may do) — it returns ErrorResource if no
// slot is free rather than attempting to block.
func (q *MessageQueue) PutISR(payload []byte, priority Priority) Status {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := q.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	if uint32(len(payload)) > cb.msgSize {
		return ErrorParameter
	}
	n := len(cb.freeSlots)
	if n == 0 {
		return ErrorResource
	}
	idx := cb.freeSlots[n-1]
	cb.freeSlots = cb.freeSlots[:n-1]
	copy(cb.slots[idx], payload)
	msgListInsert(cb, idx, priority)
	cb.count++
	k.enqueueISRWork(objectKindMsgPut, q.id)
	return OK
}

// Get dequeues the highest-priority, oldest message into buf, blocking up
// to timeout ticks if the queue is empty. Returns the message's priority
// and its length.
func (q *MessageQueue) Get(buf []byte, timeout Ticks) (int, Priority, Status) {
	k := q.k
	k.mu.Lock()
	cb := q.cb()
	if !cb.hdr.valid {
		k.mu.Unlock()
		return 0, 0, ErrorParameter
	}
	if cb.count > 0 {
		n, pr := deliverFrontLocked(k, cb, buf)
		k.mu.Unlock()
		return n, pr, OK
	}
	if timeout == 0 {
		k.mu.Unlock()
		return 0, 0, ErrorResource
	}
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return 0, 0, Error
	}
	t := k.thread(id)
	t.waitKind = objectKindMsgGet
	t.waitObject = q.id
	t.msgPayload = buf
	k.threadListPut(&cb.waitGet, id)
	k.threadBlock(id, ThreadBlockedMsgGet)
	if timeout == Forever {
		k.delayListInsert(id, 0, true)
	} else {
		k.delayListInsert(id, int64(timeout), false)
	}
	k.blockUntilWoken(id)

	res := t.waitExit
	k.mu.Unlock()
	if !res.present {
		return 0, 0, ErrorTimeout
	}
	if res.status != OK {
		return 0, 0, res.status
	}
	n := len(buf)
	if int(cb.msgSize) < n {
		n = int(cb.msgSize)
	}
	return n, Priority(res.value), OK
}

// deliverFrontLocked pops the queue's front message into buf, frees its
// slot, and backfills from a blocked writer (if any) into the freed slot.
// Called with the lock held and cb.count > 0.
func deliverFrontLocked(k *Kernel, cb *messageQueueCB, buf []byte) (int, Priority) {
	idx := msgListPopFront(cb)
	priority := cb.msgPriority[idx]
	n := copy(buf, cb.slots[idx][:cb.msgSize])
	cb.count--

	if cb.waitPut != noThread {
		w := k.threadListGet(&cb.waitPut)
		t := k.thread(w)
		copy(cb.slots[idx], t.msgPayload)
		msgListInsert(cb, idx, t.msgPriority)
		cb.count++
		t.waitKind = objectKindNone
		t.waitObject = noObject
		k.threadWaitExit(w, OK, 0)
		k.dispatch(noThread)
	} else {
		cb.freeSlots = append(cb.freeSlots, idx)
	}
	return n, priority
}

// GetISR is the ISR-context equivalent of Get: it never blocks, and any
// resulting wake of a blocked writer is deferred to the post-ISR queue.
func (q *MessageQueue) GetISR(buf []byte) (int, Priority, Status) {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := q.cb()
	if !cb.hdr.valid {
		return 0, 0, ErrorParameter
	}
	if cb.count == 0 {
		return 0, 0, ErrorResource
	}
	idx := msgListPopFront(cb)
	priority := cb.msgPriority[idx]
	n := copy(buf, cb.slots[idx][:cb.msgSize])
	cb.count--
	cb.freeSlots = append(cb.freeSlots, idx)
	if cb.waitPut != noThread {
		k.enqueueISRWork(objectKindMsgPut, q.id)
	}
	return n, priority, OK
}

// messageQueuePostProcessPut performs the deferred wake following a
// PutISR or GetISR call: it tries to hand the newly-queued message to a
// blocked reader, then — if that freed a slot — tries to pull a blocked
// writer's pending message into the queue.
func (k *Kernel) messageQueuePostProcessPut(id ObjectID) {
	cb := k.queues.get(int32(id))
	if !cb.hdr.valid {
		return
	}
	if cb.count > 0 && cb.waitGet != noThread {
		w := k.threadListGet(&cb.waitGet)
		t := k.thread(w)
		_, priority := deliverFrontLocked(k, cb, t.msgPayload)
		t.waitKind = objectKindNone
		t.waitObject = noObject
		k.threadWaitExit(w, OK, uint64(priority))
		k.dispatch(noThread)
		return
	}
	if len(cb.freeSlots) > 0 && cb.waitPut != noThread {
		idx := cb.freeSlots[len(cb.freeSlots)-1]
		cb.freeSlots = cb.freeSlots[:len(cb.freeSlots)-1]
		w := k.threadListGet(&cb.waitPut)
		t := k.thread(w)
		copy(cb.slots[idx], t.msgPayload)
		msgListInsert(cb, idx, t.msgPriority)
		cb.count++
		t.waitKind = objectKindNone
		t.waitObject = noObject
		k.threadWaitExit(w, OK, 0)
		k.dispatch(noThread)
	}
}
