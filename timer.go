package rtxoff

import (
	"container/heap"
	"encoding/binary"
	"fmt"
)

// timerCB is a software timer's control block (spec.md §4.5). Active
// timers are ordered by absolute expiry tick in k.timerActive, a
// container/heap min-heap; Start/Stop push and remove a timer's entry,
// and timerServiceTick pops everything due each tick.
type timerCB struct {
	hdr objectHeader

	callback func(argument any)
	argument any

	periodic bool
	periodMs int64

	armed     bool
	heapIndex int
	expiry    uint64
}

// Timer is a handle to a kernel software timer.
type Timer struct {
	k  *Kernel
	id ObjectID
}

// timerHeap implements container/heap.Interface over ObjectIDs, comparing
// by the referenced timerCB's expiry tick. It holds a back-reference to
// the owning Kernel rather than timerCB pointers directly, consistent
// with this package's "index into an arena, not a pointer" convention
// (DESIGN.md).
type timerHeap struct {
	k   *Kernel
	ids []ObjectID
}

func (h *timerHeap) Len() int { return len(h.ids) }

func (h *timerHeap) Less(i, j int) bool {
	return h.k.timers.get(int32(h.ids[i])).expiry < h.k.timers.get(int32(h.ids[j])).expiry
}

func (h *timerHeap) Swap(i, j int) {
	h.ids[i], h.ids[j] = h.ids[j], h.ids[i]
	h.k.timers.get(int32(h.ids[i])).heapIndex = i
	h.k.timers.get(int32(h.ids[j])).heapIndex = j
}

func (h *timerHeap) Push(x any) {
	id := x.(ObjectID)
	h.k.timers.get(int32(id)).heapIndex = len(h.ids)
	h.ids = append(h.ids, id)
}

func (h *timerHeap) Pop() any {
	old := h.ids
	n := len(old)
	id := old[n-1]
	h.ids = old[:n-1]
	h.k.timers.get(int32(id)).heapIndex = -1
	return id
}

// setupTimerServiceLocked wires the timer-service message queue and its
// dedicated high-priority consumer thread (spec.md §4.5: "timer callbacks
// run in thread context, serialized, at a priority above ordinary
// application threads"). Called once from Initialize, with the lock
// already held — it must not call any public API method that re-acquires
// k.mu.
func (k *Kernel) setupTimerServiceLocked() {
	k.timerActive = timerHeap{k: k, ids: make([]ObjectID, 0, 8)}
	heap.Init(&k.timerActive)

	const msgSize = 4
	depth := k.cfg.TimerQueueLength
	if depth == 0 {
		depth = 16
	}
	idx, q := k.queues.alloc()
	slots := make([][]byte, depth)
	free := make([]int32, depth)
	for i := range slots {
		slots[i] = make([]byte, msgSize)
		free[depth-1-uint32(i)] = int32(i)
	}
	*q = messageQueueCB{
		hdr:         objectHeader{valid: true, name: "timer-service", waitHead: noThread},
		msgSize:     msgSize,
		capacity:    depth,
		waitGet:     noThread,
		waitPut:     noThread,
		slots:       slots,
		freeSlots:   free,
		msgPriority: make([]Priority, depth),
		msgNext:     make([]int32, depth),
		msgPrev:     make([]int32, depth),
		msgHead:     -1,
		msgTail:     -1,
	}
	k.timerQueue = &MessageQueue{k: k, id: ObjectID(idx)}

	k.timerThread = k.newThreadLocked(k.timerServiceBody, nil, ThreadAttr{
		Name:     "timer-svc",
		Priority: PriorityISR,
	})
}

// timerServiceBody is the timer-service thread's entry point: it blocks
// forever on the timer queue, decodes the ObjectID each message carries,
// and invokes that timer's callback outside the kernel lock.
func (k *Kernel) timerServiceBody(any) {
	var buf [4]byte
	for {
		n, _, status := k.timerQueue.Get(buf[:], Forever)
		if status != OK || n < 4 {
			continue
		}
		id := ObjectID(binary.LittleEndian.Uint32(buf[:]))
		k.invokeTimerCallback(id)
	}
}

// invokeTimerCallback fetches and runs one timer's callback outside the
// kernel lock. Periodic rearming is not done here: timerServiceTick has
// already rearmed the timer from its original due time before posting.
func (k *Kernel) invokeTimerCallback(id ObjectID) {
	k.mu.Lock()
	cb := k.timers.get(int32(id))
	if !cb.hdr.valid {
		k.mu.Unlock()
		return
	}
	fn, arg := cb.callback, cb.argument
	k.mu.Unlock()

	if fn != nil {
		logDebug("timer", "callback fired", map[string]any{"timer": int32(id)})
		fn(arg)
	}
}

// TimerNew creates a timer with the given callback and argument. It is
// not armed until Start is called.
func (k *Kernel) TimerNew(name string, periodic bool, callback func(argument any), argument any) (*Timer, Status) {
	if callback == nil {
		return nil, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, t := k.timers.alloc()
	*t = timerCB{
		hdr:       objectHeader{valid: true, name: name},
		callback:  callback,
		argument:  argument,
		periodic:  periodic,
		heapIndex: -1,
	}
	return &Timer{k: k, id: ObjectID(idx)}, OK
}

func (t *Timer) cb() *timerCB {
	return t.k.timers.get(int32(t.id))
}

// GetName returns the timer's display name.
func (t *Timer) GetName() string {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.cb().hdr.name
}

// IsRunning reports whether the timer is currently armed.
func (t *Timer) IsRunning() bool {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.cb().armed
}

// Start arms the timer to fire after periodMs ticks (and, if periodic,
// every periodMs ticks thereafter). Starting an already-armed timer
// reschedules it.
func (t *Timer) Start(periodMs uint32) Status {
	if periodMs == 0 {
		return ErrorParameter
	}
	k := t.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := t.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	if cb.armed {
		heap.Remove(&k.timerActive, cb.heapIndex)
	}
	cb.periodMs = int64(periodMs)
	cb.expiry = k.tickCount + uint64(periodMs)
	cb.armed = true
	heap.Push(&k.timerActive, t.id)
	return OK
}

// Stop disarms the timer. Returns ErrorResource if it is not currently
// armed.
func (t *Timer) Stop() Status {
	k := t.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := t.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	if !cb.armed {
		return ErrorResource
	}
	heap.Remove(&k.timerActive, cb.heapIndex)
	cb.armed = false
	return OK
}

// Delete destroys the timer, disarming it first if necessary.
func (t *Timer) Delete() Status {
	k := t.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := t.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	if cb.armed {
		heap.Remove(&k.timerActive, cb.heapIndex)
		cb.armed = false
	}
	k.timers.release(int32(t.id))
	return OK
}

// timerServiceTick fires every timer whose expiry has reached tickCount,
// rearming periodic ones for their next period before posting the
// callback request to the timer-service queue. Called with the lock
// held, from handleTick.
func (k *Kernel) timerServiceTick(elapsedMs int64) {
	_ = elapsedMs
	for k.timerActive.Len() > 0 {
		cb := k.timers.get(int32(k.timerActive.ids[0]))
		if cb.expiry > k.tickCount {
			break
		}
		id := heap.Pop(&k.timerActive).(ObjectID)
		cb.armed = false
		if cb.periodic {
			cb.expiry += uint64(cb.periodMs)
			if cb.expiry <= k.tickCount {
				cb.expiry = k.tickCount + uint64(cb.periodMs)
			}
			cb.armed = true
			heap.Push(&k.timerActive, id)
		}
		k.timerEnqueueLocked(id)
	}
}

// timerEnqueueLocked posts id to the timer-service queue without
// acquiring k.mu (the caller, timerServiceTick, already holds it — this
// mirrors MessageQueue.Put's body rather than calling Put itself, which
// would self-deadlock on the non-reentrant kernel lock). If the queue is
// momentarily full (its depth is Config.TimerQueueLength) this drops the
// notification and reports the overflow to Config.ErrorHook, if set, on
// its own goroutine so the hook never runs under the kernel lock.
func (k *Kernel) timerEnqueueLocked(id ObjectID) {
	cb := k.timerQueue.cb()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))

	if cb.waitGet != noThread {
		w := k.threadListGet(&cb.waitGet)
		wt := k.thread(w)
		copy(wt.msgPayload, buf[:])
		wt.waitKind = objectKindNone
		wt.waitObject = noObject
		k.threadWaitExit(w, OK, 0)
		k.dispatch(noThread)
		return
	}
	if n := len(cb.freeSlots); n > 0 {
		idx := cb.freeSlots[n-1]
		cb.freeSlots = cb.freeSlots[:n-1]
		copy(cb.slots[idx], buf[:])
		msgListInsert(cb, idx, PriorityNormal)
		cb.count++
	} else if hook := k.cfg.ErrorHook; hook != nil {
		go hook(fmt.Errorf("rtxoff: timer-service queue full, notification for timer %d dropped", int32(id)))
	}
}
