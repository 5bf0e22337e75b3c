package rtxoff

// This file implements the delta-encoded delay list from spec.md §4.3 —
// "the interesting data structure" per DESIGN NOTES §9. A thread sleeping
// for D ticks is inserted by walking the list accumulating predecessor
// deltas until the running sum would reach or exceed D; the residual
// (D - sum) becomes the new node's own delta, and the successor's delta is
// decremented by that residual so that the successor's absolute wake time
// is unchanged. Removing a non-head node does NOT change its
// predecessor's delta — the node's delta is instead added onto its
// successor, preserving every remaining absolute wake time.
//
// A separate "forever" list (no timeout) is a plain FIFO using the same
// link fields, distinguished by thread.onForeverList: it carries no
// deltas, so removal from it needs no successor-absorption step (spec.md
// §9's third open-question resolution).

// delayListInsert adds id to the delay list with a relative timeout of
// ticks, or to the forever list if forever is true. Must be called with
// the lock held, and only once per thread (a thread is never on this list
// twice).
func (k *Kernel) delayListInsert(id ThreadID, ticks int64, forever bool) {
	t := k.thread(id)
	if forever {
		t.onForeverList = true
		t.delayPrev = noThread
		if k.foreverHead == noThread {
			k.foreverHead = id
			t.delayNext = noThread
			return
		}
		cur := k.foreverHead
		for k.thread(cur).delayNext != noThread {
			cur = k.thread(cur).delayNext
		}
		k.thread(cur).delayNext = id
		t.delayPrev = cur
		t.delayNext = noThread
		return
	}

	t.onDelayList = true
	cur := k.delayHead
	var prev ThreadID = noThread
	var sum int64
	for cur != noThread {
		c := k.thread(cur)
		if sum+c.delayDelta >= ticks {
			break
		}
		sum += c.delayDelta
		prev = cur
		cur = c.delayNext
	}
	residual := ticks - sum
	t.delayDelta = residual
	t.delayNext = cur
	t.delayPrev = prev
	if cur != noThread {
		succ := k.thread(cur)
		succ.delayDelta -= residual
		succ.delayPrev = id
	}
	if prev == noThread {
		k.delayHead = id
	} else {
		k.thread(prev).delayNext = id
	}
}

// delayListRemove unlinks id from whichever delay list it is on (a no-op
// if it is on neither). Per spec.md §4.3: removing from the delta list
// adds the node's own delta onto its successor so the successor's
// absolute wake time is preserved; the forever list needs no such step.
func (k *Kernel) delayListRemove(id ThreadID) {
	t := k.thread(id)
	switch {
	case t.onForeverList:
		if t.delayPrev != noThread {
			k.thread(t.delayPrev).delayNext = t.delayNext
		} else {
			k.foreverHead = t.delayNext
		}
		if t.delayNext != noThread {
			k.thread(t.delayNext).delayPrev = t.delayPrev
		}
		t.onForeverList = false
	case t.onDelayList:
		if t.delayNext != noThread {
			k.thread(t.delayNext).delayDelta += t.delayDelta
			k.thread(t.delayNext).delayPrev = t.delayPrev
		}
		if t.delayPrev != noThread {
			k.thread(t.delayPrev).delayNext = t.delayNext
		} else {
			k.delayHead = t.delayNext
		}
		t.onDelayList = false
	default:
		return
	}
	t.delayNext, t.delayPrev, t.delayDelta = noThread, noThread, 0
}

// delayListTick advances the delta list by elapsed ticks and wakes every
// thread whose timeout has now expired. Per spec.md §4.3: decrement the
// head's delta by elapsed; while the head's remaining delta is ≤ 0,
// unlink it, apply any state-specific wake fixup, mark it Ready, and carry
// any negative residual onto the new head (a thread that should have
// woken earlier does not cause later waiters to wake late). Called with
// the lock held, from handleTick.
func (k *Kernel) delayListTick(elapsed int64) {
	if k.delayHead == noThread || elapsed <= 0 {
		return
	}
	k.thread(k.delayHead).delayDelta -= elapsed
	for k.delayHead != noThread && k.thread(k.delayHead).delayDelta <= 0 {
		id := k.delayHead
		t := k.thread(id)
		residual := t.delayDelta
		next := t.delayNext

		k.delayHead = next
		if next != noThread {
			nt := k.thread(next)
			nt.delayPrev = noThread
			nt.delayDelta += residual
		}
		t.delayNext, t.delayPrev, t.delayDelta = noThread, noThread, 0
		t.onDelayList = false

		k.onDelayExpired(id)
	}
}

// onDelayExpired handles a thread whose delay-list timeout has just
// expired. If it was purely sleeping (Delay/DelayUntil), it simply
// becomes Ready. If it was blocked on a waitable object with a timeout, it
// must first be pulled out of that object's wait list and told it timed
// out (spec.md §4.7's waitValPresent=false path); mutex waits additionally
// trigger the owner's priority-inheritance recompute, since the waiter
// leaving may lower the maximum priority among remaining waiters.
func (k *Kernel) onDelayExpired(id ThreadID) {
	t := k.thread(id)
	if t.waitKind != objectKindNone {
		k.removeFromWaitListOnTimeout(id)
	}
	t.waitExit = waitResult{present: false, status: ErrorTimeout}
	k.threadReadyPut(id)
}

// removeFromWaitListOnTimeout pulls id out of the object wait list it is
// parked on and applies any per-kind bookkeeping fixup. Called with the
// lock held, from onDelayExpired.
func (k *Kernel) removeFromWaitListOnTimeout(id ThreadID) {
	t := k.thread(id)
	kind, obj := t.waitKind, t.waitObject
	switch kind {
	case objectKindMutex:
		m := k.mutexes.get(int32(obj))
		k.threadListUnlink(&m.hdr.waitHead, id)
		k.recomputeOwnerPriority(ObjectID(obj))
	case objectKindSemaphore:
		s := k.sems.get(int32(obj))
		k.threadListUnlink(&s.hdr.waitHead, id)
	case objectKindEventFlags:
		e := k.events.get(int32(obj))
		k.threadListUnlink(&e.hdr.waitHead, id)
	case objectKindMemoryPool:
		p := k.pools.get(int32(obj))
		k.threadListUnlink(&p.hdr.waitHead, id)
	case objectKindMsgGet:
		q := k.queues.get(int32(obj))
		k.threadListUnlink(&q.waitGet, id)
	case objectKindMsgPut:
		q := k.queues.get(int32(obj))
		k.threadListUnlink(&q.waitPut, id)
	case objectKindJoin:
		// join waits are tracked directly on the joined thread's
		// joinWaiter field, not a list, so there is nothing to unlink.
		// ThreadJoin has no timeout and does not set this kind.
	}
	t.waitKind = objectKindNone
	t.waitObject = noObject
}
