package rtxoff

import "testing"

// newBareThread allocates a thread control block without spawning a host
// thread, for pure data-structure tests of the delay list that have no
// need of a running dispatcher.
func newBareThread(k *Kernel) ThreadID {
	idx, t := k.threads.alloc()
	t.id = ThreadID(idx)
	t.waitNext, t.waitPrev = noThread, noThread
	t.waitObject = noObject
	t.delayNext, t.delayPrev = noThread, noThread
	t.readyNext, t.readyPrev = noThread, noThread
	t.mutexList = noObject
	t.joinWaiter = noThread
	return t.id
}

func TestDelayListInsertOrdersByAbsoluteWakeTime(t *testing.T) {
	k := NewKernel()
	a := newBareThread(k)
	b := newBareThread(k)
	c := newBareThread(k)

	k.delayListInsert(a, 100, false)
	k.delayListInsert(b, 50, false)
	k.delayListInsert(c, 75, false)

	var order []ThreadID
	for cur := k.delayHead; cur != noThread; cur = k.thread(cur).delayNext {
		order = append(order, cur)
	}
	want := []ThreadID{b, c, a}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	// Deltas should sum to each thread's absolute wake time.
	sum := int64(0)
	for cur := k.delayHead; cur != noThread; cur = k.thread(cur).delayNext {
		sum += k.thread(cur).delayDelta
		switch cur {
		case b:
			if sum != 50 {
				t.Fatalf("b absolute = %d, want 50", sum)
			}
		case c:
			if sum != 75 {
				t.Fatalf("c absolute = %d, want 75", sum)
			}
		case a:
			if sum != 100 {
				t.Fatalf("a absolute = %d, want 100", sum)
			}
		}
	}
}

func TestDelayListRemoveAbsorbsDeltaIntoSuccessor(t *testing.T) {
	k := NewKernel()
	a := newBareThread(k)
	b := newBareThread(k)
	c := newBareThread(k)

	k.delayListInsert(a, 100, false)
	k.delayListInsert(b, 50, false)
	k.delayListInsert(c, 75, false)

	// Removing c (middle) must not change b's delta, and must leave a's
	// absolute wake time (100) unchanged.
	k.delayListRemove(c)

	sum := int64(0)
	for cur := k.delayHead; cur != noThread; cur = k.thread(cur).delayNext {
		sum += k.thread(cur).delayDelta
		if cur == b && sum != 50 {
			t.Fatalf("b absolute after removing c = %d, want 50", sum)
		}
		if cur == a && sum != 100 {
			t.Fatalf("a absolute after removing c = %d, want 100", sum)
		}
	}
}

func TestDelayListTickWakesExpiredInOrder(t *testing.T) {
	k := NewKernel()
	a := newBareThread(k)
	b := newBareThread(k)

	k.delayListInsert(a, 100, false)
	k.delayListInsert(b, 50, false)

	k.delayListTick(50)
	if k.thread(b).state != ThreadReady {
		t.Fatalf("b should be Ready after 50 ticks")
	}
	if k.thread(a).onDelayList != true {
		t.Fatalf("a should still be on the delay list after 50 ticks")
	}

	k.delayListTick(50)
	if k.thread(a).state != ThreadReady {
		t.Fatalf("a should be Ready after a further 50 ticks")
	}
}

func TestDelayListEarlyWakeCarriesResidualForward(t *testing.T) {
	k := NewKernel()
	a := newBareThread(k)
	b := newBareThread(k)

	k.delayListInsert(a, 10, false)
	k.delayListInsert(b, 20, false)

	// A big jump (e.g. host was descheduled) should wake both without
	// losing track of b's absolute time, and never go negative forever.
	k.delayListTick(25)
	if k.thread(a).state != ThreadReady || k.thread(b).state != ThreadReady {
		t.Fatalf("both threads should be Ready after a 25-tick jump past both deadlines")
	}
	if k.delayHead != noThread {
		t.Fatalf("delay list should be empty, got head=%v", k.delayHead)
	}
}

func TestForeverListIsPlainFIFONoDeltaAbsorption(t *testing.T) {
	k := NewKernel()
	a := newBareThread(k)
	b := newBareThread(k)
	c := newBareThread(k)

	k.delayListInsert(a, 0, true)
	k.delayListInsert(b, 0, true)
	k.delayListInsert(c, 0, true)

	k.delayListRemove(b)

	var order []ThreadID
	for cur := k.foreverHead; cur != noThread; cur = k.thread(cur).delayNext {
		order = append(order, cur)
	}
	if len(order) != 2 || order[0] != a || order[1] != c {
		t.Fatalf("forever list after removing b = %v, want [a c]", order)
	}
	for _, id := range order {
		if k.thread(id).delayDelta != 0 {
			t.Fatalf("forever list entries must never carry a delta, got %d", k.thread(id).delayDelta)
		}
	}
}
