package rtxoff_test

import (
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

func TestMemoryPoolAllocFreeCycling(t *testing.T) {
	k := newRunningKernel(t)
	pool, st := k.MemoryPoolNew("p", 2, 16)
	if st != rtxoff.OK {
		t.Fatalf("MemoryPoolNew() = %v", st)
	}

	b1, st := pool.Alloc(0)
	if st != rtxoff.OK || len(b1) != 16 {
		t.Fatalf("Alloc() = (len %d, %v), want (16, OK)", len(b1), st)
	}
	b2, st := pool.Alloc(0)
	if st != rtxoff.OK {
		t.Fatalf("second Alloc() = %v, want OK", st)
	}
	if _, st := pool.Alloc(0); st != rtxoff.ErrorResource {
		t.Fatalf("Alloc() on exhausted pool = %v, want ErrorResource", st)
	}

	b1[0] = 0xFF
	if st := pool.Free(b1); st != rtxoff.OK {
		t.Fatalf("Free() = %v", st)
	}
	b3, st := pool.Alloc(0)
	if st != rtxoff.OK {
		t.Fatalf("Alloc() after Free() = %v, want OK", st)
	}
	if b3[0] != 0 {
		t.Fatalf("reallocated block not cleared, got %#x at [0]", b3[0])
	}
	pool.Free(b2)
	pool.Free(b3)
}

func TestMemoryPoolFreeHandsBlockDirectlyToBlockedAlloc(t *testing.T) {
	k := newRunningKernel(t)
	pool, _ := k.MemoryPoolNew("p", 1, 8)

	first, _ := pool.Alloc(0)

	result := make(chan rtxoff.Status, 1)
	k.ThreadNew(func(any) {
		_, st := pool.Alloc(rtxoff.Forever)
		result <- st
	}, nil, rtxoff.ThreadAttr{Name: "waiter", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond) // ensure the waiter actually blocks
	if st := pool.Free(first); st != rtxoff.OK {
		t.Fatalf("Free() = %v", st)
	}

	select {
	case st := <-result:
		if st != rtxoff.OK {
			t.Fatalf("waiter Alloc() = %v, want OK", st)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Free")
	}
	if space := pool.GetSpace(); space != 0 {
		t.Fatalf("GetSpace() after handoff = %d, want 0 (block went straight to the waiter)", space)
	}
}

func TestMemoryPoolFreeISRDeferredWake(t *testing.T) {
	k := newRunningKernel(t)
	pool, _ := k.MemoryPoolNew("p", 1, 8)
	first, _ := pool.Alloc(0)

	result := make(chan rtxoff.Status, 1)
	k.ThreadNew(func(any) {
		_, st := pool.Alloc(rtxoff.Forever)
		result <- st
	}, nil, rtxoff.ThreadAttr{Name: "waiter", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond)
	if st := pool.FreeISR(first); st != rtxoff.OK {
		t.Fatalf("FreeISR() = %v", st)
	}

	select {
	case st := <-result:
		if st != rtxoff.OK {
			t.Fatalf("waiter Alloc() after FreeISR = %v, want OK", st)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after FreeISR")
	}
}
