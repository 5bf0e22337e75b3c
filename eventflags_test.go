package rtxoff_test

import (
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

func TestEventFlagsSetAndWaitAny(t *testing.T) {
	k := newRunningKernel(t)
	ef, _ := k.EventFlagsNew("ef")

	result := make(chan uint32, 1)
	k.ThreadNew(func(any) {
		flags, st := ef.Wait(0x3, rtxoff.FlagsWaitAny, rtxoff.Forever)
		if st != rtxoff.OK {
			t.Errorf("Wait() = %v, want OK", st)
		}
		result <- flags
	}, nil, rtxoff.ThreadAttr{Name: "waiter", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond)
	ef.Set(0x2)

	select {
	case flags := <-result:
		if flags&0x2 == 0 {
			t.Fatalf("WaitAny snapshot = %#x, want bit 0x2 set", flags)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitAny never woke")
	}
}

func TestEventFlagsWaitAllRequiresEveryBit(t *testing.T) {
	k := newRunningKernel(t)
	ef, _ := k.EventFlagsNew("ef")

	result := make(chan rtxoff.Status, 1)
	k.ThreadNew(func(any) {
		_, st := ef.Wait(0x3, rtxoff.FlagsWaitAll, 30)
		result <- st
	}, nil, rtxoff.ThreadAttr{Name: "waiter", Priority: rtxoff.PriorityNormal})

	time.Sleep(10 * time.Millisecond)
	ef.Set(0x1) // only half the mask; WaitAll must not wake yet

	select {
	case st := <-result:
		if st != rtxoff.ErrorTimeout {
			t.Fatalf("WaitAll with only half the mask set = %v, want ErrorTimeout", st)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitAll test never completed")
	}
}

func TestEventFlagsNoClearLeavesBitsSet(t *testing.T) {
	k := newRunningKernel(t)
	ef, _ := k.EventFlagsNew("ef")
	ef.Set(0x1)

	flags, st := ef.Wait(0x1, rtxoff.FlagsWaitAny|rtxoff.FlagsNoClear, 0)
	if st != rtxoff.OK || flags != 0x1 {
		t.Fatalf("Wait(NoClear) = (%#x, %v), want (0x1, OK)", flags, st)
	}
	if cur, _ := ef.Get(); cur != 0x1 {
		t.Fatalf("Get() after NoClear wait = %#x, want 0x1 (bit preserved)", cur)
	}
}

func TestEventFlagsSetWakesMultipleWaitersInOnePass(t *testing.T) {
	k := newRunningKernel(t)
	ef, _ := k.EventFlagsNew("ef")

	anyResult := make(chan uint32, 1)
	allResult := make(chan uint32, 1)

	k.ThreadNew(func(any) {
		flags, _ := ef.Wait(0x1, rtxoff.FlagsWaitAny, rtxoff.Forever)
		anyResult <- flags
	}, nil, rtxoff.ThreadAttr{Name: "any-waiter", Priority: rtxoff.PriorityNormal})

	k.ThreadNew(func(any) {
		flags, _ := ef.Wait(0x6, rtxoff.FlagsWaitAll, rtxoff.Forever)
		allResult <- flags
	}, nil, rtxoff.ThreadAttr{Name: "all-waiter", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond)
	// Disjoint masks: each woken waiter clears only its own bits, so one
	// Set(0x7) satisfies both waiters in one pass.
	ef.Set(0x7)

	timeout := time.After(time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-anyResult:
		case <-allResult:
		case <-timeout:
			t.Fatal("not all waiters were woken by a single Set")
		}
	}
}

func TestEventFlagsSetISRDeferredWake(t *testing.T) {
	k := newRunningKernel(t)
	ef, _ := k.EventFlagsNew("ef")

	result := make(chan rtxoff.Status, 1)
	k.ThreadNew(func(any) {
		_, st := ef.Wait(0x1, rtxoff.FlagsWaitAny, rtxoff.Forever)
		result <- st
	}, nil, rtxoff.ThreadAttr{Name: "waiter", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond)
	ef.SetISR(0x1)

	select {
	case st := <-result:
		if st != rtxoff.OK {
			t.Fatalf("Wait() after SetISR = %v, want OK", st)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after SetISR")
	}
}
