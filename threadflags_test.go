package rtxoff_test

import (
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

func TestThreadFlagsSetAndWait(t *testing.T) {
	k := newRunningKernel(t)

	idCh := make(chan rtxoff.ThreadID, 1)
	result := make(chan uint32, 1)
	k.ThreadNew(func(any) {
		id, _ := k.ThreadGetId()
		idCh <- id
		flags, _ := k.ThreadFlagsWait(0x1, rtxoff.FlagsWaitAny, rtxoff.Forever)
		result <- flags
	}, nil, rtxoff.ThreadAttr{Name: "t", Priority: rtxoff.PriorityNormal})

	id := <-idCh
	time.Sleep(20 * time.Millisecond)
	if _, st := k.ThreadFlagsSet(id, 0x1); st != rtxoff.OK {
		t.Fatalf("ThreadFlagsSet() = %v", st)
	}

	select {
	case flags := <-result:
		if flags&0x1 == 0 {
			t.Fatalf("ThreadFlagsWait snapshot = %#x, want bit 0x1 set", flags)
		}
	case <-time.After(time.Second):
		t.Fatal("ThreadFlagsWait never woke")
	}
}

func TestThreadFlagsClearAndGet(t *testing.T) {
	k := newRunningKernel(t)
	idCh := make(chan rtxoff.ThreadID, 1)
	ready := make(chan struct{})
	k.ThreadNew(func(any) {
		id, _ := k.ThreadGetId()
		idCh <- id
		close(ready)
		k.Delay(rtxoff.Forever)
	}, nil, rtxoff.ThreadAttr{Name: "t", Priority: rtxoff.PriorityNormal})

	id := <-idCh
	<-ready

	if _, st := k.ThreadFlagsSet(id, 0x5); st != rtxoff.OK {
		t.Fatalf("ThreadFlagsSet() = %v", st)
	}
	if flags, _ := k.ThreadFlagsGet(id); flags != 0x5 {
		t.Fatalf("ThreadFlagsGet() = %#x, want 0x5", flags)
	}
	prev, st := k.ThreadFlagsClear(id, 0x1)
	if st != rtxoff.OK || prev != 0x5 {
		t.Fatalf("ThreadFlagsClear() = (%#x, %v), want (0x5, OK)", prev, st)
	}
	if flags, _ := k.ThreadFlagsGet(id); flags != 0x4 {
		t.Fatalf("ThreadFlagsGet() after clear = %#x, want 0x4", flags)
	}
}

func TestThreadFlagsSetISRDeferredWake(t *testing.T) {
	k := newRunningKernel(t)
	idCh := make(chan rtxoff.ThreadID, 1)
	result := make(chan rtxoff.Status, 1)
	k.ThreadNew(func(any) {
		id, _ := k.ThreadGetId()
		idCh <- id
		_, st := k.ThreadFlagsWait(0x1, rtxoff.FlagsWaitAny, rtxoff.Forever)
		result <- st
	}, nil, rtxoff.ThreadAttr{Name: "t", Priority: rtxoff.PriorityNormal})

	id := <-idCh
	time.Sleep(20 * time.Millisecond)
	k.ThreadFlagsSetISR(id, 0x1)

	select {
	case st := <-result:
		if st != rtxoff.OK {
			t.Fatalf("ThreadFlagsWait() after SetISR = %v, want OK", st)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after ThreadFlagsSetISR")
	}
}
