package rtxoff_test

import (
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

// TestThreadSuspendNeverRun verifies a freshly created thread (Ready, but
// not yet run by the dispatcher) can be suspended and resumed, per
// spec.md §3's Inactive -> Ready transition at creation time.
func TestThreadSuspendNeverRun(t *testing.T) {
	k := newRunningKernel(t)

	started := make(chan struct{})
	id, st := k.ThreadNew(func(any) {
		close(started)
	}, nil, rtxoff.ThreadAttr{Name: "t", Priority: rtxoff.PriorityLow})
	if st != rtxoff.OK {
		t.Fatalf("ThreadNew() = %v", st)
	}

	// Immediately (before the dispatcher necessarily ran it) suspend it.
	if st := k.ThreadSuspend(id); st != rtxoff.OK {
		t.Fatalf("ThreadSuspend() on a never-run thread = %v, want OK", st)
	}

	select {
	case <-started:
		t.Fatal("thread ran despite being suspended")
	case <-time.After(30 * time.Millisecond):
	}

	if st := k.ThreadResume(id); st != rtxoff.OK {
		t.Fatalf("ThreadResume() = %v", st)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("thread never ran after being resumed")
	}
}

// TestThreadTerminateNeverRun verifies terminating a thread that was
// created but never scheduled correctly unlinks it from the ready list
// (it must be ThreadReady, not ThreadInactive, at creation time) rather
// than leaving a stale link for a later-created thread to trip over.
func TestThreadTerminateNeverRun(t *testing.T) {
	k := newRunningKernel(t)

	id, st := k.ThreadNew(func(any) {
		k.Delay(rtxoff.Forever)
	}, nil, rtxoff.ThreadAttr{Name: "victim", Priority: rtxoff.PriorityLow})
	if st != rtxoff.OK {
		t.Fatalf("ThreadNew() = %v", st)
	}

	if st := k.ThreadTerminate(id); st != rtxoff.OK {
		t.Fatalf("ThreadTerminate() on a never-run thread = %v, want OK", st)
	}

	// A subsequent thread must still be schedulable: if termination left a
	// stale link in the ready list, this would hang or panic.
	done := make(chan struct{})
	k.ThreadNew(func(any) {
		close(done)
	}, nil, rtxoff.ThreadAttr{Name: "after", Priority: rtxoff.PriorityNormal})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("thread created after terminating a never-run thread never ran")
	}
}
