package rtxoff_test

import (
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

func TestMessageQueuePriorityOrdering(t *testing.T) {
	k := newRunningKernel(t)
	q, st := k.MessageQueueNew("q", 4, 8)
	if st != rtxoff.OK {
		t.Fatalf("MessageQueueNew() = %v", st)
	}

	if st := q.Put([]byte("low"), 1, 0); st != rtxoff.OK {
		t.Fatalf("Put(low) = %v", st)
	}
	if st := q.Put([]byte("high"), 5, 0); st != rtxoff.OK {
		t.Fatalf("Put(high) = %v", st)
	}
	if st := q.Put([]byte("mid1"), 3, 0); st != rtxoff.OK {
		t.Fatalf("Put(mid1) = %v", st)
	}
	if st := q.Put([]byte("mid2"), 3, 0); st != rtxoff.OK {
		t.Fatalf("Put(mid2) = %v", st)
	}

	buf := make([]byte, 8)
	want := []struct {
		payload  string
		priority rtxoff.Priority
	}{
		{"high", 5}, {"mid1", 3}, {"mid2", 3}, {"low", 1},
	}
	for _, w := range want {
		n, pr, st := q.Get(buf, 0)
		if st != rtxoff.OK {
			t.Fatalf("Get() = %v", st)
		}
		if string(buf[:n]) != w.payload || pr != w.priority {
			t.Fatalf("Get() = (%q, %d), want (%q, %d)", buf[:n], pr, w.payload, w.priority)
		}
	}
}

func TestMessageQueuePutBypassesToBlockedReader(t *testing.T) {
	k := newRunningKernel(t)
	q, _ := k.MessageQueueNew("q", 1, 8)

	result := make(chan string, 1)
	k.ThreadNew(func(any) {
		buf := make([]byte, 8)
		n, _, st := q.Get(buf, rtxoff.Forever)
		if st != rtxoff.OK {
			t.Errorf("Get() = %v, want OK", st)
		}
		result <- string(buf[:n])
	}, nil, rtxoff.ThreadAttr{Name: "reader", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond) // ensure the reader is actually blocked
	if st := q.Put([]byte("hello"), 0, 0); st != rtxoff.OK {
		t.Fatalf("Put() = %v", st)
	}

	select {
	case got := <-result:
		if got != "hello" {
			t.Fatalf("reader received %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("reader never woke after bypass Put")
	}
	// A bypassed message never touches slot storage.
	if n := q.GetCount(); n != 0 {
		t.Fatalf("GetCount() after bypass = %d, want 0", n)
	}
}

func TestMessageQueuePutISRNeverBypasses(t *testing.T) {
	k := newRunningKernel(t)
	q, _ := k.MessageQueueNew("q", 1, 8)

	result := make(chan string, 1)
	k.ThreadNew(func(any) {
		buf := make([]byte, 8)
		n, _, _ := q.Get(buf, rtxoff.Forever)
		result <- string(buf[:n])
	}, nil, rtxoff.ThreadAttr{Name: "reader", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond)
	if st := q.PutISR([]byte("world"), 0); st != rtxoff.OK {
		t.Fatalf("PutISR() = %v", st)
	}

	select {
	case got := <-result:
		if got != "world" {
			t.Fatalf("reader received %q after PutISR, want %q", got, "world")
		}
	case <-time.After(time.Second):
		t.Fatal("reader never woke after PutISR's deferred wake")
	}
}

func TestMessageQueueFullAndEmptyTimeouts(t *testing.T) {
	k := newRunningKernel(t)
	q, _ := k.MessageQueueNew("q", 1, 4)

	if st := q.Put([]byte("x"), 0, 0); st != rtxoff.OK {
		t.Fatalf("first Put() = %v", st)
	}
	if st := q.Put([]byte("y"), 0, 0); st != rtxoff.ErrorResource {
		t.Fatalf("Put() on full queue with zero timeout = %v, want ErrorResource", st)
	}

	empty, _ := k.MessageQueueNew("empty", 1, 4)
	buf := make([]byte, 4)
	if _, _, st := empty.Get(buf, 0); st != rtxoff.ErrorResource {
		t.Fatalf("Get() on empty queue with zero timeout = %v, want ErrorResource", st)
	}
}
