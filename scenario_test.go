package rtxoff_test

import (
	"sync"
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

// TestScenarioPriorityPreemption verifies that a higher-priority thread
// becoming Ready preempts a lower-priority thread immediately rather than
// waiting for its turn, per spec.md §8.
func TestScenarioPriorityPreemption(t *testing.T) {
	k := newRunningKernel(t)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	lowStarted := make(chan struct{})
	lowDone := make(chan struct{})
	k.ThreadNew(func(any) {
		record("low-start")
		close(lowStarted)
		for i := 0; i < 200; i++ {
			k.Delay(1)
		}
		record("low-end")
		close(lowDone)
	}, nil, rtxoff.ThreadAttr{Name: "low", Priority: rtxoff.PriorityLow})

	<-lowStarted

	highDone := make(chan struct{})
	k.ThreadNew(func(any) {
		record("high-start")
		record("high-end")
		close(highDone)
	}, nil, rtxoff.ThreadAttr{Name: "high", Priority: rtxoff.PriorityHigh})

	select {
	case <-highDone:
	case <-time.After(time.Second):
		t.Fatal("high-priority thread never completed")
	}

	select {
	case <-lowDone:
	case <-time.After(2 * time.Second):
		t.Fatal("low-priority thread never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 3 || order[0] != "low-start" || order[1] != "high-start" || order[2] != "high-end" {
		t.Fatalf("order = %v, want high to run to completion right after starting, ahead of low-end", order)
	}
}

// TestScenarioDelayOrdering verifies threads sleeping for different
// durations wake in the order their deadlines expire (spec.md §8, delay
// list ordering).
func TestScenarioDelayOrdering(t *testing.T) {
	k := newRunningKernel(t)

	var mu sync.Mutex
	var order []string
	wg := make(chan struct{}, 3)

	spawn := func(name string, ticks rtxoff.Ticks) {
		k.ThreadNew(func(any) {
			k.Delay(ticks)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			wg <- struct{}{}
		}, nil, rtxoff.ThreadAttr{Name: name, Priority: rtxoff.PriorityNormal})
	}

	spawn("c", 90)
	spawn("a", 30)
	spawn("b", 60)

	for i := 0; i < 3; i++ {
		select {
		case <-wg:
		case <-time.After(2 * time.Second):
			t.Fatal("not all delayed threads woke")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Fatalf("wake order = %v, want %v", order, want)
	}
}

// TestScenarioRoundRobin verifies that two equal-priority threads, each
// delaying one tick per iteration, both make full progress with a
// round-robin quantum configured, rather than one starving the other
// (spec.md §8).
func TestScenarioRoundRobin(t *testing.T) {
	k := rtxoff.NewKernel(rtxoff.WithTickPeriod(time.Millisecond), rtxoff.WithRoundRobinQuantum(2))
	if st := k.Initialize(); st != rtxoff.OK {
		t.Fatalf("Initialize() = %v", st)
	}
	if st := k.KernelStart(); st != rtxoff.OK {
		t.Fatalf("KernelStart() = %v", st)
	}

	var aCount, bCount int
	var mu sync.Mutex
	done := make(chan struct{}, 2)

	spin := func(counter *int) {
		k.ThreadNew(func(any) {
			for i := 0; i < 50; i++ {
				mu.Lock()
				*counter++
				mu.Unlock()
				k.Delay(1)
			}
			done <- struct{}{}
		}, nil, rtxoff.ThreadAttr{Name: "spin", Priority: rtxoff.PriorityNormal})
	}
	spin(&aCount)
	spin(&bCount)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("round-robin threads never finished")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if aCount != 50 || bCount != 50 {
		t.Fatalf("aCount=%d bCount=%d, want both 50 (both threads must make full progress)", aCount, bCount)
	}
}

// TestScenarioISRToThreadWake verifies a simulated ISR handler can wake a
// thread blocked on a semaphore via the deferred ISR-post-process path
// (spec.md §8, §4.4).
func TestScenarioISRToThreadWake(t *testing.T) {
	k := newRunningKernel(t)
	sem, _ := k.SemaphoreNew("isr-sem", 1, 0)

	woken := make(chan struct{})
	k.ThreadNew(func(any) {
		sem.Acquire(rtxoff.Forever)
		close(woken)
	}, nil, rtxoff.ThreadAttr{Name: "waiter", Priority: rtxoff.PriorityNormal})

	time.Sleep(20 * time.Millisecond)

	k.NVICSetEnable(9, true)
	k.NVICSetVector(9, func() { sem.ReleaseISR() })
	k.NVICSetPendingIRQ(9)

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("thread never woke via the simulated ISR path")
	}
}
