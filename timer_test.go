package rtxoff_test

import (
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

func TestTimerOneShotFiresOnce(t *testing.T) {
	k := newRunningKernel(t)
	fired := make(chan struct{}, 8)
	tm, st := k.TimerNew("once", false, func(any) { fired <- struct{}{} }, nil)
	if st != rtxoff.OK {
		t.Fatalf("TimerNew() = %v", st)
	}
	if st := tm.Start(10); st != rtxoff.OK {
		t.Fatalf("Start() = %v", st)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("one-shot timer never fired")
	}

	select {
	case <-fired:
		t.Fatal("one-shot timer fired a second time")
	case <-time.After(100 * time.Millisecond):
	}
	if tm.IsRunning() {
		t.Fatal("IsRunning() = true after a one-shot timer fired")
	}
}

func TestTimerPeriodicFiresRepeatedly(t *testing.T) {
	k := newRunningKernel(t)
	fired := make(chan struct{}, 8)
	tm, _ := k.TimerNew("periodic", true, func(any) { fired <- struct{}{} }, nil)
	tm.Start(5)

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("periodic timer only fired %d times, want at least 3", i)
		}
	}
	tm.Stop()
}

func TestTimerStopDisarms(t *testing.T) {
	k := newRunningKernel(t)
	fired := make(chan struct{}, 1)
	tm, _ := k.TimerNew("t", false, func(any) { fired <- struct{}{} }, nil)
	tm.Start(50)
	if st := tm.Stop(); st != rtxoff.OK {
		t.Fatalf("Stop() = %v", st)
	}
	if tm.IsRunning() {
		t.Fatal("IsRunning() = true after Stop()")
	}

	select {
	case <-fired:
		t.Fatal("stopped timer fired anyway")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTimerStartWhileArmedReschedules(t *testing.T) {
	k := newRunningKernel(t)
	fired := make(chan struct{}, 8)
	tm, _ := k.TimerNew("t", false, func(any) { fired <- struct{}{} }, nil)
	tm.Start(1000)
	time.Sleep(10 * time.Millisecond)
	tm.Start(10) // reschedule to fire much sooner

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("rescheduled timer never fired")
	}
}

func TestTimerDeleteDisarmsAndFrees(t *testing.T) {
	k := newRunningKernel(t)
	fired := make(chan struct{}, 1)
	tm, _ := k.TimerNew("t", false, func(any) { fired <- struct{}{} }, nil)
	tm.Start(50)
	if st := tm.Delete(); st != rtxoff.OK {
		t.Fatalf("Delete() = %v", st)
	}

	select {
	case <-fired:
		t.Fatal("deleted timer fired anyway")
	case <-time.After(200 * time.Millisecond):
	}
}
