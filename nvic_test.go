package rtxoff_test

import (
	"testing"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

func TestNVICEncodeDecodePriorityRoundTrip(t *testing.T) {
	cases := []struct {
		group           int
		preempt, sub    uint8
	}{
		{0, 0x7F, 0x01},
		{3, 0x0F, 0x0F},
		{7, 0x00, 0xFF},
	}
	for _, c := range cases {
		packed := rtxoff.NVICEncodePriority(c.group, c.preempt, c.sub)
		gotPreempt, gotSub := rtxoff.NVICDecodePriority(packed, c.group)
		wantPreemptBits := 7 - c.group
		if wantPreemptBits < 0 {
			wantPreemptBits = 0
		}
		wantSubBits := 8 - wantPreemptBits
		wantPreempt := c.preempt & ((1 << wantPreemptBits) - 1)
		wantSub := c.sub & ((1 << wantSubBits) - 1)
		if gotPreempt != wantPreempt || gotSub != wantSub {
			t.Fatalf("group %d: round-trip(%#x,%#x) = (%#x,%#x), want (%#x,%#x)",
				c.group, c.preempt, c.sub, gotPreempt, gotSub, wantPreempt, wantSub)
		}
	}
}

func TestNVICEnablePendingPriorityVector(t *testing.T) {
	k := newRunningKernel(t)

	if st := k.NVICSetEnable(5, true); st != rtxoff.OK {
		t.Fatalf("NVICSetEnable() = %v", st)
	}
	if en, _ := k.NVICGetEnable(5); !en {
		t.Fatal("NVICGetEnable() = false after enabling")
	}
	if st := k.NVICSetPriority(5, 10); st != rtxoff.OK {
		t.Fatalf("NVICSetPriority() = %v", st)
	}
	if p, _ := k.NVICGetPriority(5); p != 10 {
		t.Fatalf("NVICGetPriority() = %d, want 10", p)
	}

	fired := make(chan struct{}, 1)
	k.NVICSetVector(5, func() { fired <- struct{}{} })

	if st := k.NVICSetPendingIRQ(5); st != rtxoff.OK {
		t.Fatalf("NVICSetPendingIRQ() = %v", st)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("IRQ 5's handler never ran after NVICSetPendingIRQ")
	}

	if pending, _ := k.NVICGetPendingIRQ(5); pending {
		t.Fatal("NVICGetPendingIRQ() = true, want false after dispatch cleared it")
	}
}

func TestNVICSetPendingIRQOnDisabledLineFails(t *testing.T) {
	k := newRunningKernel(t)
	if st := k.NVICSetPendingIRQ(7); st != rtxoff.ErrorParameter {
		t.Fatalf("NVICSetPendingIRQ() on a never-enabled line = %v, want ErrorParameter", st)
	}
}

func TestNVICOutOfRangeIRQIsErrorParameter(t *testing.T) {
	k := newRunningKernel(t)
	if st := k.NVICSetEnable(rtxoff.MaxIRQ, true); st != rtxoff.ErrorParameter {
		t.Fatalf("NVICSetEnable(MaxIRQ) = %v, want ErrorParameter", st)
	}
	if st := k.NVICSetEnable(-1, true); st != rtxoff.ErrorParameter {
		t.Fatalf("NVICSetEnable(-1) = %v, want ErrorParameter", st)
	}
}
