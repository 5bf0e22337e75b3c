package rtxoff_test

import (
	"fmt"
	"time"

	rtxoff "github.com/rtxoff-go/rtxoff"
)

// Example_basicUsage demonstrates creating a kernel, starting a thread, and
// waiting for it to finish from the host goroutine.
func Example_basicUsage() {
	k := rtxoff.NewKernel(rtxoff.WithTickPeriod(time.Millisecond))
	k.Initialize()

	done, _ := k.EventFlagsNew("done")

	k.ThreadNew(func(any) {
		fmt.Println("thread running")
		done.Set(0x1)
	}, nil, rtxoff.ThreadAttr{Name: "worker", Priority: rtxoff.PriorityNormal})

	k.KernelStart()

	for {
		if _, st := done.Wait(0x1, rtxoff.FlagsWaitAny, 0); st == rtxoff.OK {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Output:
	// thread running
}
