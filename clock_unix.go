//go:build linux || darwin

package rtxoff

import (
	"time"

	"golang.org/x/sys/unix"
)

// processCPUTime returns the process's CPU-time clock, used when a
// Kernel is configured with ClockProcessCPU for deterministic tests that
// must not depend on wall-clock jitter (spec.md §6's "selection of the
// monotonic clock (wall or process-CPU)").
func processCPUTime() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_PROCESS_CPUTIME_ID, &ts); err != nil {
		return time.Now()
	}
	return time.Unix(ts.Unix())
}
