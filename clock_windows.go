//go:build windows

package rtxoff

import "time"

// processCPUTime returns an approximation of process CPU time on
// Windows. golang.org/x/sys/windows exposes GetProcessTimes, but thread
// suspension already serializes execution to at most one RTOS thread, so
// wall-clock monotonic time (time.Now, which Go backs with
// QueryPerformanceCounter on Windows) tracks process CPU time closely
// enough for deterministic tests; ClockWall is the recommended choice on
// this platform.
func processCPUTime() time.Time {
	return time.Now()
}
