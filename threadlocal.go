package rtxoff

import (
	"runtime"
	"sync"
)

// This package's public API (Delay, ThreadExit, Mutex.Acquire, ...)
// mirrors CMSIS-RTOS's style of operating on "the calling thread" with no
// explicit handle, which only works on a real target because the CPU
// always knows its current TCB. Go has no such hook, so each RTOS thread's
// goroutine registers its own goroutine ID against its ThreadID the
// moment it starts running (runThreadEntry), the same
// parse-runtime.Stack's-"goroutine N" trick the teacher uses for its own
// single-goroutine affinity check (loop.go's isLoopThread/
// getGoroutineID).
type threadRegistry struct {
	mu      sync.Mutex
	byGID   map[uint64]ThreadID
}

func (r *threadRegistry) register(gid uint64, id ThreadID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byGID == nil {
		r.byGID = make(map[uint64]ThreadID)
	}
	r.byGID[gid] = id
}

func (r *threadRegistry) unregister(gid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byGID, gid)
}

func (r *threadRegistry) lookup(gid uint64) (ThreadID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byGID[gid]
	return id, ok
}

// getGoroutineID returns the calling goroutine's runtime ID by parsing the
// "goroutine N [...]" header runtime.Stack prints for the current
// goroutine. Same technique as the teacher's getGoroutineID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// currentThreadID resolves the calling goroutine to its ThreadID. The
// second return is false if called from a goroutine that isn't a
// registered RTOS thread (e.g. the host's bootstrap goroutine).
func (k *Kernel) currentThreadID() (ThreadID, bool) {
	return k.registry.lookup(getGoroutineID())
}
