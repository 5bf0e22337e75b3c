//go:build linux || darwin

package rtxoff

import (
	"os/signal"
	"runtime"

	"golang.org/x/sys/unix"
)

func init() {
	// SIGUSR1's default disposition is process termination; reserve it
	// for the suspend-nudge signal and make it a harmless no-op when
	// delivered anywhere other than the targeted tid.
	signal.Ignore(unix.SIGUSR1)
}

// nativeSuspendData is the POSIX-signal back-end's per-thread native
// state: the OS thread id a blocking syscall interrupt (tgkill) targets,
// captured once the thread has pinned itself with runtime.LockOSThread.
// Grounded on the teacher's wakeup_linux.go, which likewise keeps a
// platform-specific struct of raw fd/tid state next to the portable
// wakeup mechanism.
type nativeSuspendData struct {
	tid int
}

// posixSignalSuspender is the Linux/Darwin back-end described in
// spec.md §4.1 bullet 2: a dedicated signal is reserved to interrupt a
// target thread that may be blocked in a syscall (e.g. a spurious
// futex/poll wait inside the Go runtime), after which the thread parks
// on suspendHandle's condition variable until resumed or killed. True
// suspension of arbitrary native code at an arbitrary instruction is not
// expressible in portable Go without cgo (no sigaction-installed handler
// can run on the target's own stack). The condition-variable handshake is therefore the actual
// suspension mechanism, and Tgkill exists to make sure a thread
// currently inside a blocking syscall notices promptly rather than only
// at its next cooperative checkpoint.
type posixSignalSuspender struct{}

func defaultSuspender() Suspender { return posixSignalSuspender{} }

func (posixSignalSuspender) Spawn(entry func()) (*suspendHandle, error) {
	h := newSuspendHandle(entry)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		h.native.tid = unix.Gettid()
		close(h.started)
		for {
			if killed := h.parkUntilResumed(); killed {
				return
			}
			h.entry()
			return
		}
	}()
	h.waitStartHandshake()
	return h, nil
}

func (posixSignalSuspender) Suspend(h *suspendHandle) error {
	if err := h.requestSuspend(); err != nil {
		return err
	}
	// Best-effort nudge in case the target is blocked in a syscall
	// rather than already at a cooperative checkpoint.
	_ = unix.Tgkill(unix.Getpid(), h.native.tid, unix.SIGUSR1)
	return nil
}

func (posixSignalSuspender) Resume(h *suspendHandle) error {
	return h.requestResume()
}

func (posixSignalSuspender) Kill(h *suspendHandle) error {
	h.requestKill()
	return nil
}
