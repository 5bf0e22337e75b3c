//go:build windows

package rtxoff

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

// nativeSuspendData is the native-suspend back-end's per-thread state: a
// duplicated handle to the thread's own OS thread, opened once it has
// pinned itself with runtime.LockOSThread. Grounded on the teacher's
// wakeup_windows.go / poller_windows.go pattern of keeping a Windows
// handle alongside the portable wakeup mechanism.
type nativeSuspendData struct {
	handle windows.Handle
}

// nativeSuspendSuspender is the Windows back-end from spec.md §4.1
// bullet 1: SuspendThread/ResumeThread give genuine, involuntary
// suspension at an arbitrary instruction, layered under the same
// suspendHandle condition-variable FSM so Spawn/Suspend/Resume/Kill
// present one capability regardless of back-end.
type nativeSuspendSuspender struct{}

func defaultSuspender() Suspender { return nativeSuspendSuspender{} }

func (nativeSuspendSuspender) Spawn(entry func()) (*suspendHandle, error) {
	h := newSuspendHandle(entry)
	var openErr error
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		proc := windows.CurrentProcess()
		var handle windows.Handle
		openErr = windows.DuplicateHandle(proc, windows.CurrentThread(), proc, &handle, 0, false, windows.DUPLICATE_SAME_ACCESS)
		h.native.handle = handle
		close(h.started)
		if openErr != nil {
			return
		}
		for {
			if killed := h.parkUntilResumed(); killed {
				return
			}
			h.entry()
			return
		}
	}()
	h.waitStartHandshake()
	if openErr != nil {
		return nil, fmt.Errorf("rtxoff: duplicate thread handle: %w", openErr)
	}
	return h, nil
}

func (nativeSuspendSuspender) Suspend(h *suspendHandle) error {
	if err := h.requestSuspend(); err != nil {
		return err
	}
	if _, err := windows.SuspendThread(h.native.handle); err != nil {
		return fmt.Errorf("rtxoff: SuspendThread: %w", err)
	}
	return nil
}

func (nativeSuspendSuspender) Resume(h *suspendHandle) error {
	if err := h.requestResume(); err != nil {
		return err
	}
	if _, err := windows.ResumeThread(h.native.handle); err != nil {
		return fmt.Errorf("rtxoff: ResumeThread: %w", err)
	}
	return nil
}

func (nativeSuspendSuspender) Kill(h *suspendHandle) error {
	h.requestKill()
	_, err := windows.ResumeThread(h.native.handle)
	return err
}
