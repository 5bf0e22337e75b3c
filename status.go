package rtxoff

import "fmt"

// Status is the closed result-code taxonomy returned by every kernel API.
// It implements [error] so callers that only care whether an operation
// failed can treat a non-nil, non-OK Status as an ordinary error, while
// callers that care about the exact code can compare with [errors.Is] or
// a direct equality check against a sentinel such as [ErrorTimeout].
type Status int8

const (
	// OK indicates success.
	OK Status = iota
	// ErrorTimeout means the requested timeout expired before the
	// resource became available.
	ErrorTimeout
	// ErrorResource means the operation could not be satisfied
	// immediately and the timeout was zero, or (for release/put) the
	// object is in a terminal or full state.
	ErrorResource
	// ErrorParameter means a null id, wrong id tag, out-of-mask flag
	// bits, invalid priority, or ISR-illegal argument combination was
	// supplied.
	ErrorParameter
	// ErrorISR means the API is not legal from interrupt context, or
	// with interrupts globally masked.
	ErrorISR
	// ErrorNoMemory means control-block or backing-store allocation
	// failed.
	ErrorNoMemory
	// Error is a kernel-state violation, e.g. starting before
	// initializing.
	Error
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case ErrorTimeout:
		return "ErrorTimeout"
	case ErrorResource:
		return "ErrorResource"
	case ErrorParameter:
		return "ErrorParameter"
	case ErrorISR:
		return "ErrorISR"
	case ErrorNoMemory:
		return "ErrorNoMemory"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int8(s))
	}
}

// Error implements the error interface. OK never appears as an error
// value returned from an API (callers should check Status == OK, not
// err == nil), but implementing Error unconditionally keeps Status a
// drop-in error type for generic plumbing.
func (s Status) Error() string {
	return s.String()
}

// Is reports whether target is the same Status code, enabling
// errors.Is(err, rtxoff.ErrorTimeout) against a wrapped Status.
func (s Status) Is(target error) bool {
	t, ok := target.(Status)
	return ok && t == s
}

// KernelPanic wraps the unrecoverable condition this package surfaces to
// the host process: the thread suspender failed to resume, suspend or kill
// a host thread. The process is expected to terminate; callers
// that recover from it (e.g. in tests) can inspect Reason.
type KernelPanic struct {
	Reason string
	Cause  error
}

func (p *KernelPanic) Error() string {
	if p.Cause != nil {
		return fmt.Sprintf("rtxoff: fatal kernel error: %s: %v", p.Reason, p.Cause)
	}
	return fmt.Sprintf("rtxoff: fatal kernel error: %s", p.Reason)
}

func (p *KernelPanic) Unwrap() error {
	return p.Cause
}

// fatal raises a KernelPanic. The dispatcher and terminateLocked call this
// on a Suspender failure instead of returning an error, because there is
// no caller left to hand an error to once a host thread cannot be
// controlled.
func fatal(reason string, cause error) {
	logWarning("kernel", "fatal kernel error", map[string]any{"reason": reason, "cause": cause})
	panic(&KernelPanic{Reason: reason, Cause: cause})
}
