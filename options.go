// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package rtxoff

import "time"

// ClockSource selects the monotonic time source driving kernel ticks.
type ClockSource int8

const (
	// ClockWall ticks from wall-clock (monotonic) time.
	ClockWall ClockSource = iota
	// ClockProcessCPU ticks from process CPU time, useful for
	// deterministic tests that must not depend on wall-clock jitter.
	ClockProcessCPU
)

// Config holds the compile-time constants spec.md §6 calls out: tick
// period, stack sizes, round-robin quantum, timer-queue length, and
// clock source selection. Stack sizes are accepted for API fidelity with
// the CMSIS-RTOS surface but are advisory only — Go goroutines grow their
// stacks on demand.
type Config struct {
	TickPeriod          time.Duration
	RoundRobinQuantum    uint32
	ThreadStackSize      uint32
	IdleThreadStackSize  uint32
	TimerThreadStackSize uint32
	TimerQueueLength     uint32
	ClockSource          ClockSource
	Suspender            Suspender
	IdleHook             func()
	ThreadExitHook       func(id ThreadID)
	ErrorHook            func(err error)
}

func defaultConfig() Config {
	return Config{
		TickPeriod:           time.Millisecond,
		RoundRobinQuantum:    5,
		ThreadStackSize:      4096,
		IdleThreadStackSize:  1024,
		TimerThreadStackSize: 2048,
		TimerQueueLength:     16,
		ClockSource:          ClockWall,
	}
}

// KernelOption configures a Kernel at construction time.
type KernelOption interface {
	applyKernel(*Config)
}

// kernelOptionImpl implements KernelOption, mirroring the loopOptionImpl
// closure-over-apply-func pattern.
type kernelOptionImpl struct {
	fn func(*Config)
}

func (k *kernelOptionImpl) applyKernel(cfg *Config) {
	k.fn(cfg)
}

// WithTickPeriod sets the wall-clock duration of one kernel tick.
func WithTickPeriod(d time.Duration) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.TickPeriod = d }}
}

// WithRoundRobinQuantum sets the number of ticks a Running thread may
// hold the CPU before round-robin rotation among equal-priority ready
// threads. Zero disables round-robin.
func WithRoundRobinQuantum(ticks uint32) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.RoundRobinQuantum = ticks }}
}

// WithThreadStackSize sets the advisory stack size hint for new threads.
func WithThreadStackSize(bytes uint32) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.ThreadStackSize = bytes }}
}

// WithIdleThreadStackSize sets the advisory stack size hint for the idle thread.
func WithIdleThreadStackSize(bytes uint32) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.IdleThreadStackSize = bytes }}
}

// WithTimerThreadStackSize sets the advisory stack size hint for the timer service thread.
func WithTimerThreadStackSize(bytes uint32) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.TimerThreadStackSize = bytes }}
}

// WithTimerQueueLength sets the depth of the timer callback queue.
func WithTimerQueueLength(n uint32) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.TimerQueueLength = n }}
}

// WithClockSource selects the monotonic time source driving ticks.
func WithClockSource(src ClockSource) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.ClockSource = src }}
}

// WithSuspender overrides the thread-suspender back-end. If unset, the
// build-tag-selected platform default (see suspender_unix.go /
// suspender_windows.go) is used.
func WithSuspender(s Suspender) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.Suspender = s }}
}

// WithIdleHook sets a function the idle thread calls, outside the kernel
// lock, on each pass of its loop (the idle thread runs only when nothing
// else is ready).
func WithIdleHook(fn func()) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.IdleHook = fn }}
}

// WithThreadExitHook sets a function called, outside the kernel lock,
// whenever a thread terminates (via ThreadExit or ThreadTerminate), before
// its control block is freed.
func WithThreadExitHook(fn func(ThreadID)) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.ThreadExitHook = fn }}
}

// WithErrorHook sets a function invoked when interrupt-delivered work
// fails (e.g. timer-queue overflow). Such failures do not halt the
// kernel; this hook is the only notification.
func WithErrorHook(fn func(error)) KernelOption {
	return &kernelOptionImpl{func(cfg *Config) { cfg.ErrorHook = fn }}
}

func resolveConfig(opts []KernelOption) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyKernel(&cfg)
	}
	if cfg.Suspender == nil {
		cfg.Suspender = defaultSuspender()
	}
	return cfg
}
