package rtxoff

// This file implements the post-ISR queue from spec.md §4.4: ISR-context
// API calls (Semaphore.ReleaseISR, EventFlags.SetISR, MessageQueue.PutISR,
// MemoryPool.FreeISR, ThreadFlags.SetISR) must not wake threads inline —
// waking a thread means touching the ready list and possibly preempting,
// which this package only allows from the dispatcher goroutine. Instead
// they enqueue the object here; processQueuedISRData (called by the
// dispatcher right after processInterrupts, still under the kernel lock,
// but outside "ISR mode") drains the queue and performs the real wake.

// enqueueISRWork appends an object needing deferred post-processing.
// Called with the kernel lock held, typically from an ISR-context API
// entry point.
func (k *Kernel) enqueueISRWork(kind objectKind, obj ObjectID) {
	k.isrQueue = append(k.isrQueue, isrWorkItem{kind: kind, obj: obj})
}

// processQueuedISRData drains the post-ISR FIFO. Each entry's kind
// selects the post-process routine that performs the actual wake (and, if
// it raises a newly-ready thread above the running thread's priority,
// requests a preemptive dispatch). Called by the dispatcher with the
// kernel lock held, after processInterrupts and before the tick is
// serviced.
func (k *Kernel) processQueuedISRData() {
	if len(k.isrQueue) == 0 {
		return
	}
	queue := k.isrQueue
	k.isrQueue = nil
	for _, item := range queue {
		switch item.kind {
		case objectKindSemaphore:
			k.semaphorePostProcess(item.obj)
		case objectKindEventFlags:
			k.eventFlagsPostProcess(item.obj)
		case objectKindMsgPut:
			k.messageQueuePostProcessPut(item.obj)
		case objectKindMemoryPool:
			k.memoryPoolPostProcess(item.obj)
		case objectKindThreadFlags:
			k.threadFlagsPostProcess(ThreadID(item.obj))
		}
	}
}
