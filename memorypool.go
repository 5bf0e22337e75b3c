package rtxoff

// memoryPoolCB is a fixed-block memory pool's control block (spec.md
// §3/§4.7's "Memory pool"). Blocks are pre-allocated as a slice of byte
// slices and handed out by index; free is a LIFO stack of currently-unused
// indices. This is a deliberate simplification of the original firmware's
// literal free-list-threaded-through-block-storage design (the first
// machine word of each free block holds the next free block's address):
// Go has no portable way to alias a []byte's header as a pointer, and a
// plain index stack gives identical O(1) alloc/free behavior — see
// DESIGN.md.
type memoryPoolCB struct {
	hdr        objectHeader
	blockSize  uint32
	blockCount uint32
	blocks     [][]byte
	free       []int32
}

// MemoryPool is a handle to a kernel fixed-block memory pool.
type MemoryPool struct {
	k  *Kernel
	id ObjectID
}

// MemoryPoolNew creates a pool of blockCount blocks, each blockSize bytes.
func (k *Kernel) MemoryPoolNew(name string, blockCount, blockSize uint32) (*MemoryPool, Status) {
	if blockCount == 0 || blockSize == 0 {
		return nil, ErrorParameter
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, p := k.pools.alloc()
	blocks := make([][]byte, blockCount)
	free := make([]int32, blockCount)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
		free[blockCount-1-uint32(i)] = int32(i)
	}
	*p = memoryPoolCB{
		hdr:        objectHeader{valid: true, name: name, waitHead: noThread},
		blockSize:  blockSize,
		blockCount: blockCount,
		blocks:     blocks,
		free:       free,
	}
	return &MemoryPool{k: k, id: ObjectID(idx)}, OK
}

func (p *MemoryPool) cb() *memoryPoolCB {
	return p.k.pools.get(int32(p.id))
}

// GetName returns the pool's display name.
func (p *MemoryPool) GetName() string {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	return p.cb().hdr.name
}

// GetCapacity returns the total block count.
func (p *MemoryPool) GetCapacity() uint32 {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	return p.cb().blockCount
}

// GetBlockSize returns the size, in bytes, of each block.
func (p *MemoryPool) GetBlockSize() uint32 {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	return p.cb().blockSize
}

// GetCount returns the number of blocks currently allocated.
func (p *MemoryPool) GetCount() uint32 {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	cb := p.cb()
	return cb.blockCount - uint32(len(cb.free))
}

// GetSpace returns the number of blocks currently free.
func (p *MemoryPool) GetSpace() uint32 {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	return uint32(len(p.cb().free))
}

// Delete destroys the pool, waking every waiter with ErrorResource.
func (p *MemoryPool) Delete() Status {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := p.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	for cb.hdr.waitHead != noThread {
		w := k.threadListGet(&cb.hdr.waitHead)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, ErrorResource, 0)
	}
	k.pools.release(int32(p.id))
	k.dispatch(noThread)
	return OK
}

// Alloc reserves one block, blocking up to timeout ticks if the pool is
// exhausted. The returned slice has length GetBlockSize() and is zeroed.
func (p *MemoryPool) Alloc(timeout Ticks) ([]byte, Status) {
	k := p.k
	k.mu.Lock()
	cb := p.cb()
	if !cb.hdr.valid {
		k.mu.Unlock()
		return nil, ErrorParameter
	}
	if n := len(cb.free); n > 0 {
		blk := cb.blocks[cb.free[n-1]]
		cb.free = cb.free[:n-1]
		k.mu.Unlock()
		clear(blk)
		return blk, OK
	}
	if timeout == 0 {
		k.mu.Unlock()
		return nil, ErrorResource
	}
	id, ok := k.currentThreadID()
	if !ok {
		k.mu.Unlock()
		return nil, Error
	}
	t := k.thread(id)
	t.waitKind = objectKindMemoryPool
	t.waitObject = p.id
	k.threadListPut(&cb.hdr.waitHead, id)
	k.threadBlock(id, ThreadBlockedMemoryPool)
	if timeout == Forever {
		k.delayListInsert(id, 0, true)
	} else {
		k.delayListInsert(id, int64(timeout), false)
	}
	k.blockUntilWoken(id)

	res := t.waitExit
	k.mu.Unlock()
	if !res.present {
		return nil, ErrorTimeout
	}
	if res.status != OK {
		return nil, res.status
	}
	blk := cb.blocks[int32(res.value)]
	clear(blk)
	return blk, OK
}

// Free returns a block, previously obtained from Alloc, to the pool. If a
// thread is blocked in Alloc, the block is handed to it directly rather
// than pushed onto the free stack.
func (p *MemoryPool) Free(block []byte) Status {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := p.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	idx := p.blockIndex(block)
	if idx < 0 {
		return ErrorParameter
	}
	if cb.hdr.waitHead != noThread {
		w := k.threadListGet(&cb.hdr.waitHead)
		k.thread(w).waitKind = objectKindNone
		k.thread(w).waitObject = noObject
		k.threadWaitExit(w, OK, uint64(idx))
		k.dispatch(noThread)
		return OK
	}
	cb.free = append(cb.free, idx)
	return OK
}

// FreeISR is the ISR-context equivalent of Free: the block is returned (or
// handed off) immediately, but any resulting wake is deferred to the
// post-ISR queue.
func (p *MemoryPool) FreeISR(block []byte) Status {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()
	cb := p.cb()
	if !cb.hdr.valid {
		return ErrorParameter
	}
	idx := p.blockIndex(block)
	if idx < 0 {
		return ErrorParameter
	}
	if cb.hdr.waitHead == noThread {
		cb.free = append(cb.free, idx)
		return OK
	}
	// Stash the freed index where memoryPoolPostProcess can find it: the
	// simplest correct approach is to push it back now and let the
	// post-process path pop it again for the waiter, since nothing else
	// can race the pool between here and the deferred pass (the lock is
	// held continuously by the dispatcher across ISR-queue drain).
	cb.free = append(cb.free, idx)
	k.enqueueISRWork(objectKindMemoryPool, p.id)
	return OK
}

// blockIndex returns block's slot index in cb.blocks, or -1 if it is not
// a block belonging to this pool (by identity of the underlying array).
func (p *MemoryPool) blockIndex(block []byte) int32 {
	cb := p.cb()
	for i, b := range cb.blocks {
		if len(block) == len(b) && &block[0] == &b[0] {
			return int32(i)
		}
	}
	return -1
}

// memoryPoolPostProcess performs the deferred wake for a FreeISR call.
func (k *Kernel) memoryPoolPostProcess(id ObjectID) {
	cb := k.pools.get(int32(id))
	if !cb.hdr.valid || cb.hdr.waitHead == noThread || len(cb.free) == 0 {
		return
	}
	idx := cb.free[len(cb.free)-1]
	cb.free = cb.free[:len(cb.free)-1]
	w := k.threadListGet(&cb.hdr.waitHead)
	k.thread(w).waitKind = objectKindNone
	k.thread(w).waitObject = noObject
	k.threadWaitExit(w, OK, uint64(idx))
	k.dispatch(noThread)
}
