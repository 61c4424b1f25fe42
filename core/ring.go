package core

import (
	"runtime"

	"go.uber.org/atomic"
)

// slotState is the per-slot lifecycle of the fast ring, decoupling
// index reservation (a single CAS) from payload transfer (a plain move
// under a spin).
type slotState uint32

const (
	slotFree slotState = iota
	slotConstructing
	slotValid
	slotDestructing
)

type ringSlot struct {
	state   atomic.Uint32
	payload taskItem
}

// ring is the bounded lock-free fast path of a concurrent deque: a
// circular array addressed by a packed 32-bit (start, end) atomic,
// each half a 16-bit index interpreted modulo 2^16. A reservation fails
// once end-start exceeds capacity() = size-3, so at most size-2
// elements are resident; the remaining headroom prevents the packed
// indices from aliasing under wraparound.
type ring struct {
	slots []ringSlot
	size  uint32
	mask  uint32
	idx   atomic.Uint32
}

func nextPow2(n int) int {
	p := 8
	for p < n {
		p <<= 1
	}
	return p
}

func newRing(size int) *ring {
	sz := nextPow2(size)
	return &ring{
		slots: make([]ringSlot, sz),
		size:  uint32(sz),
		mask:  uint32(sz - 1),
	}
}

func packIdx(start, end uint16) uint32 { return uint32(start)<<16 | uint32(end) }
func unpackIdx(v uint32) (start, end uint16) {
	return uint16(v >> 16), uint16(v)
}

func (r *ring) capacity() uint16 { return uint16(r.size) - 3 }

func (r *ring) reserveBack() (uint16, bool) {
	for {
		old := r.idx.Load()
		start, end := unpackIdx(old)
		if end-start > r.capacity() {
			return 0, false
		}
		next := packIdx(start, end+1)
		if r.idx.CompareAndSwap(old, next) {
			return end, true
		}
	}
}

func (r *ring) reserveFront() (uint16, bool) {
	for {
		old := r.idx.Load()
		start, end := unpackIdx(old)
		if end-start > r.capacity() {
			return 0, false
		}
		next := packIdx(start-1, end)
		if r.idx.CompareAndSwap(old, next) {
			return start - 1, true
		}
	}
}

func (r *ring) consumeFront() (uint16, bool) {
	for {
		old := r.idx.Load()
		start, end := unpackIdx(old)
		if start == end {
			return 0, false
		}
		next := packIdx(start+1, end)
		if r.idx.CompareAndSwap(old, next) {
			return start, true
		}
	}
}

func (r *ring) consumeBack() (uint16, bool) {
	for {
		old := r.idx.Load()
		start, end := unpackIdx(old)
		if start == end {
			return 0, false
		}
		next := packIdx(start, end-1)
		if r.idx.CompareAndSwap(old, next) {
			return end - 1, true
		}
	}
}

func (r *ring) slotFor(pos uint16) *ringSlot {
	return &r.slots[uint32(pos)&r.mask]
}

// publish moves item into the slot reserved at pos. A lagging consumer
// that has not yet observed a prior occupant as freed is waited out
// with a bounded spin; the transfer itself is a straight-line move, so
// the spin resolves quickly in practice.
func (r *ring) publish(pos uint16, item taskItem) {
	slot := r.slotFor(pos)
	for spins := 0; slot.state.Load() != uint32(slotFree); spins++ {
		spinBackoff(spins)
	}
	slot.state.Store(uint32(slotConstructing))
	slot.payload = item
	slot.state.Store(uint32(slotValid))
}

// take moves the payload out of the slot reserved at pos.
func (r *ring) take(pos uint16) taskItem {
	slot := r.slotFor(pos)
	for spins := 0; slot.state.Load() != uint32(slotValid); spins++ {
		spinBackoff(spins)
	}
	slot.state.Store(uint32(slotDestructing))
	item := slot.payload
	slot.payload = taskItem{}
	slot.state.Store(uint32(slotFree))
	return item
}

func spinBackoff(spins int) {
	if spins < 16 {
		// busy-spin briefly: the lagging operation is a plain data
		// move, not a blocking call, so it resolves in a few cycles.
		return
	}
	runtime.Gosched()
}

func (r *ring) pushBack(item taskItem) bool {
	pos, ok := r.reserveBack()
	if !ok {
		return false
	}
	r.publish(pos, item)
	return true
}

func (r *ring) pushFront(item taskItem) bool {
	pos, ok := r.reserveFront()
	if !ok {
		return false
	}
	r.publish(pos, item)
	return true
}

func (r *ring) popFront() (taskItem, bool) {
	pos, ok := r.consumeFront()
	if !ok {
		return taskItem{}, false
	}
	return r.take(pos), true
}

func (r *ring) popBack() (taskItem, bool) {
	pos, ok := r.consumeBack()
	if !ok {
		return taskItem{}, false
	}
	return r.take(pos), true
}
