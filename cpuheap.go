package hoard

import "sync"

// cpuHeap is a collection of size classes plus aggregate usage/capacity
// counters. id 0 denotes the global heap; ids 1..N denote per-goroutine
// heaps. Unlike superblocks, heaps are ordinary Go-heap values: there are
// only N+1 of them, built once when an Allocator is constructed, so
// allocating their bookkeeping through Go's own runtime allocator does not
// violate the no-self-allocation rule (it never happens on the Malloc/Free
// hot path).
type cpuHeap struct {
	mu sync.Mutex

	id             int
	sizeClasses    []sizeClass
	bytesUsed      int
	bytesAvailable int

	superblockSize int // S, for bytesAvailable bookkeeping
}

func newCPUHeap(id, numberOfSizeClasses, superblockSize int) *cpuHeap {
	h := &cpuHeap{
		id:             id,
		sizeClasses:    make([]sizeClass, numberOfSizeClasses),
		superblockSize: superblockSize,
	}
	for i := range h.sizeClasses {
		h.sizeClasses[i].blockSize = 1 << uint(i)
	}
	return h
}

// addSuperblock attaches sb to size class ci, setting its owner heap and
// updating the aggregate counters. Caller must hold h.mu.
func (h *cpuHeap) addSuperblock(ci int, sb *superblock) {
	sb.ownerHeap = h
	h.sizeClasses[ci].insert(sb)
	h.bytesAvailable += h.superblockSize
	h.bytesUsed += sb.bytesUsed()
}

// removeSuperblock detaches sb from size class ci, clearing its owner heap
// and updating the aggregate counters. Caller must hold h.mu.
func (h *cpuHeap) removeSuperblock(ci int, sb *superblock) {
	h.sizeClasses[ci].remove(sb)
	h.bytesAvailable -= h.superblockSize
	h.bytesUsed -= sb.bytesUsed()
	sb.ownerHeap = nil
}

// allocateFrom pops a block from sb (which must belong to this heap) and
// updates bytesUsed by the resulting delta. Returns nil if sb had no free
// block; callers are expected to have already checked via findAvailable.
func (h *cpuHeap) allocateFrom(ci int, sb *superblock) *blockHeader {
	before := sb.bytesUsed()
	b := h.sizeClasses[ci].allocateBlock(sb)
	if b == nil {
		return nil
	}
	h.bytesUsed += sb.bytesUsed() - before
	return b
}

// freeInto pushes b back into its owning superblock and updates bytesUsed.
// Caller must hold h.mu and sb must belong to this heap.
func (h *cpuHeap) freeInto(ci int, sb *superblock, b *blockHeader) {
	before := sb.bytesUsed()
	h.sizeClasses[ci].freeBlock(sb, b)
	h.bytesUsed += sb.bytesUsed() - before
}

// underUtilized reports the Hoard transfer condition: u < a*(1-f) AND
// u < a-K*S. Caller must hold h.mu.
func (h *cpuHeap) underUtilized(f float64, k int) bool {
	u, a := float64(h.bytesUsed), float64(h.bytesAvailable)
	return u < a*(1-f) && u < a-float64(k*h.superblockSize)
}

// findMostlyEmptySuperblock scans every size class, taking each class's
// findMostlyEmpty, and returns the overall least-full superblock along
// with its size-class index, or (-1, nil) if the heap owns no superblocks.
// Caller must hold h.mu.
func (h *cpuHeap) findMostlyEmptySuperblock() (int, *superblock) {
	bestCI := -1
	var best *superblock
	for ci := range h.sizeClasses {
		sb := h.sizeClasses[ci].findMostlyEmpty()
		if sb == nil {
			continue
		}
		if best == nil || sb.fullness() < best.fullness() {
			best = sb
			bestCI = ci
		}
	}
	return bestCI, best
}
