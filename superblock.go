package hoard

import (
	"fmt"
	"sync"
	"unsafe"
)

// superblock is a fixed-size region partitioned into equal-sized blocks of
// one size class. Its metadata is cast directly onto the start of the
// mmap'd region obtained for it — exactly the teacher allocator's own
// approach for its page type — so that creating a superblock never
// allocates Go-heap memory for the allocator's own bookkeeping. The data
// area, sized at construction to the configured superblock size, begins at
// superblockMetaSize bytes past the superblock pointer itself.
//
// Superblocks are never unmapped once created (spec §4.6: destroyed is an
// unused state); they are conceptually immortal for the life of the
// process, which is what makes it safe for a superblock's prev/next/owner
// pointers to reference other superblocks without any GC involvement —
// none of this memory is ever reclaimed out from under a live pointer.
type superblock struct {
	mu   sync.Mutex
	prev *superblock
	next *superblock

	ownerHeap *cpuHeap
	freeHead  *blockHeader

	totalCount int
	freeCount  int
	blockSize  int // size-class bytes served by this superblock
	stride     int // bytes between consecutive block slots
	dataSize   int // bytes in the data area (== Config.SuperblockSize)
}

var superblockMetaSize = roundup(int(unsafe.Sizeof(superblock{})), mallocAlign)

// dataStart returns the address of the first block slot in sb.
func (sb *superblock) dataStart() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(sb), superblockMetaSize)
}

// makeSuperblock acquires dataSize+superblockMetaSize bytes from pages and
// initializes a fresh superblock of the given size class, with every block
// already linked onto the free stack in ascending address order (so the
// first pop returns the lowest-address block, per spec §4.2).
func makeSuperblock(pages PageProvider, dataSize, classSizeBytes int) (*superblock, error) {
	stride := blockStride(classSizeBytes)
	if dataSize < stride {
		return nil, fmt.Errorf("hoard: superblock size %d too small to hold a single %d-byte block (stride %d)", dataSize, classSizeBytes, stride)
	}

	total := superblockMetaSize + dataSize
	raw, err := pages.AcquirePages(total)
	if err != nil {
		return nil, err
	}

	sb := (*superblock)(raw)
	*sb = superblock{}
	sb.blockSize = classSizeBytes
	sb.stride = stride
	sb.dataSize = dataSize
	sb.totalCount = dataSize / sb.stride
	sb.freeCount = sb.totalCount

	base := sb.dataStart()
	var prev *blockHeader
	for i := sb.totalCount - 1; i >= 0; i-- {
		h := headerAt(unsafe.Add(base, i*sb.stride))
		h.owner = sb
		h.size = classSizeBytes
		h.next = prev
		prev = h
	}
	sb.freeHead = prev
	return sb, nil
}

// popBlock detaches and returns the head of the free stack, or nil if the
// superblock is fully allocated. Caller must hold the owning heap's lock.
func (sb *superblock) popBlock() *blockHeader {
	h := sb.freeHead
	if h == nil {
		return nil
	}
	sb.freeHead = h.next
	h.next = nil
	sb.freeCount--
	return h
}

// pushBlock links b back onto the head of the free stack. Caller must hold
// the owning heap's lock and b must belong to sb.
func (sb *superblock) pushBlock(b *blockHeader) {
	b.next = sb.freeHead
	sb.freeHead = b
	sb.freeCount++
}

// fullness returns (total-free)/total in [0,1]. Caller must hold sb.mu or
// otherwise know no concurrent pop/push is in flight.
func (sb *superblock) fullness() float64 {
	return float64(sb.totalCount-sb.freeCount) / float64(sb.totalCount)
}

// bytesUsed returns the number of bytes backing allocated (non-free)
// blocks in sb.
func (sb *superblock) bytesUsed() int {
	return (sb.totalCount - sb.freeCount) * sb.stride
}
