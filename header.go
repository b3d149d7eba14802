package hoard

import "unsafe"

// blockHeader is the fixed-size prefix stored inline at the start of every
// user-visible allocation, whether it came from a superblock slot or from
// the large-block path. The user pointer returned to the caller is always
// the address immediately after the header.
//
// owner is nil for large-block (direct page-provider) allocations; free
// classifies purely on size > maxSlotSize, never on owner, matching the
// spec's note that the reference implementation's indirect owner check is
// unnecessary and should not be replicated.
type blockHeader struct {
	owner *superblock  // nil for large-block allocations
	next  *blockHeader // valid only while linked on a superblock's free stack
	size  int          // size class in bytes (small) or requested size (large)
}

// headerSize is sizeof(blockHeader), rounded up to mallocAlign so that the
// user area following a header is itself aligned.
var headerSize = roundup(int(unsafe.Sizeof(blockHeader{})), mallocAlign)

// blockStride returns the distance between consecutive block slots inside
// a superblock of the given size class: the class size rounded up to a
// header-sized multiple, plus one header's worth of space for the header
// that lives at the front of every slot.
func blockStride(classSize int) int {
	return roundup(classSize, headerSize) + headerSize
}

// headerAt returns the blockHeader stored at p.
func headerAt(p unsafe.Pointer) *blockHeader {
	return (*blockHeader)(p)
}

// userPointer returns the address handed out to the caller for a block
// whose header starts at p.
func userPointer(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(p, headerSize)
}

// headerOf recovers the header address from a user pointer previously
// returned by userPointer.
func headerOf(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(p, -headerSize)
}
