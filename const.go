package hoard

import "os"

var (
	osPageSize = os.Getpagesize()
	osPageMask = osPageSize - 1
)

// Reference tunables from the Hoard design. These are the zero-value
// defaults for Config; see Config for how to override them.
const (
	// DefaultSuperblockSize is the reference superblock size S, in bytes.
	DefaultSuperblockSize = 65536

	// DefaultNumberOfHeaps is the reference number of per-CPU heaps, N.
	// Heap 0 is always the global heap, so the heap table has N+1 entries.
	DefaultNumberOfHeaps = 2

	// GlobalHeapIndex is the fixed index of the global heap. It is never
	// configurable: the transfer protocol in free/malloc assumes heap 0
	// is the sole participant in both transfer directions.
	GlobalHeapIndex = 0

	// DefaultHoardK is the reference K in the under-utilization test
	// u < a-K*S. The reference value of 0 makes that clause trivially
	// true whenever any block in the heap is free; callers who see
	// thrashing under bursty workloads may raise it via Config.
	DefaultHoardK = 0

	// DefaultHoardEmptyFraction is the reference f in the under-utilization
	// test u < a*(1-f).
	DefaultHoardEmptyFraction = 0.25

	// DefaultNumberOfSizeClasses is the reference number of size classes,
	// covering block sizes 2^0 .. 2^(DefaultNumberOfSizeClasses-1), i.e.
	// up to DefaultSuperblockSize/2.
	DefaultNumberOfSizeClasses = 16

	// mallocAlign is the minimum alignment of any block stride, matching
	// the teacher allocator's own 16-byte alignment floor.
	mallocAlign = 16
)

// roundup rounds n up to the next multiple of m, where m must be a power
// of two. Mirrors the teacher allocator's own helper of the same name.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }
