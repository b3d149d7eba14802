package hoard

import (
	"hash/fnv"
	"runtime"
	"strconv"
)

// ThreadIdentity is the allocator's second boundary interface: a source of
// a value that is stable for the lifetime of the calling thread (goroutine,
// in this rendition) and used to route Malloc requests to a per-CPU heap.
// Implementations need not be cryptographically unique across the whole
// process, only stable per caller and reasonably uniform once mixed modulo
// the number of heaps.
type ThreadIdentity interface {
	ThreadID() uint64
}

// goroutineIdentity is the default ThreadIdentity. It derives a stable
// per-goroutine value from the goroutine header runtime.Stack prints
// ("goroutine 123 [running]: ..."), the same portable technique
// third-party goroutine-id packages use when they want an identity without
// a go:linkname into runtime internals — which would not even build from
// outside the standard library tree.
type goroutineIdentity struct{}

// DefaultThreadIdentity is the ThreadIdentity used by the package-level
// default allocator and by New when none is supplied.
var DefaultThreadIdentity ThreadIdentity = goroutineIdentity{}

func (goroutineIdentity) ThreadID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if len(b) <= len(prefix) || string(b[:len(prefix)]) != prefix {
		return 0
	}
	b = b[len(prefix):]
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// mixThreadID avalanche-mixes id with an FNV-1a style multiply-xor chain
// before the caller reduces it modulo the heap count. The spec calls out
// the reference hash (tid%7)%2+1 as collapsing to two heaps regardless of
// N; this mix spreads low and high bits of id before the reduction so the
// modulo stays uniform for any N.
func mixThreadID(id uint64) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	h.Write(b[:])
	return h.Sum64()
}

// heapID maps a thread identity to a per-CPU heap index in 1..=n. Heap 0
// is reserved for the global heap and never returned here.
func heapID(identity ThreadIdentity, n int) int {
	return int(mixThreadID(identity.ThreadID())%uint64(n)) + 1
}
