package hoard

import (
	"testing"
)

func newTestAllocator(t *testing.T, cfg Config) (*Allocator, *fakePages) {
	t.Helper()
	pages := newFakePages()
	a := New(cfg, pages, DefaultThreadIdentity)
	return a, pages
}

func TestMallocZeroReturnsNil(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	b, err := a.Malloc(0)
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Fatalf("Malloc(0) = %v, want nil", b)
	}
}

func TestMallocNegativePanics(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	defer func() {
		if recover() == nil {
			t.Fatal("Malloc(-1) did not panic")
		}
	}()
	a.Malloc(-1)
}

func TestMallocReturnsRequestedLength(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	for _, sz := range []int{1, 7, 31, 32, 1000, 70000} {
		b, err := a.Malloc(sz)
		if err != nil {
			t.Fatalf("Malloc(%d): %v", sz, err)
		}
		if len(b) != sz {
			t.Fatalf("len(Malloc(%d)) = %d, want %d", sz, len(b), sz)
		}
	}
}

func TestMallocDistinctNonOverlappingRegions(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	const n = 64
	blocks := make([][]byte, n)
	for i := range blocks {
		b, err := a.Malloc(48)
		if err != nil {
			t.Fatal(err)
		}
		blocks[i] = b
	}
	for i, b := range blocks {
		for j := 1; j < len(b); j++ {
			b[j] = byte(i)
		}
	}
	for i, b := range blocks {
		for j := 1; j < len(b); j++ {
			if b[j] != byte(i) {
				t.Fatalf("block %d corrupted at offset %d: got %d", i, j, b[j])
			}
		}
	}
}

func TestFreeThenReallocReusesSpace(t *testing.T) {
	a, pages := newTestAllocator(t, Config{})
	b, err := a.Malloc(40)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Free(b); err != nil {
		t.Fatal(err)
	}

	before, _ := pages.counts()
	b2, err := a.Malloc(40)
	if err != nil {
		t.Fatal(err)
	}
	after, _ := pages.counts()
	if after != before {
		t.Fatalf("AcquirePages called again (%d -> %d) though a freed slot of the same class should have been reused", before, after)
	}
	if len(b2) != 40 {
		t.Fatalf("len = %d, want 40", len(b2))
	}
}

func TestFreeNilAndEmptyAreNoops(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	if err := a.Free(nil); err != nil {
		t.Fatal(err)
	}
	if err := a.Free([]byte{}); err != nil {
		t.Fatal(err)
	}
}

func TestReallocCopiesPrefixAndFreesOld(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	b, err := a.Malloc(16)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		b[i] = byte(i + 1)
	}

	r, err := a.Realloc(b, 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(r) != 64 {
		t.Fatalf("len(Realloc) = %d, want 64", len(r))
	}
	for i := 0; i < 16; i++ {
		if r[i] != byte(i+1) {
			t.Fatalf("Realloc did not preserve byte %d: got %d, want %d", i, r[i], i+1)
		}
	}
}

func TestReallocEmptyIsMalloc(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	r, err := a.Realloc(nil, 32)
	if err != nil {
		t.Fatal(err)
	}
	if len(r) != 32 {
		t.Fatalf("len = %d, want 32", len(r))
	}
}

func TestReallocToZeroFrees(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	b, err := a.Malloc(32)
	if err != nil {
		t.Fatal(err)
	}
	r, err := a.Realloc(b, 0)
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("Realloc(b, 0) = %v, want nil", r)
	}
}

func TestCallocZeroesMemory(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	b, err := a.Malloc(256)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		b[i] = 0xff
	}
	if err := a.Free(b); err != nil {
		t.Fatal(err)
	}

	c, err := a.Calloc(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range c {
		if v != 0 {
			t.Fatalf("Calloc byte %d = %#x, want 0", i, v)
		}
	}
}

func TestCallocOverflowReturnsError(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	_, err := a.Calloc(1<<62, 1<<62)
	if err == nil {
		t.Fatal("Calloc with overflowing n*sz did not return an error")
	}
}

func TestLargeAllocationRoundTrips(t *testing.T) {
	a, pages := newTestAllocator(t, Config{SuperblockSize: 4096})
	b, err := a.Malloc(4096) // > maxSlotSize (2048): large path
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 4096 {
		t.Fatalf("len = %d, want 4096", len(b))
	}
	before, beforeRel := pages.counts()
	if err := a.Free(b); err != nil {
		t.Fatal(err)
	}
	after, afterRel := pages.counts()
	if after != before {
		t.Fatalf("large Free unexpectedly called AcquirePages: %d -> %d", before, after)
	}
	if afterRel != beforeRel+1 {
		t.Fatalf("large Free did not call ReleasePages: %d -> %d", beforeRel, afterRel)
	}
}

func TestSizeClassIndexMonotonic(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	prev := -1
	for sz := 1; sz <= 1<<20; sz *= 2 {
		ci := a.sizeClassIndex(sz)
		if ci < prev {
			t.Fatalf("sizeClassIndex(%d) = %d, want >= previous %d", sz, ci, prev)
		}
		classSize := 1 << uint(ci)
		if classSize < sz && ci != a.cfg.NumberOfSizeClasses-1 {
			t.Fatalf("sizeClassIndex(%d) = %d (class size %d) does not cover the request", sz, ci, classSize)
		}
		prev = ci
	}
}

func TestUnsafeAPIRoundTrip(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	p, err := a.UnsafeMalloc(24)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("UnsafeMalloc(24) = nil")
	}
	if got := a.UnsafeUsableSize(p); got < 24 {
		t.Fatalf("UnsafeUsableSize = %d, want >= 24", got)
	}
	if err := a.UnsafeFree(p); err != nil {
		t.Fatal(err)
	}
}

func TestUnsafeMallocZeroIsDistinctSentinel(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})
	p, err := a.UnsafeMalloc(0)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("UnsafeMalloc(0) = nil, want a distinct sentinel")
	}
	if err := a.UnsafeFree(p); err != nil {
		t.Fatal(err)
	}
}

func TestTransferToGlobalOnUnderUtilizedHeap(t *testing.T) {
	a, _ := newTestAllocator(t, Config{SuperblockSize: 256, HoardEmptyFraction: 0.99, HoardK: 0})

	const n = 4
	blocks := make([][]byte, n)
	for i := range blocks {
		b, err := a.Malloc(16)
		if err != nil {
			t.Fatal(err)
		}
		blocks[i] = b
	}
	for _, b := range blocks {
		if err := a.Free(b); err != nil {
			t.Fatal(err)
		}
	}

	global := a.heaps[GlobalHeapIndex]
	global.mu.Lock()
	gBytes := global.bytesAvailable
	global.mu.Unlock()
	if gBytes == 0 {
		t.Fatal("expected an under-utilized per-goroutine heap to transfer a superblock to the global heap")
	}
}

// TestSteadyStateMallocFreeAllocatesNoGoHeapMemory checks the second half
// of testable property 10 (no reentry): once a size class already has a
// superblock with a free slot, a Malloc/Free pair must not trigger any
// Go-heap allocation attributable to the allocator's own bookkeeping. The
// PageProvider call-counting tests cover the "no fresh superblock" half;
// this covers the "no Go-heap metadata allocation" half.
func TestSteadyStateMallocFreeAllocatesNoGoHeapMemory(t *testing.T) {
	a, _ := newTestAllocator(t, Config{})

	// Pre-warm: create the superblock and touch the transfer path once so
	// the loop below only ever exercises already-allocated structures.
	warm, err := a.Malloc(32)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Free(warm); err != nil {
		t.Fatal(err)
	}

	avg := testing.AllocsPerRun(100, func() {
		b, err := a.Malloc(32)
		if err != nil {
			t.Fatal(err)
		}
		if err := a.Free(b); err != nil {
			t.Fatal(err)
		}
	})
	if avg != 0 {
		t.Fatalf("steady-state Malloc/Free averaged %v Go-heap allocations per run, want 0", avg)
	}
}

func TestDefaultAllocatorIsSingleton(t *testing.T) {
	a1 := Default()
	a2 := Default()
	if a1 != a2 {
		t.Fatal("Default() returned two different Allocators")
	}
}
