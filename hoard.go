package hoard

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/cznic/mathutil"
)

// Allocator is a Hoard-style multiprocessor heap allocator: a global heap
// (index 0) plus Config.NumberOfHeaps per-goroutine heaps, each an array of
// power-of-two size classes. Its zero value is not ready for use; construct
// one with New.
type Allocator struct {
	cfg      Config
	pages    PageProvider
	identity ThreadIdentity

	heaps       []*cpuHeap // length cfg.NumberOfHeaps+1, index 0 is global
	maxSlotSize int        // min(cfg.SuperblockSize/2, largest class size); requests above this are large
}

// New builds an independent Allocator. A nil pages defaults to OSPages; a
// nil identity defaults to DefaultThreadIdentity. Most callers that only
// need "the" process allocator should use the package-level Malloc/Free/
// Realloc/Calloc instead, which lazily build a single default Allocator
// from the zero Config.
func New(cfg Config, pages PageProvider, identity ThreadIdentity) *Allocator {
	cfg = cfg.withDefaults()
	if pages == nil {
		pages = OSPages
	}
	if identity == nil {
		identity = DefaultThreadIdentity
	}

	a := &Allocator{
		cfg:         cfg,
		pages:       pages,
		identity:    identity,
		heaps:       make([]*cpuHeap, cfg.NumberOfHeaps+1),
		maxSlotSize: cfg.SuperblockSize / 2,
	}
	if top := 1 << uint(cfg.NumberOfSizeClasses-1); top < a.maxSlotSize {
		a.maxSlotSize = top
	}
	for i := range a.heaps {
		a.heaps[i] = newCPUHeap(i, cfg.NumberOfSizeClasses, cfg.SuperblockSize)
	}
	return a
}

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

// Default returns the process-wide default Allocator, built from the zero
// Config the first time it is needed and never rebuilt afterwards.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultAllocator = New(Config{}, nil, nil)
	})
	return defaultAllocator
}

// sizeClassIndex returns ceil(log2(sz)), clamped to
// [0, cfg.NumberOfSizeClasses), using the same BitLen-based integer
// technique the teacher allocator uses for its own power-of-two slot
// sizing rather than a float math.Log2/math.Ceil round trip.
func (a *Allocator) sizeClassIndex(sz int) int {
	if sz <= 1 {
		return 0
	}
	ci := mathutil.BitLen(sz - 1)
	if ci >= a.cfg.NumberOfSizeClasses {
		ci = a.cfg.NumberOfSizeClasses - 1
	}
	return ci
}

// ---- large-block path --------------------------------------------------

func (a *Allocator) mallocLarge(sz int) (unsafe.Pointer, error) {
	total := sz + headerSize
	raw, err := a.pages.AcquirePages(total)
	if err != nil {
		return nil, err
	}
	h := headerAt(raw)
	h.owner = nil
	h.next = nil
	h.size = sz
	return userPointer(raw), nil
}

// freeLarge returns a large block's pages to the PageProvider. Release is
// best-effort: a failure is reported on the trace path only and is not
// returned to the caller.
func (a *Allocator) freeLarge(h *blockHeader, raw unsafe.Pointer) error {
	if err := a.pages.ReleasePages(raw, h.size+headerSize); err != nil && trace {
		fmt.Fprintf(os.Stderr, "hoard: release large block %p: %v\n", raw, err)
	}
	return nil
}

// ---- small-block path ---------------------------------------------------

// mallocSmall implements spec §4.5 malloc steps 3-6 for sz in
// (0, maxSlotSize].
func (a *Allocator) mallocSmall(sz int) (unsafe.Pointer, error) {
	ci := a.sizeClassIndex(sz)
	classSize := 1 << uint(ci)
	hi := heapID(a.identity, a.cfg.NumberOfHeaps)

	heap := a.heaps[hi]
	heap.mu.Lock()
	defer heap.mu.Unlock()

	sb := heap.sizeClasses[ci].findAvailable()
	if sb == nil {
		sb = a.stealFromGlobal(heap, ci)
	}
	if sb == nil {
		var err error
		sb, err = makeSuperblock(a.pages, a.cfg.SuperblockSize, classSize)
		if err != nil {
			return nil, err
		}
		heap.addSuperblock(ci, sb)
	}

	b := heap.allocateFrom(ci, sb)
	if b == nil {
		fatalf("hoard: findAvailable returned a full superblock")
	}
	return userPointer(unsafe.Pointer(b)), nil
}

// stealFromGlobal attempts to pull a superblock with a free slot from the
// global heap's size class ci into heap. heap must not itself be the
// global heap (callers only reach this from the per-goroutine path).
//
// The actual acquisition order here is destination-heap (by mallocSmall,
// before calling this) -> global.mu -> sb.mu, not the source-heap ->
// superblock -> destination-heap order the transfer protocol otherwise
// follows (see transferToGlobal). That is still deadlock-free: a per-
// goroutine heap's mutex is never acquired while holding global.mu or a
// superblock's mutex, so heap.mu can never sit on the inside of a cycle,
// and a superblock has exactly one owner heap at a time, so the remaining
// (global, superblock) pair can't form one either. A future refactor that
// relies on the documented source -> superblock -> destination order
// literally would need to re-derive this argument; it does not fall out
// of that order by itself.
func (a *Allocator) stealFromGlobal(heap *cpuHeap, ci int) *superblock {
	global := a.heaps[GlobalHeapIndex]
	global.mu.Lock()
	sb := global.sizeClasses[ci].findAvailable()
	if sb == nil {
		global.mu.Unlock()
		return nil
	}

	sb.mu.Lock()
	global.removeSuperblock(ci, sb)
	heap.addSuperblock(ci, sb)
	sb.mu.Unlock()
	global.mu.Unlock()
	return sb
}

// ---- Malloc / Free / Realloc / Calloc -----------------------------------

// Malloc allocates sz bytes and returns a slice of that length backed by
// the allocated region. The memory's contents are undefined. Malloc panics
// for sz < 0 and returns (nil, nil) for sz == 0, matching the teacher
// allocator's own convention.
func (a *Allocator) Malloc(sz int) (r []byte, err error) {
	if trace {
		defer func() {
			var p *byte
			if len(r) != 0 {
				p = &r[0]
			}
			fmt.Fprintf(os.Stderr, "Malloc(%#x) %p, %v\n", sz, p, err)
		}()
	}
	if sz < 0 {
		panic("hoard: invalid malloc size")
	}
	if sz == 0 {
		return nil, nil
	}

	p, err := a.mallocPointer(sz)
	if err != nil || p == nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), sz), nil
}

func (a *Allocator) mallocPointer(sz int) (unsafe.Pointer, error) {
	if sz > a.maxSlotSize {
		return a.mallocLarge(sz)
	}
	return a.mallocSmall(sz)
}

// Free releases memory previously returned by Malloc, Calloc, or Realloc
// on this Allocator. Freeing nil or an empty slice is a no-op. Freeing
// anything else is undefined behavior, as in the source C contract.
func (a *Allocator) Free(b []byte) (err error) {
	if trace {
		var p *byte
		if len(b) != 0 {
			p = &b[0]
		}
		defer func() {
			fmt.Fprintf(os.Stderr, "Free(%#x) %v\n", p, err)
		}()
	}
	if len(b) == 0 {
		return nil
	}
	return a.freePointer(unsafe.Pointer(&b[0]))
}

func (a *Allocator) freePointer(p unsafe.Pointer) error {
	raw := headerOf(p)
	h := headerAt(raw)

	if h.size > a.maxSlotSize {
		return a.freeLarge(h, raw)
	}

	ci := a.sizeClassIndex(h.size)
	sb := h.owner

	for {
		sb.mu.Lock()
		heap := sb.ownerHeap
		sb.mu.Unlock()

		heap.mu.Lock()
		if sb.ownerHeap != heap {
			// Another goroutine transferred sb between our unlock above
			// and this lock; the source-heap -> superblock -> dest-heap
			// order guarantees that loop converges, bounded by the number
			// of transfers in flight on this superblock.
			heap.mu.Unlock()
			continue
		}

		heap.freeInto(ci, sb, h)
		if heap.id == GlobalHeapIndex {
			heap.mu.Unlock()
			return nil
		}

		if heap.underUtilized(a.cfg.HoardEmptyFraction, a.cfg.HoardK) {
			a.transferToGlobal(heap)
		}
		heap.mu.Unlock()
		return nil
	}
}

// transferToGlobal moves the heap's single mostly-empty superblock to the
// global heap, following the fixed lock order source-heap (already held,
// it is the caller's heap) -> superblock -> destination-heap (global).
// Caller must hold heap.mu.
func (a *Allocator) transferToGlobal(heap *cpuHeap) {
	ci, victim := heap.findMostlyEmptySuperblock()
	if victim == nil {
		return
	}

	global := a.heaps[GlobalHeapIndex]
	victim.mu.Lock()
	heap.removeSuperblock(ci, victim)
	global.mu.Lock()
	global.addSuperblock(ci, victim)
	global.mu.Unlock()
	victim.mu.Unlock()
}

// Realloc changes the size of the region backing b to sz bytes. It is
// always out-of-place: per the spec's Non-goals, there is no shrink-in-
// place. If b is empty, Realloc behaves as Malloc(sz). If sz is 0 and b is
// non-empty, Realloc behaves as Free(b) and returns (nil, nil). Otherwise
// it allocates sz bytes, copies min(len(b), sz) bytes from b, frees b, and
// returns the new region; on allocation failure b is left untouched.
func (a *Allocator) Realloc(b []byte, sz int) (r []byte, err error) {
	if trace {
		var p0 *byte
		if len(b) != 0 {
			p0 = &b[0]
		}
		defer func() {
			var p *byte
			if len(r) != 0 {
				p = &r[0]
			}
			fmt.Fprintf(os.Stderr, "Realloc(%p, %#x) %p, %v\n", p0, sz, p, err)
		}()
	}
	if sz < 0 {
		panic("hoard: invalid realloc size")
	}
	if len(b) == 0 {
		return a.Malloc(sz)
	}
	if sz == 0 {
		return nil, a.Free(b)
	}

	r, err = a.Malloc(sz)
	if err != nil {
		return nil, err
	}

	n := len(b)
	if sz < n {
		n = sz
	}
	copy(r, b[:n])
	if err := a.Free(b); err != nil {
		// The new region r is already populated and valid; losing track
		// of it here would leak it in addition to masking the error, so
		// hand it back to the caller alongside the Free error rather than
		// discarding it.
		return r, err
	}
	return r, nil
}

// Calloc allocates n*sz bytes and zeroes them. It returns an error rather
// than silently truncating if n*sz overflows int, a case the spec's C
// contract leaves to undefined behavior but a Go API must make explicit.
func (a *Allocator) Calloc(n, sz int) (r []byte, err error) {
	if trace {
		defer func() {
			var p *byte
			if len(r) != 0 {
				p = &r[0]
			}
			fmt.Fprintf(os.Stderr, "Calloc(%#x) %p, %v\n", n*sz, p, err)
		}()
	}
	if n < 0 || sz < 0 {
		panic("hoard: invalid calloc size")
	}
	if n == 0 || sz == 0 {
		return nil, nil
	}
	total := n * sz
	if total/n != sz {
		return nil, fmt.Errorf("hoard: calloc(%d, %d) overflows int", n, sz)
	}

	b, err := a.Malloc(total)
	if err != nil {
		return nil, err
	}
	clear(b)
	return b, nil
}

// ---- Unsafe pointer mirror API -------------------------------------------

// UnsafeMalloc is like Malloc except it returns an unsafe.Pointer and a
// distinct non-nil sentinel for sz == 0 (rather than nil), so that the
// result always round-trips through UnsafeFree.
func (a *Allocator) UnsafeMalloc(sz int) (unsafe.Pointer, error) {
	if sz < 0 {
		panic("hoard: invalid malloc size")
	}
	if sz == 0 {
		sz = 1
	}
	return a.mallocPointer(sz)
}

// UnsafeFree is like Free except its argument is an unsafe.Pointer
// previously returned by UnsafeMalloc, UnsafeCalloc, or UnsafeRealloc.
func (a *Allocator) UnsafeFree(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	return a.freePointer(p)
}

// UnsafeCalloc is like Calloc except it returns an unsafe.Pointer.
func (a *Allocator) UnsafeCalloc(n, sz int) (unsafe.Pointer, error) {
	if n < 0 || sz < 0 {
		panic("hoard: invalid calloc size")
	}
	total := n * sz
	if n != 0 && total/n != sz {
		return nil, fmt.Errorf("hoard: calloc(%d, %d) overflows int", n, sz)
	}

	p, err := a.UnsafeMalloc(total)
	if err != nil || p == nil {
		return p, err
	}
	b := unsafe.Slice((*byte)(p), a.UnsafeUsableSize(p))
	clear(b)
	return p, nil
}

// UnsafeUsableSize reports the usable size of the block at p, which must
// have come from UnsafeMalloc, UnsafeCalloc, or UnsafeRealloc.
func (a *Allocator) UnsafeUsableSize(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}
	h := headerAt(headerOf(p))
	if h.size > a.maxSlotSize {
		return h.size
	}
	return h.owner.blockSize
}

// UnsafeRealloc is like Realloc except its first argument and result are
// unsafe.Pointer values.
func (a *Allocator) UnsafeRealloc(p unsafe.Pointer, sz int) (unsafe.Pointer, error) {
	if sz < 0 {
		panic("hoard: invalid realloc size")
	}
	if p == nil {
		return a.UnsafeMalloc(sz)
	}
	if sz == 0 {
		return nil, a.UnsafeFree(p)
	}

	us := a.UnsafeUsableSize(p)
	r, err := a.UnsafeMalloc(sz)
	if err != nil {
		return nil, err
	}

	n := us
	if sz < n {
		n = sz
	}
	src := unsafe.Slice((*byte)(p), n)
	dst := unsafe.Slice((*byte)(r), n)
	copy(dst, src)
	if err := a.UnsafeFree(p); err != nil {
		// r is already populated and valid; see the identical note in
		// Realloc for why it's returned alongside the Free error instead
		// of discarded.
		return r, err
	}
	return r, nil
}

// ---- package-level convenience over the default Allocator ---------------

// Malloc allocates sz bytes from the process-wide default Allocator. See
// (*Allocator).Malloc.
func Malloc(sz int) ([]byte, error) { return Default().Malloc(sz) }

// Free releases memory obtained from the process-wide default Allocator.
// See (*Allocator).Free.
func Free(b []byte) error { return Default().Free(b) }

// Realloc resizes memory obtained from the process-wide default Allocator.
// See (*Allocator).Realloc.
func Realloc(b []byte, sz int) ([]byte, error) { return Default().Realloc(b, sz) }

// Calloc allocates and zeroes n*sz bytes from the process-wide default
// Allocator. See (*Allocator).Calloc.
func Calloc(n, sz int) ([]byte, error) { return Default().Calloc(n, sz) }
