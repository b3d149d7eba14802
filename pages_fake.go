package hoard

import (
	"fmt"
	"sync"
	"unsafe"
)

// fakePages is an in-process PageProvider backed by ordinary Go-heap byte
// slices pinned for the test's lifetime. It exists so the superblock,
// size-class, and heap layers can be property-tested without touching the
// OS mmap boundary, and so tests can count AcquirePages/ReleasePages calls
// to check the no-reentry property (spec §8, property 10).
//
// fakePages deliberately keeps every acquired slice alive in a map so the
// Go garbage collector never reclaims memory that superblocks still
// address via unsafe.Pointer; ReleasePages removes the entry for the
// released pointer (nBytes is not checked against the acquired size).
type fakePages struct {
	mu      sync.Mutex
	regions map[unsafe.Pointer][]byte
	aligned bool

	acquireCalls int
	releaseCalls int
}

func newFakePages() *fakePages {
	return &fakePages{regions: map[unsafe.Pointer][]byte{}}
}

func (f *fakePages) AcquirePages(nBytes int) (unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireCalls++

	// Over-allocate so the returned pointer can be rounded up to a page
	// boundary, the same alignment guarantee the real mmap path gives.
	buf := make([]byte, nBytes+osPageSize)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + uintptr(osPageMask)) &^ uintptr(osPageMask)
	p := unsafe.Pointer(aligned)

	// make already zero-fills buf; nothing further to do for the
	// zeroed-memory guarantee PageProvider documents.
	f.regions[p] = buf
	return p, nil
}

func (f *fakePages) ReleasePages(p unsafe.Pointer, nBytes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	if _, ok := f.regions[p]; !ok {
		return fmt.Errorf("hoard: release of unknown region %p", p)
	}
	delete(f.regions, p)
	return nil
}

func (f *fakePages) counts() (acquire, release int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquireCalls, f.releaseCalls
}
