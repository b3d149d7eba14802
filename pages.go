package hoard

import (
	"fmt"
	"unsafe"
)

// PageProvider is the allocator's sole dependency on the operating system:
// it acquires and releases raw, page-aligned, zeroed memory. Implementations
// must never route back through this package's own Malloc/Free/Realloc/
// Calloc, directly or transitively — that would violate the allocator's
// no-self-allocation invariant.
type PageProvider interface {
	// AcquirePages returns a writable region of at least nBytes, page
	// aligned, zeroed. Acquisition failure is reported as a non-nil error;
	// the returned pointer is nil in that case.
	AcquirePages(nBytes int) (unsafe.Pointer, error)

	// ReleasePages returns a region previously obtained from AcquirePages.
	// nBytes must match the size originally requested.
	ReleasePages(p unsafe.Pointer, nBytes int) error
}

// osPages is the production PageProvider, backed by the platform mmap
// facility (see pages_unix.go / pages_windows.go).
type osPages struct{}

// OSPages is the default, OS-backed PageProvider used by the package-level
// allocator and by New when no provider is supplied.
var OSPages PageProvider = osPages{}

func (osPages) AcquirePages(nBytes int) (unsafe.Pointer, error) {
	p, err := mmapPages(nBytes)
	if err != nil {
		return nil, fmt.Errorf("hoard: acquire %d bytes: %w", nBytes, err)
	}
	return p, nil
}

func (osPages) ReleasePages(p unsafe.Pointer, nBytes int) error {
	if err := munmapPages(p, nBytes); err != nil {
		return fmt.Errorf("hoard: release %d bytes: %w", nBytes, err)
	}
	return nil
}
