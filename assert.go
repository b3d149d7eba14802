package hoard

import (
	"syscall"
	"unsafe"
)

var newline = [1]byte{'\n'}

// fatalf reports an unrecoverable invariant violation or lock error and
// terminates the process. It must not allocate: msg is always a
// compile-time string constant, viewed as raw bytes with unsafe.Slice
// (no string-to-[]byte copy) and written straight to stderr, with no
// formatting machinery in the call path (spec §4.8, §5, §7). This is the
// closest stdlib equivalent of the C abort() the reference design assumes.
func fatalf(msg string) {
	b := unsafe.Slice(unsafe.StringData(msg), len(msg))
	syscall.Write(2, b)
	syscall.Write(2, newline[:])
	syscall.Kill(syscall.Getpid(), syscall.SIGABRT)
	// Kill is asynchronous from the signal's perspective; block forever in
	// case the signal hasn't been delivered yet by the time we'd otherwise
	// fall through and resume the violated invariant.
	select {}
}
