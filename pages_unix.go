// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

//go:build darwin || dragonfly || freebsd || linux || openbsd || solaris || netbsd

// Modifications (c) 2024 The Hoard Authors.

package hoard

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func mmapPages(size int) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}

	p := unsafe.Pointer(&b[0])
	if uintptr(p)&uintptr(osPageMask) != 0 {
		fatalf("hoard: mmap returned unaligned region")
	}
	return p, nil
}

func munmapPages(p unsafe.Pointer, size int) error {
	b := unsafe.Slice((*byte)(p), size)
	return unix.Munmap(b)
}
