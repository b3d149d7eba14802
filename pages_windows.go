// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2024 The Hoard Authors.

package hoard

import (
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmap on Windows is a two-step process: CreateFileMapping gets a handle,
// then MapViewOfFile gets an actual pointer into memory.

var (
	handleMapMu sync.Mutex
	handleMap   = map[uintptr]windows.Handle{}
)

func mmapPages(size int) (unsafe.Pointer, error) {
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, uint32(uint64(size)>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}

	if addr&uintptr(osPageMask) != 0 {
		fatalf("hoard: mmap returned unaligned region")
	}

	handleMapMu.Lock()
	handleMap[addr] = h
	handleMapMu.Unlock()
	return unsafe.Pointer(addr), nil
}

func munmapPages(p unsafe.Pointer, size int) error {
	addr := uintptr(p)
	if err := windows.UnmapViewOfFile(addr); err != nil {
		return err
	}

	handleMapMu.Lock()
	h, ok := handleMap[addr]
	delete(handleMap, addr)
	handleMapMu.Unlock()
	if !ok {
		return errors.New("hoard: unknown base address")
	}
	return windows.CloseHandle(h)
}
