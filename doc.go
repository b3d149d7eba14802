// Copyright 2024 The Hoard Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hoard implements a multiprocessor heap allocator in the style of
// Hoard: allocation requests are routed to one of several per-goroutine
// ("per-CPU") heaps backed by a shared global heap, with memory organized
// into fixed-size superblocks partitioned by power-of-two size class.
//
// The design goal is to reduce lock contention on multi-core systems and
// bound worst-case fragmentation, without ever allocating through Go's own
// runtime allocator for its own bookkeeping: every superblock lives inside
// memory obtained directly from the OS via a PageProvider, and is addressed
// through unsafe.Pointer for the lifetime of the process.
//
// Changelog
//
// 2024-01-01 Initial multiprocessor rendition, generalized from a
// single-heap, size-classed mmap allocator.
package hoard
