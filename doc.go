// Package palloc implements a region-based memory arena for Go.
//
// # Overview
//
// An arena gives a short-lived unit of work (a request, a connection, a
// configuration parse) its own allocation context. Small requests are bump
// allocated from fixed-size regions; requests above the small-allocation
// ceiling go straight to a raw Allocator and are tracked so they can be
// freed early or with the arena. Everything is released at once by Reset
// (keep the regions for the next unit of work) or Destroy (give them back).
//
// # Basic Usage
//
//	a, err := palloc.NewArena(0) // DefaultRegionSize regions
//	if err != nil {
//		return err
//	}
//	defer a.Destroy()
//
//	buf, err := a.Alloc(256)           // aligned, small path
//	name, err := palloc.Strdup(a, "x") // unaligned copy
//	big, err := a.Alloc(1 << 20)       // large path
//	a.FreeLarge(big)                   // optional early release
//
// # Cleanups
//
// AddCleanup registers handlers that run when the arena is destroyed,
// newest first. AddFileCleanup closes a file at destroy time, and
// RunFileCleanup closes it earlier without running it twice.
//
// # Arrays
//
// Array[T] is a growable sequence stored in an arena. A full array grows in
// place when its storage is the arena's most recent allocation and doubles
// into a new buffer otherwise.
//
// # Concurrency
//
// An Arena is owned by one goroutine at a time and never locks. Concurrent
// code uses one arena per unit of work, typically from a Pool.
//
// # Memory
//
// Region and large memory comes from an Allocator; ArrowAllocator adapts
// Apache Arrow allocators (the default uses memory.DefaultAllocator) and
// LimitAllocator enforces a byte budget. Arena memory is not scanned by the
// garbage collector: do not store Go pointers in it.
package palloc
