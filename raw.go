package palloc

import (
	"sync"
	"unsafe"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"
)

// Allocator is the raw memory source behind an Arena. Regions and large
// allocations are obtained from it and handed back to it on Reset/Destroy.
//
// Free must be called with exactly the slice returned by Allocate or
// AllocateAligned.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	AllocateAligned(size, alignment int) ([]byte, error)
	Free(b []byte)
}

// ArrowAllocator adapts an Arrow memory.Allocator to the Allocator interface.
// Arrow allocators hand out 64-byte aligned buffers, so alignments up to 64
// are served directly; larger ones are padded.
type ArrowAllocator struct {
	mem    memory.Allocator
	padded sync.Map // aligned data address -> original buffer
}

// NewArrowAllocator wraps mem. A nil mem selects memory.DefaultAllocator.
func NewArrowAllocator(mem memory.Allocator) *ArrowAllocator {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &ArrowAllocator{mem: mem}
}

// Allocate returns size bytes from the wrapped allocator.
func (a *ArrowAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "allocate %d bytes", size)
	}
	return a.mem.Allocate(size), nil
}

// AllocateAligned returns size bytes whose first byte is aligned to alignment.
func (a *ArrowAllocator) AllocateAligned(size, alignment int) ([]byte, error) {
	if err := checkAligned(size, alignment); err != nil {
		return nil, err
	}
	b := a.mem.Allocate(size)
	if isAligned(b, alignment) {
		return b, nil
	}
	a.mem.Free(b)

	raw := a.mem.Allocate(size + alignment)
	base := addressOf(raw)
	off := int(alignUp(base, uintptr(alignment)) - base)
	out := raw[off : off+size : off+size]
	a.padded.Store(addressOf(out), raw)
	return out, nil
}

// Free returns b to the wrapped allocator.
func (a *ArrowAllocator) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	if raw, ok := a.padded.LoadAndDelete(addressOf(b)); ok {
		a.mem.Free(raw.([]byte))
		return
	}
	a.mem.Free(b)
}

// LimitAllocator caps the number of outstanding bytes obtained through it.
// Requests over the budget fail immediately with ErrAllocationFailed, which
// lets a server abort one unit of work instead of the whole process.
// It is safe for concurrent use.
type LimitAllocator struct {
	next  Allocator
	limit int64
	sem   *semaphore.Weighted
}

// NewLimitAllocator wraps next with a budget of limit bytes.
func NewLimitAllocator(next Allocator, limit int64) *LimitAllocator {
	return &LimitAllocator{next: next, limit: limit, sem: semaphore.NewWeighted(limit)}
}

func (l *LimitAllocator) acquire(size int) error {
	if size > 0 && !l.sem.TryAcquire(int64(size)) {
		return errors.Wrapf(ErrAllocationFailed, "%s over the %s limit",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(l.limit)))
	}
	return nil
}

// Allocate reserves size bytes of budget and forwards the request.
func (l *LimitAllocator) Allocate(size int) ([]byte, error) {
	if err := l.acquire(size); err != nil {
		return nil, err
	}
	b, err := l.next.Allocate(size)
	if err != nil && size > 0 {
		l.sem.Release(int64(size))
	}
	return b, err
}

// AllocateAligned reserves size bytes of budget and forwards the request.
func (l *LimitAllocator) AllocateAligned(size, alignment int) ([]byte, error) {
	if err := l.acquire(size); err != nil {
		return nil, err
	}
	b, err := l.next.AllocateAligned(size, alignment)
	if err != nil && size > 0 {
		l.sem.Release(int64(size))
	}
	return b, err
}

// Free forwards b and returns its bytes to the budget.
func (l *LimitAllocator) Free(b []byte) {
	l.next.Free(b)
	if len(b) > 0 {
		l.sem.Release(int64(len(b)))
	}
}

func checkAligned(size, alignment int) error {
	const ptrSize = int(unsafe.Sizeof(uintptr(0)))
	if alignment <= 0 || alignment&(alignment-1) != 0 || alignment%ptrSize != 0 {
		return errors.Wrapf(ErrInvalidSize, "alignment %d", alignment)
	}
	if size <= 0 || size%alignment != 0 {
		return errors.Wrapf(ErrInvalidSize, "size %d for alignment %d", size, alignment)
	}
	return nil
}

func isAligned(b []byte, alignment int) bool {
	return addressOf(b)&uintptr(alignment-1) == 0
}

func addressOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// alignUp rounds v up to a multiple of align, which must be a power of two.
func alignUp(v, align uintptr) uintptr {
	mask := align - 1
	return (v + mask) &^ mask
}

var (
	_ Allocator = (*ArrowAllocator)(nil)
	_ Allocator = (*LimitAllocator)(nil)
)
