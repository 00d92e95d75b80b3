package palloc

import (
	"bytes"
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	// DefaultRegionSize is the default size of every region of an arena (16 KiB).
	DefaultRegionSize = 16 * 1024

	// Alignment is the alignment of Alloc results (pointer width).
	Alignment = int(unsafe.Sizeof(uintptr(0)))

	// RegionAlignment is the alignment requested for region memory.
	RegionAlignment = 16

	// DefaultLargeReuseDepth is how many slots past the newest one are
	// searched for a free large-allocation slot.
	DefaultLargeReuseDepth = 3

	// DefaultRegionFailThreshold is how many times a region may be skipped
	// for lack of space before allocations stop trying it first.
	DefaultRegionFailThreshold = 4
)

var (
	// PageSize is the platform page size.
	PageSize = os.Getpagesize()

	// MaxSmallAlloc is the upper bound of the small-allocation ceiling.
	// Larger requests always go straight to the raw allocator.
	MaxSmallAlloc = PageSize - 1

	// MinRegionSize is the smallest region an arena is created with: room for
	// the arena header and two large-allocation slots.
	MinRegionSize = int(alignUp(uintptr(arenaHeaderSize+2*largeRecordSize), RegionAlignment))
)

// Header footprints reserved at the start of regions. The first region
// carries the arena header, later ones only the region descriptor.
var (
	arenaHeaderSize  = int(alignUp(unsafe.Sizeof(Arena{}), uintptr(Alignment)))
	regionHeaderSize = int(alignUp(unsafe.Sizeof(region{}), uintptr(Alignment)))
)

// region is one contiguous block of raw memory, bump allocated.
type region struct {
	buf    []byte // backing memory; len(buf) is the limit
	start  int    // first usable offset, after the header
	cursor int    // next free offset
	failed int    // times this region was skipped for lack of space
}

// alignedCursor returns the cursor rounded up so that the address it
// designates is Alignment aligned.
func (r *region) alignedCursor() int {
	base := addressOf(r.buf)
	return int(alignUp(base+uintptr(r.cursor), uintptr(Alignment)) - base)
}

// Arena is a chain of regions with a bump cursor each, a set of large
// allocations and a cleanup chain. An Arena is not goroutine-safe: use one
// per unit of work, or hand them out through a Pool.
type Arena struct {
	regions  []region
	current  int // first region tried by small allocations
	last     int // region of the most recent small allocation, -1 if none
	max      int // small-allocation ceiling
	large    []largeSlot
	cleanups []*Cleanup

	raw           Allocator
	log           *zap.Logger
	reuseDepth    int
	failThreshold int
}

// NewArena creates an arena whose regions are size bytes each. If size <= 0,
// DefaultRegionSize is used; sizes below MinRegionSize are raised to it.
func NewArena(size int, opts ...Option) (*Arena, error) {
	if size <= 0 {
		size = DefaultRegionSize
	}
	if size < MinRegionSize {
		size = MinRegionSize
	}
	size = int(alignUp(uintptr(size), RegionAlignment))

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.raw == nil {
		o.raw = NewArrowAllocator(nil)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.maxSmall <= 0 || o.maxSmall > MaxSmallAlloc {
		o.maxSmall = MaxSmallAlloc
	}

	buf, err := o.raw.AllocateAligned(size, RegionAlignment)
	if err != nil {
		return nil, errors.Wrapf(err, "create arena of %s", humanize.IBytes(uint64(size)))
	}

	a := &Arena{
		regions:       []region{{buf: buf, start: arenaHeaderSize, cursor: arenaHeaderSize}},
		last:          -1,
		max:           min(size-arenaHeaderSize, o.maxSmall),
		raw:           o.raw,
		log:           o.log,
		reuseDepth:    max(o.reuseDepth, 0),
		failThreshold: max(o.failThreshold, 0),
	}
	return a, nil
}

// MaxSmall returns the small-allocation ceiling: requests up to this many
// bytes are bump allocated, larger ones go to the raw allocator.
func (a *Arena) MaxSmall() int {
	return a.max
}

// Alloc returns size bytes aligned to Alignment. The memory is not zeroed.
// Alloc(0) returns nil.
func (a *Arena) Alloc(size int) ([]byte, error) {
	return a.alloc(size, true)
}

// AllocUnaligned is Alloc without alignment, for byte buffers and strings.
func (a *Arena) AllocUnaligned(size int) ([]byte, error) {
	return a.alloc(size, false)
}

// AllocZeroed is Alloc followed by zeroing the returned bytes.
func (a *Arena) AllocZeroed(size int) ([]byte, error) {
	b, err := a.alloc(size, true)
	if err != nil {
		return nil, err
	}
	clear(b)
	return b, nil
}

func (a *Arena) alloc(size int, align bool) ([]byte, error) {
	panicIfDestroyed(a)
	switch {
	case size < 0:
		return nil, errors.Wrapf(ErrInvalidSize, "allocate %d bytes", size)
	case size == 0:
		return nil, nil
	case size <= a.max:
		return a.allocSmall(size, align)
	}
	return a.allocLarge(size)
}

// allocSmall bump allocates from the first region, starting at current,
// that has room, growing the chain when none does.
func (a *Arena) allocSmall(size int, align bool) ([]byte, error) {
	for i := a.current; i < len(a.regions); i++ {
		r := &a.regions[i]
		off := r.cursor
		if align {
			off = r.alignedCursor()
		}
		if len(r.buf)-off >= size {
			r.cursor = off + size
			a.last = i
			return r.buf[off:r.cursor:r.cursor], nil
		}
	}
	return a.grow(size, align)
}

// grow appends a region sized like the first one and allocates size bytes
// from it. Skip counters and current only change once the region exists.
func (a *Arena) grow(size int, align bool) ([]byte, error) {
	psize := len(a.regions[0].buf)
	buf, err := a.raw.AllocateAligned(psize, RegionAlignment)
	if err != nil {
		return nil, errors.Wrapf(err, "grow arena by %s", humanize.IBytes(uint64(psize)))
	}

	for i := a.current; i < len(a.regions); i++ {
		r := &a.regions[i]
		r.failed++
		if r.failed > a.failThreshold {
			a.current = i + 1
		}
	}

	a.regions = append(a.regions, region{buf: buf, start: regionHeaderSize, cursor: regionHeaderSize})
	a.last = len(a.regions) - 1
	r := &a.regions[a.last]
	off := r.cursor
	if align {
		off = r.alignedCursor()
	}
	r.cursor = off + size

	regionsGrown.Inc()
	if ce := a.log.Check(zap.DebugLevel, "palloc: new region"); ce != nil {
		ce.Write(zap.Int("regions", len(a.regions)), zap.Int("current", a.current),
			zap.String("size", humanize.IBytes(uint64(psize))))
	}
	return r.buf[off:r.cursor:r.cursor], nil
}

// TryExtend grows b, which must be the most recent small allocation, by n
// bytes in place. It reports false and returns b unchanged when b is not the
// most recent allocation or its region lacks room.
func (a *Arena) TryExtend(b []byte, n int) ([]byte, bool) {
	panicIfDestroyed(a)
	r, off, ok := a.lastAllocation(b)
	if !ok || n < 0 || len(r.buf)-r.cursor < n {
		return b, false
	}
	r.cursor += n
	return r.buf[off:r.cursor:r.cursor], true
}

// TryRelease gives b back to its region when it is the most recent small
// allocation, so the bytes are handed out again by the next allocation.
func (a *Arena) TryRelease(b []byte) bool {
	panicIfDestroyed(a)
	r, off, ok := a.lastAllocation(b)
	if !ok {
		return false
	}
	r.cursor = off
	return true
}

// lastAllocation reports whether b ends exactly at the cursor of the region
// that served the most recent small allocation.
func (a *Arena) lastAllocation(b []byte) (*region, int, bool) {
	if a.last < 0 || len(b) == 0 {
		return nil, 0, false
	}
	r := &a.regions[a.last]
	base, p := addressOf(r.buf), addressOf(b)
	if p < base || p+uintptr(len(b)) != base+uintptr(r.cursor) {
		return nil, 0, false
	}
	return r, int(p - base), true
}

// Reset releases every large allocation and rewinds all regions, keeping
// their memory for reuse. Registered cleanups stay registered and still run
// at Destroy; their data is moved off the regions first.
func (a *Arena) Reset() {
	panicIfDestroyed(a)
	a.freeAllLarge()
	a.large = a.large[:0]
	for _, c := range a.cleanups {
		if c.Data != nil {
			c.Data = bytes.Clone(c.Data)
		}
	}
	for i := range a.regions {
		r := &a.regions[i]
		r.cursor = r.start
		r.failed = 0
	}
	a.current = 0
	a.last = -1
}

// Destroy runs the cleanups, newest first, then returns every large
// allocation and every region to the raw allocator. The arena must not be
// used afterwards; a second Destroy is a no-op.
func (a *Arena) Destroy() {
	if a.regions == nil {
		return
	}
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		c := a.cleanups[i]
		if c.Handler == nil {
			continue
		}
		if ce := a.log.Check(zap.DebugLevel, "palloc: run cleanup"); ce != nil {
			ce.Write(zap.Int("index", i))
		}
		c.Handler(c.Data)
	}
	a.cleanups = nil

	a.freeAllLarge()
	a.large = nil

	for i := range a.regions {
		if ce := a.log.Check(zap.DebugLevel, "palloc: free region"); ce != nil {
			r := &a.regions[i]
			ce.Write(zap.Int("index", i), zap.Int("unused", len(r.buf)-r.cursor))
		}
		a.raw.Free(a.regions[i].buf)
	}
	a.regions = nil
	a.last = -1
}
