package palloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// largeSlot records one allocation served by the raw allocator. A nil buf
// marks a free slot; slots are never removed, only reused.
type largeSlot struct {
	buf []byte
}

// largeRecordSize is the region footprint reserved for every new slot.
var largeRecordSize = int(unsafe.Sizeof(largeSlot{}))

// allocLarge serves a request above the small ceiling straight from the raw
// allocator. The newest slot and up to reuseDepth older ones are searched
// for a free slot before a new one is recorded.
func (a *Arena) allocLarge(size int) ([]byte, error) {
	b, err := a.raw.Allocate(size)
	if err != nil {
		return nil, errors.Wrapf(err, "large allocation of %s", humanize.IBytes(uint64(size)))
	}
	largeAllocs.Inc()

	for i, n := len(a.large)-1, 0; i >= 0 && n <= a.reuseDepth; i, n = i-1, n+1 {
		if a.large[i].buf == nil {
			a.large[i].buf = b
			a.debugLarge("palloc: large alloc (reused slot)", b)
			return b, nil
		}
	}

	if err := a.addLargeSlot(b); err != nil {
		return nil, err
	}
	a.debugLarge("palloc: large alloc", b)
	return b, nil
}

// AllocAligned returns size bytes aligned to alignment straight from the raw
// allocator, whatever the size. The block is tracked like a large allocation
// and can be released early with FreeLarge.
func (a *Arena) AllocAligned(size, alignment int) ([]byte, error) {
	panicIfDestroyed(a)
	b, err := a.raw.AllocateAligned(size, alignment)
	if err != nil {
		return nil, errors.Wrapf(err, "aligned allocation of %s", humanize.IBytes(uint64(max(size, 0))))
	}
	largeAllocs.Inc()
	if err := a.addLargeSlot(b); err != nil {
		return nil, err
	}
	a.debugLarge("palloc: aligned alloc", b)
	return b, nil
}

// addLargeSlot records b in a new slot whose footprint comes from the small
// path. On failure b goes back to the raw allocator so nothing leaks.
func (a *Arena) addLargeSlot(b []byte) error {
	if _, err := a.allocSmall(largeRecordSize, true); err != nil {
		a.raw.Free(b)
		return errors.Wrap(err, "record large allocation")
	}
	a.large = append(a.large, largeSlot{buf: b})
	return nil
}

// FreeLarge releases b early if it is a live large allocation of this arena
// and reports whether it was. Other pointers are ignored, so speculative
// calls are safe.
func (a *Arena) FreeLarge(b []byte) bool {
	panicIfDestroyed(a)
	if len(b) == 0 {
		return false
	}
	p := addressOf(b)
	for i := len(a.large) - 1; i >= 0; i-- {
		s := &a.large[i]
		if s.buf != nil && addressOf(s.buf) == p {
			a.debugLarge("palloc: free large", s.buf)
			a.raw.Free(s.buf)
			s.buf = nil
			return true
		}
	}
	return false
}

func (a *Arena) freeAllLarge() {
	for i := range a.large {
		s := &a.large[i]
		if s.buf != nil {
			a.raw.Free(s.buf)
			s.buf = nil
		}
	}
}

func (a *Arena) debugLarge(msg string, b []byte) {
	if ce := a.log.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(zap.Uintptr("addr", addressOf(b)), zap.String("size", humanize.IBytes(uint64(len(b)))))
	}
}
