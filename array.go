package palloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// arrayHeaderSize is the arena footprint reserved for an Array header.
var arrayHeaderSize = int(alignUp(unsafe.Sizeof(Array[byte]{}), uintptr(Alignment)))

// Array is a growable sequence of T whose storage lives in an arena.
// When full, Push first tries to extend the storage in place (possible while
// it is the arena's most recent allocation) and only otherwise moves it to a
// buffer twice as large. Old buffers are reclaimed with the arena.
//
// T must not contain Go pointers: arena memory is not scanned by the GC.
type Array[T any] struct {
	arena *Arena
	hdr   []byte
	mem   []byte
	elts  []T // typed view of mem, len(elts) is the capacity
	nelts int
}

// NewArray creates an array with room for n elements.
func NewArray[T any](a *Arena, n int) (*Array[T], error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "array of %d elements", n)
	}
	hdr, err := a.Alloc(arrayHeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "create array")
	}
	arr := &Array[T]{arena: a, hdr: hdr}
	mem, err := a.Alloc(n * arr.elemSize())
	if err != nil {
		return nil, errors.Wrap(err, "create array")
	}
	arr.adopt(mem, n)
	return arr, nil
}

func (arr *Array[T]) elemSize() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// adopt makes mem the storage for capacity elements.
func (arr *Array[T]) adopt(mem []byte, capacity int) {
	arr.mem = mem
	switch {
	case capacity == 0:
		arr.elts = nil
	case len(mem) == 0:
		// zero-size T
		arr.elts = make([]T, capacity)
	default:
		arr.elts = unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(mem))), capacity)
	}
}

// Len returns the number of elements pushed.
func (arr *Array[T]) Len() int { return arr.nelts }

// Cap returns the number of element slots currently reserved.
func (arr *Array[T]) Cap() int { return len(arr.elts) }

// Elems returns the pushed elements. The slice is invalidated by the next
// Push or PushN that moves the storage.
func (arr *Array[T]) Elems() []T { return arr.elts[:arr.nelts:arr.nelts] }

// Push appends one element slot and returns a pointer to it. The slot holds
// whatever the memory held before; callers must initialize it.
func (arr *Array[T]) Push() (*T, error) {
	if arr.nelts == len(arr.elts) {
		size := arr.elemSize()
		if b, ok := arr.arena.TryExtend(arr.mem, size); ok {
			arr.adopt(b, len(arr.elts)+1)
		} else if err := arr.realloc(max(2*len(arr.elts), 1), arr.nelts); err != nil {
			return nil, err
		}
	}
	e := &arr.elts[arr.nelts]
	arr.nelts++
	return e, nil
}

// PushN appends n element slots and returns them.
func (arr *Array[T]) PushN(n int) ([]T, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "push %d elements", n)
	}
	if arr.nelts+n > len(arr.elts) {
		size := arr.elemSize()
		if b, ok := arr.arena.TryExtend(arr.mem, n*size); ok {
			arr.adopt(b, len(arr.elts)+n)
		} else if err := arr.realloc(2*max(n, len(arr.elts)), arr.nelts); err != nil {
			return nil, err
		}
	}
	s := arr.elts[arr.nelts : arr.nelts+n : arr.nelts+n]
	arr.nelts += n
	return s, nil
}

// realloc moves the first keep elements into a new buffer of capacity
// elements. The old buffer stays in the arena.
func (arr *Array[T]) realloc(capacity, keep int) error {
	mem, err := arr.arena.Alloc(capacity * arr.elemSize())
	if err != nil {
		return errors.Wrapf(err, "grow array to %d elements", capacity)
	}
	old := arr.elts[:keep]
	arr.adopt(mem, capacity)
	copy(arr.elts, old)
	return nil
}

// Destroy returns the storage, and then the header, to the arena when they
// are its most recent allocations. Otherwise it does nothing and the memory
// is reclaimed by Reset or Destroy of the arena. The array must not be used
// afterwards.
func (arr *Array[T]) Destroy() {
	arr.arena.TryRelease(arr.mem)
	arr.arena.TryRelease(arr.hdr)
	arr.mem, arr.elts, arr.nelts = nil, nil, 0
}
