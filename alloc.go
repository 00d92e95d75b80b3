package palloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// New returns a pointer to a zeroed T stored inside the arena.
// The pointer is valid until the arena is reset or destroyed.
// T must not contain Go pointers: arena memory is not scanned by the GC.
func New[T any](a *Arena) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return new(T), nil
	}
	b, err := a.AllocZeroed(size)
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(b))), nil
}

// MakeSlice allocates a slice of n elements of type T inside the arena.
// The elements are not initialized. Returns nil if n == 0.
func MakeSlice[T any](a *Arena, n int) ([]T, error) {
	return makeSlice[T](a, n, false)
}

// MakeSliceZeroed allocates a slice of n zeroed elements of type T.
func MakeSliceZeroed[T any](a *Arena, n int) ([]T, error) {
	return makeSlice[T](a, n, true)
}

func makeSlice[T any](a *Arena, n int, zeroed bool) ([]T, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "slice of %d elements", n)
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil, nil
	}
	if elemSize == 0 {
		return make([]T, n), nil
	}
	alloc := a.Alloc
	if zeroed {
		alloc = a.AllocZeroed
	}
	b, err := alloc(elemSize * n)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n), nil
}

// Strdup copies s into unaligned arena memory and returns the copy.
func Strdup(a *Arena, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	b, err := a.AllocUnaligned(len(s))
	if err != nil {
		return "", err
	}
	copy(b, s)
	return unsafe.String(unsafe.SliceData(b), len(b)), nil
}
