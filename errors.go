package palloc

import "github.com/cockroachdb/errors"

var (
	// ErrAllocationFailed is returned (wrapped) whenever the raw allocator
	// cannot satisfy a request. The arena never retries.
	ErrAllocationFailed = errors.New("palloc: allocation failed")

	// ErrInvalidSize reports a negative size or an unusable alignment.
	ErrInvalidSize = errors.New("palloc: invalid size")
)

func panicIfDestroyed(a *Arena) {
	if a.regions == nil {
		panic("palloc: use after Destroy()")
	}
}
