package palloc

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLargeSlotReuse(t *testing.T) {
	a, _ := newTestArena(t, 0)
	size := a.MaxSmall() + 100

	x, err := a.Alloc(size)
	require.NoError(t, err)
	require.Len(t, a.large, 1)

	assert.True(t, a.FreeLarge(x))
	assert.Nil(t, a.large[0].buf)
	assert.Len(t, a.large, 1, "freed slots stay in the list")

	y, err := a.Alloc(size - 50)
	require.NoError(t, err)
	require.Len(t, a.large, 1, "the free slot is reused")
	assert.Equal(t, addressOf(y), addressOf(a.large[0].buf))
}

func TestLargeReuseDepth(t *testing.T) {
	tests := []struct {
		name      string
		depth     int
		wantSlots int
	}{
		{"oldest slot out of reach", DefaultLargeReuseDepth, 6},
		{"oldest slot within reach", DefaultLargeReuseDepth + 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestArena(t, 0, WithLargeReuseDepth(tt.depth))
			size := a.MaxSmall() + 1

			var blocks [][]byte
			for i := 0; i < 5; i++ {
				b, err := a.Alloc(size)
				require.NoError(t, err)
				blocks = append(blocks, b)
			}
			require.True(t, a.FreeLarge(blocks[0]))

			_, err := a.Alloc(size)
			require.NoError(t, err)
			assert.Len(t, a.large, tt.wantSlots)
		})
	}
}

func TestFreeLargeNotFound(t *testing.T) {
	a, _ := newTestArena(t, 0)

	small, err := a.Alloc(64)
	require.NoError(t, err)
	assert.False(t, a.FreeLarge(small), "small allocations are not tracked")
	assert.False(t, a.FreeLarge(make([]byte, 10)), "foreign memory is ignored")
	assert.False(t, a.FreeLarge(nil))

	large, err := a.Alloc(a.MaxSmall() + 1)
	require.NoError(t, err)
	assert.True(t, a.FreeLarge(large))
	assert.False(t, a.FreeLarge(large), "a second free finds nothing")
}

func TestLargeRecordFailureReleasesBlock(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	const regionSize = 1024
	const largeSize = 2000
	raw := NewLimitAllocator(NewArrowAllocator(mem), regionSize+largeSize)
	a, err := NewArena(regionSize, WithAllocator(raw))
	require.NoError(t, err)
	defer func() {
		a.Destroy()
		mem.AssertSize(t, 0)
	}()

	// fill the only region so the slot record needs a new one
	_, err = a.Alloc(a.MaxSmall())
	require.NoError(t, err)
	require.Less(t, a.MaxSmall(), largeSize)

	_, err = a.Alloc(largeSize)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocationFailed))
	assert.Empty(t, a.large, "no half-registered slot")
	assert.Equal(t, regionSize, mem.CurrentAlloc(), "the large block went back to the raw allocator")
	assert.Equal(t, 1, a.NumRegions())
}

func TestLargeRawFailure(t *testing.T) {
	raw := NewLimitAllocator(NewArrowAllocator(nil), 1<<20)
	a, err := NewArena(0, WithAllocator(raw))
	require.NoError(t, err)
	defer a.Destroy()

	_, err = a.Alloc(2 << 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocationFailed))
	assert.Empty(t, a.large)
}

func TestAllocAligned(t *testing.T) {
	a, _ := newTestArena(t, 0)

	for _, align := range []int{16, 64, 256, 4096} {
		b, err := a.AllocAligned(2*align, align)
		require.NoError(t, err)
		assert.Len(t, b, 2*align)
		assert.Zero(t, addressOf(b)%uintptr(align), "alignment %d", align)
	}
	assert.Len(t, a.large, 4, "aligned allocations always get a new slot")

	last := a.large[3].buf
	assert.True(t, a.FreeLarge(last))

	_, err := a.AllocAligned(30, 3)
	assert.True(t, errors.Is(err, ErrInvalidSize))
	_, err = a.AllocAligned(30, 16)
	assert.True(t, errors.Is(err, ErrInvalidSize), "size must be a multiple of the alignment")
}

func TestResetReleasesLarge(t *testing.T) {
	a, mem := newTestArena(t, 0)

	for i := 0; i < 3; i++ {
		_, err := a.Alloc(a.MaxSmall() * (i + 2))
		require.NoError(t, err)
	}
	require.Greater(t, mem.CurrentAlloc(), a.Capacity())

	a.Reset()
	assert.Empty(t, a.large)
	assert.Equal(t, a.Capacity(), mem.CurrentAlloc())
}
