package palloc

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrowAllocator(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	raw := NewArrowAllocator(mem)

	b, err := raw.Allocate(100)
	require.NoError(t, err)
	assert.Len(t, b, 100)
	assert.Equal(t, 100, mem.CurrentAlloc())
	raw.Free(b)

	_, err = raw.Allocate(0)
	assert.True(t, errors.Is(err, ErrInvalidSize))

	mem.AssertSize(t, 0)
}

func TestArrowAllocatorAligned(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		alignment int
		wantErr   bool
	}{
		{"pointer alignment", 64, Alignment, false},
		{"region alignment", 1024, RegionAlignment, false},
		{"above arrow alignment", 512, 256, false},
		{"page alignment", 8192, 4096, false},
		{"not a power of two", 48, 24, true},
		{"below pointer size", 16, 2, true},
		{"size not a multiple", 100, 16, true},
		{"zero size", 0, 16, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
			raw := NewArrowAllocator(mem)

			b, err := raw.AllocateAligned(tt.size, tt.alignment)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidSize))
				return
			}
			require.NoError(t, err)
			assert.Len(t, b, tt.size)
			assert.Equal(t, tt.size, cap(b))
			assert.Zero(t, addressOf(b)%uintptr(tt.alignment))

			raw.Free(b)
			mem.AssertSize(t, 0)
		})
	}
}

func TestArrowAllocatorDefault(t *testing.T) {
	raw := NewArrowAllocator(nil)
	b, err := raw.AllocateAligned(64, 64)
	require.NoError(t, err)
	assert.Len(t, b, 64)
	raw.Free(b)
	raw.Free(nil)
}

func TestLimitAllocator(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	raw := NewLimitAllocator(NewArrowAllocator(mem), 1000)

	b1, err := raw.Allocate(600)
	require.NoError(t, err)
	b2, err := raw.AllocateAligned(400-400%16, 16)
	require.NoError(t, err)

	_, err = raw.Allocate(100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocationFailed))
	assert.Contains(t, err.Error(), "limit")

	raw.Free(b1)
	b3, err := raw.Allocate(500)
	require.NoError(t, err, "freed bytes return to the budget")

	_, err = raw.Allocate(2000)
	assert.True(t, errors.Is(err, ErrAllocationFailed), "requests above the whole limit fail")

	raw.Free(b2)
	raw.Free(b3)
	mem.AssertSize(t, 0)
}

func TestLimitAllocatorForwardsErrors(t *testing.T) {
	raw := NewLimitAllocator(NewArrowAllocator(nil), 1000)

	_, err := raw.AllocateAligned(100, 3)
	assert.True(t, errors.Is(err, ErrInvalidSize))

	// the failed request did not keep its budget
	b, err := raw.Allocate(1000)
	require.NoError(t, err)
	raw.Free(b)
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uintptr
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 16, 16},
		{17, 16, 32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alignUp(tt.v, tt.align), "alignUp(%d, %d)", tt.v, tt.align)
	}
}
