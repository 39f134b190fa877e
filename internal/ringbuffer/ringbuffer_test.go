package ringbuffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		b, err := New[int](capacity)
		assert.Nil(t, b)
		assert.True(t, errors.Is(err, ErrInvalidCapacity), "capacity %d", capacity)
	}
	assert.Panics(t, func() { MustNew[float64](0) })
}

func TestSlice_KeepsLastCapacityInPushOrder(t *testing.T) {
	b := MustNew[int](5)
	for _, v := range []int{1, 2, 3, 4, 5, 6, 7} {
		b.Push(v)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7}, b.Slice())
	assert.Equal(t, 5, b.Len())
	assert.True(t, b.Full())
}

func TestSlice_ManyWraps(t *testing.T) {
	tests := []struct {
		capacity int
		pushes   int
	}{
		{1, 1}, {1, 10}, {3, 2}, {3, 3}, {3, 4}, {4, 17}, {7, 100},
	}
	for _, tt := range tests {
		b := MustNew[int](tt.capacity)
		for i := 0; i < tt.pushes; i++ {
			b.Push(i)
		}
		first := tt.pushes - tt.capacity
		if first < 0 {
			first = 0
		}
		want := make([]int, 0, tt.capacity)
		for i := first; i < tt.pushes; i++ {
			want = append(want, i)
		}
		require.Equal(t, want, b.Slice(), "capacity=%d pushes=%d", tt.capacity, tt.pushes)
		for i, v := range want {
			assert.Equal(t, v, b.At(i))
		}
	}
}

func TestAt_OutOfRangePanics(t *testing.T) {
	b := MustNew[string](3)
	assert.Panics(t, func() { b.At(0) })

	b.Push("a")
	b.Push("b")
	assert.Equal(t, "a", b.At(0))
	assert.Panics(t, func() { b.At(2) })
	assert.Panics(t, func() { b.At(-1) })
}

func TestSlice_IsCopy(t *testing.T) {
	b := MustNew[int](2)
	b.Push(1)
	s := b.Slice()
	s[0] = 99
	assert.Equal(t, 1, b.At(0))
}

func TestReset(t *testing.T) {
	b := MustNew[int](2)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Slice())
	b.Push(4)
	assert.Equal(t, []int{4}, b.Slice())
}
