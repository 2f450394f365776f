package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushBack(t *testing.T) {
	rb := New[int](3)
	require.Equal(t, 0, rb.Len())
	for i := range 5 {
		rb.PushBack(i)
		require.LessOrEqual(t, rb.Len(), rb.MaxLen())
	}
	require.Equal(t, []int{2, 3, 4}, rb.Slice())
	require.Equal(t, 2, rb.PopFront())
	require.Equal(t, []int{3, 4}, rb.Slice())
	rb.PushBack(5)
	rb.PushBack(6)
	require.Equal(t, []int{4, 5, 6}, rb.Slice())
}

func TestClear(t *testing.T) {
	rb := New[string](2)
	rb.PushBack("a")
	rb.Clear()
	require.Equal(t, 0, rb.Len())
	require.Empty(t, rb.Slice())
	require.Panics(t, func() { rb.At(0) })
}
