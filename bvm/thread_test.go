package bvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPop(t *testing.T) {
	t.Parallel()
	th := NewThread(0, 0)
	th.Push(1)
	for _, x := range []int32{0, -1, 7, 1 << 30} {
		before := th.SP()
		th.Push(x)
		y, err := th.Pop()
		require.NoError(t, err)
		require.Equal(t, x, y)
		require.Equal(t, before, th.SP())
	}
}

func TestUnderflow(t *testing.T) {
	t.Parallel()
	th := NewThread(0, 0)
	_, err := th.Pop()
	require.ErrorIs(t, err, ErrStackUnderflow)
	_, err = th.Top()
	require.ErrorIs(t, err, ErrStackUnderflow)
	th.Push(3)
	_, err = th.PopN(2)
	require.ErrorIs(t, err, ErrStackUnderflow)
	require.Equal(t, []int32{3}, th.Stack())
}

func TestPopN(t *testing.T) {
	t.Parallel()
	th := NewThread(0, 0)
	for i := range int32(4) {
		th.Push(i)
	}
	xs, err := th.PopN(3)
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3}, xs)
	require.Equal(t, 1, th.SP())
}

func TestIDGen(t *testing.T) {
	t.Parallel()
	g := NewIDGen()
	seen := map[ThreadID]bool{}
	for range 100 {
		th := g.NewThread(0)
		require.False(t, seen[th.ID()])
		seen[th.ID()] = true
	}
}
