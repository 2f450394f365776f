package bvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClearAdd(t *testing.T) {
	t.Parallel()
	s := NewSeededScheduler(1)
	s.AddThread(NewThread(5, 0))
	s.Clear()
	require.False(t, s.HasThreads())

	th := NewThread(9, 0)
	s.AddThread(th)
	require.True(t, s.HasThreads())
	picked := s.PickNext()
	require.NotNil(t, picked)
	require.Equal(t, th.ID(), picked.ID())
	require.Equal(t, Running, picked.State())
}

func TestPickFairness(t *testing.T) {
	t.Parallel()
	const trials = 1000
	s := NewRandomScheduler(nil)
	s.AddThread(NewThread(0, 0))
	s.AddThread(NewThread(1, 0))
	counts := map[ThreadID]int{}
	for range trials {
		th := s.PickNext()
		require.NotNil(t, th)
		counts[th.ID()]++
		s.Yield()
	}
	t.Log(counts)
	for _, id := range []ThreadID{0, 1} {
		require.Greater(t, counts[id], 0)
		require.Less(t, counts[id], trials)
	}
}

func TestPickNextRequeues(t *testing.T) {
	t.Parallel()
	s := NewSeededScheduler(2)
	s.AddThread(NewThread(0, 0))
	for range 10 {
		th := s.PickNext()
		require.NotNil(t, th)
		require.Equal(t, ThreadID(0), th.ID())
		require.Equal(t, 0, s.Ready())
	}
}

func TestBlockUnblock(t *testing.T) {
	t.Parallel()
	s := NewSeededScheduler(3)
	s.AddThread(NewThread(0, 0))
	th := s.PickNext()
	s.BlockCurrent()
	require.Equal(t, Blocked, th.State())
	require.False(t, s.HasThreads())
	require.True(t, s.Stuck())
	require.Nil(t, s.PickNext())

	require.False(t, s.Unblock(7))
	require.True(t, s.Unblock(0))
	require.Equal(t, Ready, th.State())
	require.False(t, s.Stuck())
	require.Equal(t, th, s.PickNext())
}

func TestWaitingIO(t *testing.T) {
	t.Parallel()
	s := NewSeededScheduler(4)
	s.AddThread(NewThread(0, 0))
	th := s.PickNext()
	th.SetState(WaitingIO)
	require.True(t, s.WaitingIO())
	require.Nil(t, s.PickNext())
	require.True(t, s.WaitingIO())
	require.True(t, s.Stuck())

	s.UnblockIO()
	require.False(t, s.WaitingIO())
	require.Equal(t, th, s.PickNext())
}

func TestPickThread(t *testing.T) {
	t.Parallel()
	s := NewSeededScheduler(5)
	for i := range 4 {
		s.AddThread(NewThread(ThreadID(i), 0))
	}
	for _, id := range []ThreadID{2, 2, 0, 3, 1} {
		th := s.PickThread(id)
		require.NotNil(t, th)
		require.Equal(t, id, th.ID())
	}
	s.TerminateCurrent()
	require.Nil(t, s.PickThread(1))
	require.Len(t, s.Threads(), 3)
}

func TestTerminate(t *testing.T) {
	t.Parallel()
	s := NewSeededScheduler(6)
	s.AddThread(NewThread(0, 0))
	th := s.PickNext()
	s.TerminateCurrent()
	require.Equal(t, Terminated, th.State())
	require.False(t, s.HasThreads())
	require.False(t, s.Stuck())
	require.Empty(t, s.Threads())
}
