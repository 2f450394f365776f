package bvm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"nsbaci.org/nsbaci/pcode"
)

func TestCobegin(t *testing.T) {
	t.Parallel()
	prog := []I{
		ix(pcode.Cobegin),
		ix(pcode.PushLiteral, pcode.Int(0)),
		ix(pcode.Create, pcode.Int(10), pcode.Int(1)),
		ix(pcode.PushLiteral, pcode.Int(1)),
		ix(pcode.Create, pcode.Int(10), pcode.Int(1)),
		ix(pcode.Coend),
		ix(pcode.LoadValue, pcode.Addr(0)),
		ix(pcode.LoadValue, pcode.Addr(1)),
		ix(pcode.Add),
		ix(pcode.Halt),
		// mark(addr)
		ix(pcode.PushLiteral, pcode.Int(1)),
		ix(pcode.StoreIndirect),
		ix(pcode.Return, pcode.Int(0), pcode.Int(0)),
	}
	for seed := range uint64(20) {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			m := newMachine(t, seed, prog)
			res := m.run(t, 1000)
			require.Nil(t, res.Err)
			require.Equal(t, Terminated, m.main.State())
			require.Equal(t, []int32{2}, m.main.Stack())
			require.False(t, m.sched.HasThreads())
			require.False(t, m.sched.Stuck())
		})
	}
}

func TestSemaphoreMutex(t *testing.T) {
	t.Parallel()
	const sem = 5
	prog := []I{
		ix(pcode.LoadAddress, pcode.Addr(sem)),
		ix(pcode.PushLiteral, pcode.Int(1)),
		ix(pcode.StoreSemaphore),
		ix(pcode.Cobegin),
		ix(pcode.Create, pcode.Int(11), pcode.Int(0)),
		ix(pcode.Create, pcode.Int(11), pcode.Int(0)),
		ix(pcode.Create, pcode.Int(11), pcode.Int(0)),
		ix(pcode.Coend),
		ix(pcode.LoadValue, pcode.Addr(0)),
		ix(pcode.Halt),
		ix(pcode.Nop),
		// increment @0 with the semaphore held
		ix(pcode.PushLiteral, pcode.Int(sem)),
		ix(pcode.Wait),
		ix(pcode.LoadValue, pcode.Addr(0)),
		ix(pcode.PushLiteral, pcode.Int(1)),
		ix(pcode.Add),
		ix(pcode.Store, pcode.Addr(0)),
		ix(pcode.PushLiteral, pcode.Int(sem)),
		ix(pcode.Signal),
		ix(pcode.Return, pcode.Int(0), pcode.Int(0)),
	}
	for seed := range uint64(50) {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			m := newMachine(t, seed, prog)
			res := m.run(t, 1000)
			require.Nil(t, res.Err)
			require.Equal(t, []int32{3}, m.main.Stack())
			require.Equal(t, int32(1), m.prog.Read(sem))
		})
	}
}

func TestSemaphoreFIFO(t *testing.T) {
	t.Parallel()
	in := NewInterp(NewIDGen())
	p := NewProgram([]I{
		ix(pcode.PushLiteral, pcode.Int(0)),
		ix(pcode.Wait),
		ix(pcode.Halt),
		ix(pcode.PushLiteral, pcode.Int(0)),
		ix(pcode.Signal),
		ix(pcode.Halt),
	}, nil, nil)
	waiters := []*Thread{NewThread(0, 0), NewThread(1, 0), NewThread(2, 0)}
	for i, th := range waiters {
		for range 2 {
			res := in.Execute(th, p)
			require.Nil(t, res.Err)
			if th.PC() == 2 {
				require.True(t, res.Block)
			}
		}
		require.Equal(t, int32(-1-i), p.Read(0))
	}
	for i := range waiters {
		sig := NewThread(ThreadID(10+i), 3)
		in.Execute(sig, p)
		res := in.Execute(sig, p)
		require.Nil(t, res.Err)
		require.False(t, res.Block)
		require.Equal(t, []ThreadID{waiters[i].ID()}, res.Wake)
	}
	require.Equal(t, int32(0), p.Read(0))
}

func TestBinarySemaphore(t *testing.T) {
	t.Parallel()
	in := NewInterp(NewIDGen())
	p := NewProgram([]I{
		ix(pcode.LoadAddress, pcode.Addr(3)),
		ix(pcode.PushLiteral, pcode.Int(1)),
		ix(pcode.StoreBinarySemaphore),
		ix(pcode.PushLiteral, pcode.Int(3)),
		ix(pcode.Signal),
		ix(pcode.PushLiteral, pcode.Int(3)),
		ix(pcode.Signal),
		ix(pcode.Halt),
	}, nil, nil)
	th := NewThread(0, 0)
	for th.State() != Terminated {
		res := in.Execute(th, p)
		require.Nil(t, res.Err)
	}
	require.Equal(t, int32(1), p.Read(3))
}

func TestMonitor(t *testing.T) {
	t.Parallel()
	const mon, cond = 100, 101
	in := NewInterp(NewIDGen())
	p := NewProgram([]I{
		// waiter
		ix(pcode.EnterMonitor, pcode.Addr(mon)),
		ix(pcode.WaitCondition, pcode.Addr(cond)),
		ix(pcode.ExitMonitor, pcode.Addr(mon)),
		ix(pcode.Halt),
		// signaller
		ix(pcode.EnterMonitor, pcode.Addr(mon)),
		ix(pcode.EmptyCondition, pcode.Addr(cond)),
		ix(pcode.SignalCondition, pcode.Addr(cond)),
		ix(pcode.ExitMonitor, pcode.Addr(mon)),
		ix(pcode.Halt),
	}, nil, nil)
	a, b := NewThread(0, 0), NewThread(1, 4)

	res := in.Execute(a, p)
	require.False(t, res.Block)
	res = in.Execute(a, p)
	require.True(t, res.Block)
	require.Empty(t, res.Wake)

	res = in.Execute(b, p)
	require.False(t, res.Block, "monitor is free while a waits")
	in.Execute(b, p)
	require.Equal(t, []int32{0}, b.Stack())
	res = in.Execute(b, p)
	require.True(t, res.Block)
	require.Equal(t, []ThreadID{a.ID()}, res.Wake)

	// a owns the monitor again, and passes it back to b
	res = in.Execute(a, p)
	require.Nil(t, res.Err)
	require.Equal(t, []ThreadID{b.ID()}, res.Wake)

	res = in.Execute(b, p)
	require.Nil(t, res.Err)
	require.Empty(t, res.Wake)
	require.False(t, in.sync.mon(mon).busy)
}

func TestMonitorEntry(t *testing.T) {
	t.Parallel()
	in := NewInterp(NewIDGen())
	p := NewProgram([]I{
		ix(pcode.EnterMonitor, pcode.Addr(7)),
		ix(pcode.ExitMonitor, pcode.Addr(7)),
		ix(pcode.Halt),
	}, nil, nil)
	ths := []*Thread{NewThread(0, 0), NewThread(1, 0), NewThread(2, 0)}
	require.False(t, in.Execute(ths[0], p).Block)
	require.True(t, in.Execute(ths[1], p).Block)
	require.True(t, in.Execute(ths[2], p).Block)

	res := in.Execute(ths[0], p)
	require.Equal(t, []ThreadID{1}, res.Wake)
	res = in.Execute(ths[1], p)
	require.Equal(t, []ThreadID{2}, res.Wake)
	res = in.Execute(ths[2], p)
	require.Empty(t, res.Wake)

	in.Execute(ths[0], p)
	require.Equal(t, Terminated, ths[0].State())
}

func TestConditionPriority(t *testing.T) {
	t.Parallel()
	const mon, cond = 100, 101
	in := NewInterp(NewIDGen())
	wait := func(prio int32) []I {
		return []I{
			ix(pcode.EnterMonitor, pcode.Addr(mon)),
			ix(pcode.WaitCondition, pcode.Addr(cond), pcode.Int(prio)),
		}
	}
	var prog []I
	prog = append(prog, wait(5)...)
	prog = append(prog, wait(1)...)
	p := NewProgram(prog, nil, nil)
	ths := []*Thread{NewThread(0, 0), NewThread(1, 2), NewThread(2, 2), NewThread(3, 0)}
	for _, th := range ths {
		for range 2 {
			res := in.Execute(th, p)
			require.Nil(t, res.Err)
		}
	}
	var order []ThreadID
	for _, w := range in.sync.cond(cond).waiters {
		order = append(order, w.id)
	}
	require.Equal(t, []ThreadID{1, 2, 0, 3}, order)
}

func TestSuspendRevive(t *testing.T) {
	t.Parallel()
	in := NewInterp(NewIDGen())
	p := NewProgram([]I{
		ix(pcode.Suspend),
		ix(pcode.Halt),
		ix(pcode.PushLiteral, pcode.Int(0)),
		ix(pcode.Revive),
		ix(pcode.PushLiteral, pcode.Int(0)),
		ix(pcode.Revive),
		ix(pcode.Halt),
	}, nil, nil)
	a, b := NewThread(0, 0), NewThread(1, 2)
	require.True(t, in.Execute(a, p).Block)
	in.Execute(b, p)
	require.Equal(t, []ThreadID{0}, in.Execute(b, p).Wake)
	in.Execute(b, p)
	require.Empty(t, in.Execute(b, p).Wake, "a is no longer suspended")
}

func TestCreate(t *testing.T) {
	t.Parallel()
	ids := NewIDGen()
	in := NewInterp(ids)
	p := NewProgram([]I{
		ix(pcode.PushLiteral, pcode.Int(7)),
		ix(pcode.PushLiteral, pcode.Int(8)),
		ix(pcode.PushLiteral, pcode.Int(9)),
		ix(pcode.Create, pcode.Int(20), pcode.Int(2)),
		ix(pcode.Halt),
	}, nil, nil)
	th := ids.NewThread(0)
	th.SetPriority(3)
	var res Result
	for range 4 {
		res = in.Execute(th, p)
		require.Nil(t, res.Err)
	}
	require.Len(t, res.Spawn, 1)
	child := res.Spawn[0]
	require.NotEqual(t, th.ID(), child.ID())
	require.Equal(t, uint32(20), child.PC())
	require.Equal(t, int32(3), child.Priority())
	require.Equal(t, []int32{8, 9}, child.Stack())
	require.Equal(t, []int32{7}, th.Stack())
}

func TestInterpReset(t *testing.T) {
	t.Parallel()
	in := NewInterp(NewIDGen())
	p := NewProgram([]I{ix(pcode.EnterMonitor, pcode.Addr(1)), ix(pcode.Read)}, nil, nil)
	a := NewThread(0, 0)
	in.Execute(a, p)
	in.Execute(a, p)
	require.True(t, in.WaitingForInput())
	in.ProvideInput("1")
	in.Reset()
	require.False(t, in.WaitingForInput())

	b := NewThread(1, 0)
	require.False(t, in.Execute(b, p).Block, "monitor is free after Reset")
	require.True(t, in.Execute(b, p).NeedsInput, "input was dropped by Reset")
}

func TestDeadlock(t *testing.T) {
	t.Parallel()
	m := newMachine(t, 0, []I{
		ix(pcode.PushLiteral, pcode.Int(0)),
		ix(pcode.Wait),
		ix(pcode.Halt),
	})
	res := m.run(t, 10)
	require.Nil(t, res.Err)
	require.True(t, m.sched.Stuck())
	require.Equal(t, Blocked, m.main.State())
}
