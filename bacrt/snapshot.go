package bacrt

import (
	"go.brendoncarroll.net/exp/slices2"

	"nsbaci.org/nsbaci/bvm"
	"nsbaci.org/nsbaci/pcode"
)

// NoOp is shown in place of an opcode when a thread's pc is past the end of the program.
const NoOp = "---"

type ThreadInfo struct {
	ID       bvm.ThreadID    `json:"id"`
	State    bvm.ThreadState `json:"state"`
	Priority int32           `json:"priority"`
	PC       uint32          `json:"pc"`
	Op       string          `json:"op"`
	Stack    []int32         `json:"stack"`
}

type VarInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Addr   uint32 `json:"addr"`
	Value  int32  `json:"value"`
	Global bool   `json:"global"`
}

// Snapshot is everything a debugger shows.
type Snapshot struct {
	State     State        `json:"state"`
	Threads   []ThreadInfo `json:"threads"`
	Variables []VarInfo    `json:"variables"`
	Trace     []TraceEntry `json:"trace"`
	Waiting   bool         `json:"waiting_for_input"`
}

// Threads returns every live thread, ordered by id.
func (rt *Runtime) Threads() []ThreadInfo {
	return slices2.Map(rt.sched.Threads(), func(th *bvm.Thread) ThreadInfo {
		ti := ThreadInfo{
			ID:       th.ID(),
			State:    th.State(),
			Priority: th.Priority(),
			PC:       th.PC(),
			Op:       NoOp,
			Stack:    th.Stack(),
		}
		if rt.prog != nil {
			if ix, ok := rt.prog.At(th.PC()); ok {
				ti.Op = ix.Op.String()
			}
		}
		return ti
	})
}

// Variables returns the value of every symbol, sorted by name.
func (rt *Runtime) Variables() []VarInfo {
	if rt.prog == nil {
		return nil
	}
	return slices2.Map(rt.prog.Symbols(), func(sym pcode.Symbol) VarInfo {
		return VarInfo{
			Name:   sym.Name,
			Type:   sym.Type,
			Addr:   sym.Addr,
			Value:  rt.prog.Read(sym.Addr),
			Global: sym.Global,
		}
	})
}

// Trace returns the most recently executed instructions, oldest first.
func (rt *Runtime) Trace() []TraceEntry {
	return rt.trace.Slice()
}

func (rt *Runtime) Snapshot() Snapshot {
	return Snapshot{
		State:     rt.state,
		Threads:   rt.Threads(),
		Variables: rt.Variables(),
		Trace:     rt.Trace(),
		Waiting:   rt.IsWaitingForInput(),
	}
}
