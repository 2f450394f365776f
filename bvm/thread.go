package bvm

import (
	"fmt"
	"slices"
)

// ThreadID identifies a thread. IDs are never reused.
type ThreadID uint64

// IDGen allocates ThreadIDs.
// It is owned by whichever component creates threads.
type IDGen struct {
	next ThreadID
}

func NewIDGen() *IDGen {
	return &IDGen{}
}

// Next returns a new ThreadID.
func (g *IDGen) Next() ThreadID {
	id := g.next
	g.next++
	return id
}

// NewThread creates a thread with a fresh id, starting at pc.
func (g *IDGen) NewThread(pc uint32) *Thread {
	return NewThread(g.Next(), pc)
}

type ThreadState uint8

const (
	Ready ThreadState = iota
	Running
	Blocked
	WaitingIO
	Terminated
)

func (s ThreadState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case WaitingIO:
		return "io"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("ThreadState(%d)", s)
	}
}

func (s ThreadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ThreadState) UnmarshalText(data []byte) error {
	for x := Ready; x <= Terminated; x++ {
		if x.String() == string(data) {
			*s = x
			return nil
		}
	}
	return fmt.Errorf("unknown thread state %q", data)
}

// Thread is one logical process.
// A Thread is only touched by the interpreter call currently executing it.
type Thread struct {
	id       ThreadID
	state    ThreadState
	priority int32
	pc       uint32
	// bp is the stack index where the current call frame's locals start
	bp int
	// depth is the number of active calls
	depth int
	stack []int32
}

func NewThread(id ThreadID, pc uint32) *Thread {
	return &Thread{id: id, pc: pc, stack: make([]int32, 0, 16)}
}

func (t *Thread) ID() ThreadID { return t.id }

func (t *Thread) State() ThreadState     { return t.state }
func (t *Thread) SetState(s ThreadState) { t.state = s }

func (t *Thread) Priority() int32     { return t.priority }
func (t *Thread) SetPriority(p int32) { t.priority = p }

func (t *Thread) PC() uint32      { return t.pc }
func (t *Thread) SetPC(pc uint32) { t.pc = pc }
func (t *Thread) AdvancePC()      { t.pc++ }

func (t *Thread) BP() int      { return t.bp }
func (t *Thread) SetBP(bp int) { t.bp = bp }

// SP is the stack pointer: the index one past the top of the stack.
func (t *Thread) SP() int { return len(t.stack) }

// Depth is the number of calls which have not returned.
func (t *Thread) Depth() int { return t.depth }

func (t *Thread) Push(x int32) {
	t.stack = append(t.stack, x)
}

func (t *Thread) Pop() (int32, error) {
	i := len(t.stack) - 1
	if i < 0 {
		return 0, ErrStackUnderflow
	}
	ret := t.stack[i]
	t.stack = t.stack[:i]
	return ret, nil
}

func (t *Thread) Top() (int32, error) {
	return t.Peek(0)
}

// Peek returns the value depth slots below the top, without removing anything.
func (t *Thread) Peek(depth int) (int32, error) {
	i := len(t.stack) - 1 - depth
	if depth < 0 || i < 0 {
		return 0, ErrStackUnderflow
	}
	return t.stack[i], nil
}

// Need returns ErrStackUnderflow if the stack holds fewer than n values.
func (t *Thread) Need(n int) error {
	if len(t.stack) < n {
		return ErrStackUnderflow
	}
	return nil
}

// PopN removes the top n values and returns them, deepest first.
func (t *Thread) PopN(n int) ([]int32, error) {
	if err := t.Need(n); err != nil {
		return nil, err
	}
	start := len(t.stack) - n
	ret := slices.Clone(t.stack[start:])
	t.stack = t.stack[:start]
	return ret, nil
}

// Slot reads the stack at absolute index i.
func (t *Thread) Slot(i int) (int32, error) {
	if i < 0 || i >= len(t.stack) {
		return 0, ErrStackUnderflow
	}
	return t.stack[i], nil
}

// SetSlot writes the stack at absolute index i.
func (t *Thread) SetSlot(i int, x int32) error {
	if i < 0 || i >= len(t.stack) {
		return ErrStackUnderflow
	}
	t.stack[i] = x
	return nil
}

// truncate drops everything at or above index sp.
func (t *Thread) truncate(sp int) {
	if sp < len(t.stack) {
		t.stack = t.stack[:sp]
	}
}

// Stack returns a copy of the stack, bottom first.
func (t *Thread) Stack() []int32 {
	return slices.Clone(t.stack)
}
