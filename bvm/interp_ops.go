package bvm

import (
	"nsbaci.org/nsbaci/pcode"
)

func (s *step) intA() (int32, error)   { return pcode.AsInt(0, s.ix.A) }
func (s *step) intB() (int32, error)   { return pcode.AsInt(1, s.ix.B) }
func (s *step) addrA() (uint32, error) { return pcode.AsAddr(0, s.ix.A) }

func (s *step) pushLiteral() error {
	k, err := s.intA()
	if err != nil {
		return err
	}
	s.t.Push(k)
	return nil
}

// LoadValue: () -> (mem[a])
func (s *step) loadValue() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	s.t.Push(s.p.Read(a))
	return nil
}

// LoadAddress: () -> (a)
func (s *step) loadAddress() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	if a > uint32(1<<31-1) {
		return newFault(KindBadOperand, "address %d does not fit on the stack", a)
	}
	s.t.Push(int32(a))
	return nil
}

// LoadIndirect: (addr) -> (mem[addr])
func (s *step) loadIndirect() error {
	x, err := s.t.Top()
	if err != nil {
		return err
	}
	a, err := addrOf(x)
	if err != nil {
		return err
	}
	s.t.Pop()
	s.t.Push(s.p.Read(a))
	return nil
}

// Store: (x) -> ()
// StoreKeep: (x) -> (x)
func (s *step) store(keep bool) error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	x, err := s.t.Top()
	if err != nil {
		return err
	}
	if err := s.p.Write(a, x); err != nil {
		return err
	}
	if !keep {
		s.t.Pop()
	}
	return nil
}

// StoreIndirect: (addr x) -> ()
func (s *step) storeIndirect() error {
	x, err := s.t.Peek(0)
	if err != nil {
		return err
	}
	y, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	a, err := addrOf(y)
	if err != nil {
		return err
	}
	if err := s.p.Write(a, x); err != nil {
		return err
	}
	s.t.PopN(2)
	return nil
}

// Index: (base i) -> (base+i)
func (s *step) index() error {
	n, err := s.intA()
	if err != nil {
		return err
	}
	i, err := s.t.Peek(0)
	if err != nil {
		return err
	}
	base, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	if i < 0 || i >= n {
		return newFault(KindIndexOutOfRange, "index %d not in [0, %d)", i, n)
	}
	s.t.PopN(2)
	s.t.Push(base + i)
	return nil
}

// LoadLocal: () -> (stack[bp+k])
func (s *step) loadLocal() error {
	k, err := s.intA()
	if err != nil {
		return err
	}
	x, err := s.t.Slot(s.t.BP() + int(k))
	if err != nil {
		return err
	}
	s.t.Push(x)
	return nil
}

// StoreLocal: (x) -> ()
func (s *step) storeLocal() error {
	k, err := s.intA()
	if err != nil {
		return err
	}
	x, err := s.t.Top()
	if err != nil {
		return err
	}
	slot := s.t.BP() + int(k)
	if slot >= s.t.SP()-1 {
		return ErrStackUnderflow
	}
	if err := s.t.SetSlot(slot, x); err != nil {
		return err
	}
	s.t.Pop()
	return nil
}

// arith2: (l r) -> (l op r)
func (s *step) arith2() error {
	r, err := s.t.Peek(0)
	if err != nil {
		return err
	}
	l, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	var z int32
	switch s.ix.Op {
	case pcode.Add:
		z = l + r
	case pcode.Sub:
		z = l - r
	case pcode.Mult:
		z = l * r
	case pcode.Div:
		if r == 0 {
			return newFault(KindArithmetic, "division by zero")
		}
		z = l / r
	case pcode.Mod:
		if r == 0 {
			return newFault(KindArithmetic, "modulo by zero")
		}
		z = l % r
	}
	s.t.PopN(2)
	s.t.Push(z)
	return nil
}

// logic2: (l r) -> (l op r)
func (s *step) logic2() error {
	r, err := s.t.Peek(0)
	if err != nil {
		return err
	}
	l, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	var z bool
	switch s.ix.Op {
	case pcode.And:
		z = l != 0 && r != 0
	case pcode.Or:
		z = l != 0 || r != 0
	case pcode.TestEQ:
		z = l == r
	case pcode.TestNE:
		z = l != r
	case pcode.TestLT:
		z = l < r
	case pcode.TestLE:
		z = l <= r
	case pcode.TestGT:
		z = l > r
	case pcode.TestGE:
		z = l >= r
	}
	s.t.PopN(2)
	s.t.Push(boolInt(z))
	return nil
}

func (s *step) unary(fn func(int32) int32) error {
	x, err := s.t.Pop()
	if err != nil {
		return err
	}
	s.t.Push(fn(x))
	return nil
}

func (s *step) jumpOp() error {
	k, err := s.intA()
	if err != nil {
		return err
	}
	return s.jump(k)
}

// JumpZero: (cond) -> ()
func (s *step) jumpZero() error {
	k, err := s.intA()
	if err != nil {
		return err
	}
	if k < 0 {
		return s.jump(k)
	}
	x, err := s.t.Pop()
	if err != nil {
		return err
	}
	if x == 0 {
		return s.jump(k)
	}
	return nil
}

// Call: (args...) -> (args... retPC oldBP)
func (s *step) call() error {
	target, err := s.intA()
	if err != nil {
		return err
	}
	nargs, err := s.intB()
	if err != nil {
		return err
	}
	if nargs < 0 {
		return newFault(KindBadOperand, "negative argument count %d", nargs)
	}
	if err := s.t.Need(int(nargs)); err != nil {
		return err
	}
	if err := s.jump(target); err != nil {
		return err
	}
	t := s.t
	t.Push(int32(t.PC() + 1))
	t.Push(int32(t.BP()))
	t.SetBP(t.SP())
	t.depth++
	return nil
}

// Return: (args... retPC oldBP locals... [x]) -> ([x])
func (s *step) ret() error {
	nargs, err := s.intA()
	if err != nil {
		return err
	}
	flag, err := s.intB()
	if err != nil {
		return err
	}
	if nargs < 0 {
		return newFault(KindBadOperand, "negative argument count %d", nargs)
	}
	t := s.t
	if t.Depth() == 0 {
		s.terminate()
		return nil
	}
	hasValue := flag != 0
	bp := t.BP()
	var x int32
	if hasValue {
		if t.SP() <= bp {
			return ErrStackUnderflow
		}
		x, _ = t.Top()
	}
	frame := bp - 2 - int(nargs)
	if frame < 0 {
		return ErrStackUnderflow
	}
	retPC, err := t.Slot(bp - 2)
	if err != nil {
		return err
	}
	oldBP, err := t.Slot(bp - 1)
	if err != nil {
		return err
	}
	if err := s.jump(retPC); err != nil {
		return err
	}
	t.truncate(frame)
	if hasValue {
		t.Push(x)
	}
	t.SetBP(int(oldBP))
	t.depth--
	return nil
}

// forInit handles ForInit and ForInitDown.
//
// ForInit: (addr lo hi) -> (addr hi)
// ForInitDown: (addr hi lo) -> (addr lo)
func (s *step) forInit(down bool) error {
	exit, err := s.intA()
	if err != nil {
		return err
	}
	limit, err := s.t.Peek(0)
	if err != nil {
		return err
	}
	first, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	y, err := s.t.Peek(2)
	if err != nil {
		return err
	}
	a, err := addrOf(y)
	if err != nil {
		return err
	}
	enter := first <= limit
	if down {
		enter = first >= limit
	}
	if !enter {
		if err := s.jump(exit); err != nil {
			return err
		}
		s.t.PopN(3)
		return nil
	}
	if err := s.p.Write(a, first); err != nil {
		return err
	}
	s.t.PopN(2)
	s.t.Push(limit)
	return nil
}

// forStep handles ForStep and ForStepDown.
//
// (addr limit) -> (addr limit) if the loop continues
// (addr limit) -> () otherwise
func (s *step) forStep(down bool) error {
	body, err := s.intA()
	if err != nil {
		return err
	}
	limit, err := s.t.Peek(0)
	if err != nil {
		return err
	}
	y, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	a, err := addrOf(y)
	if err != nil {
		return err
	}
	v := s.p.Read(a)
	again := v < limit
	if down {
		again = v > limit
	}
	if !again {
		s.t.PopN(2)
		return nil
	}
	if err := s.jump(body); err != nil {
		return err
	}
	if down {
		v--
	} else {
		v++
	}
	return s.p.Write(a, v)
}
