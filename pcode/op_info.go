package pcode

// Info is information about Operations
type Info struct {
	// A and B are the operand shapes accepted in the first and second slot.
	A Shape `json:"a"`
	B Shape `json:"b"`
}

func (p Op) Info() Info {
	return infos[p]
}

// Arity returns the number of operand slots the op requires.
func (p Op) Arity() int {
	info := infos[p]
	var n int
	for _, s := range []Shape{info.A, info.B} {
		if s.Base() != ShapeNone && !s.IsOptional() {
			n++
		}
	}
	return n
}

var infos = func() (ret [1 << OpBits]Info) {
	m := map[Op]Info{
		PushLiteral: {A: ShapeInt},
		LoadValue:   {A: ShapeAddr},
		LoadAddress: {A: ShapeAddr},
		Store:       {A: ShapeAddr},
		StoreKeep:   {A: ShapeAddr},
		Index:       {A: ShapeInt},
		LoadLocal:   {A: ShapeInt},
		StoreLocal:  {A: ShapeInt},

		Jump:     {A: ShapeInt},
		JumpZero: {A: ShapeInt},
		Call:     {A: ShapeInt, B: ShapeInt},
		Return:   {A: ShapeInt, B: ShapeInt},

		ForInit:     {A: ShapeInt},
		ForStep:     {A: ShapeInt},
		ForInitDown: {A: ShapeInt},
		ForStepDown: {A: ShapeInt},

		Create: {A: ShapeInt, B: ShapeInt},

		EnterMonitor:    {A: ShapeAddr},
		ExitMonitor:     {A: ShapeAddr},
		WaitCondition:   {A: ShapeAddr, B: Optional(ShapeInt)},
		SignalCondition: {A: ShapeAddr},
		EmptyCondition:  {A: ShapeAddr},

		WriteRawString: {A: ShapeText},
		WriteFormatted: {A: ShapeInt},

		StoreString: {A: ShapeAddr, B: ShapeText},
	}
	for k, v := range m {
		ret[k] = v
	}
	return ret
}()
