package bvm

import (
	"math/rand/v2"
	"strings"

	"nsbaci.org/nsbaci/pcode"
)

// DefaultPrompt is shown when a thread asks for input.
const DefaultPrompt = "Enter value: "

// Result is the outcome of executing one instruction.
// Scheduling effects are reported here, and applied by the caller.
type Result struct {
	// Err is set if the instruction faulted. No other field is set when it is.
	Err *Fault
	// NeedsInput is set when the thread is waiting for ProvideInput.
	NeedsInput bool
	Prompt     string
	// Output is everything the instruction wrote.
	Output string

	// Block moves the executing thread to the blocked queue.
	Block bool
	// Yield puts the executing thread back into the ready queue.
	Yield bool
	// Wake lists blocked threads which should be made ready, in order.
	Wake []ThreadID
	// Spawn lists new threads which should be made ready.
	Spawn []*Thread
}

// OK is true if the instruction did not fault.
func (r Result) OK() bool {
	return r.Err == nil
}

// Interpreter executes single instructions.
type Interpreter interface {
	// Execute runs the instruction at t's pc.
	Execute(t *Thread, p *Program) Result
	// ProvideInput sets the text consumed by the next input instruction.
	ProvideInput(text string)
	// WaitingForInput is true if an input instruction is waiting on ProvideInput.
	WaitingForInput() bool
	// SetOutput sets a callback receiving everything written, as it is written.
	SetOutput(fn func(string))
	// Reset clears pending input and all synchronization state.
	Reset()
}

var _ Interpreter = &Interp{}

// Interp is the Interpreter for the BACI instruction set.
type Interp struct {
	ids    *IDGen
	rng    *rand.Rand
	prompt string
	output func(string)

	hasInput bool
	input    string
	waiting  bool

	sync syncState
}

type Option func(*Interp)

// WithRand sets the source used by the Random instruction.
func WithRand(rng *rand.Rand) Option {
	return func(in *Interp) {
		in.rng = rng
	}
}

// WithPrompt sets the prompt returned with NeedsInput.
func WithPrompt(prompt string) Option {
	return func(in *Interp) {
		in.prompt = prompt
	}
}

// NewInterp creates an interpreter.
// ids allocates the ids of threads created by Create.
func NewInterp(ids *IDGen, opts ...Option) *Interp {
	in := &Interp{
		ids:    ids,
		prompt: DefaultPrompt,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.rng == nil {
		in.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	in.sync.init()
	return in
}

func (in *Interp) ProvideInput(text string) {
	in.input = text
	in.hasInput = true
}

func (in *Interp) WaitingForInput() bool {
	return in.waiting
}

func (in *Interp) SetOutput(fn func(string)) {
	in.output = fn
}

func (in *Interp) Reset() {
	in.input = ""
	in.hasInput = false
	in.waiting = false
	in.sync.init()
}

// step is the state of one Execute call.
type step struct {
	in  *Interp
	t   *Thread
	p   *Program
	ix  pcode.Instruction
	res *Result
	out strings.Builder
	// next is the pc after the instruction; nil means pc+1
	next *uint32
	stay bool
}

// jump sets the pc the thread continues at.
func (s *step) jump(target int32) error {
	if target < 0 {
		return newFault(KindBadOperand, "negative jump target %d", target)
	}
	pc := uint32(target)
	s.next = &pc
	return nil
}

func (s *step) write(x string) {
	s.out.WriteString(x)
}

func (s *step) wake(id ThreadID) {
	s.res.Wake = append(s.res.Wake, id)
}

func (s *step) block() {
	s.res.Block = true
}

// terminate ends the executing thread and releases everything it holds.
func (s *step) terminate() {
	s.t.SetState(Terminated)
	s.stay = true
	s.in.sync.release(s)
}

func (in *Interp) Execute(t *Thread, p *Program) Result {
	pc := t.PC()
	ix, ok := p.At(pc)
	if !ok {
		return Result{Err: &Fault{
			Severity: Fatal,
			Kind:     KindPCOutOfRange,
			Msg:      "no instruction at pc",
			Thread:   t.ID(),
			PC:       pc,
		}}
	}
	var res Result
	s := &step{in: in, t: t, p: p, ix: ix, res: &res}
	if err := in.dispatch(s); err != nil {
		f := asFault(err)
		f.Thread, f.PC, f.Op = t.ID(), pc, ix.Op
		return Result{Err: f}
	}
	switch {
	case s.stay:
	case s.next != nil:
		t.SetPC(*s.next)
	default:
		t.AdvancePC()
	}
	if s.out.Len() > 0 {
		res.Output = s.out.String()
		if in.output != nil {
			in.output(res.Output)
		}
	}
	return res
}

func (in *Interp) dispatch(s *step) error {
	switch s.ix.Op {
	// Stack
	case pcode.PushLiteral:
		return s.pushLiteral()
	case pcode.LoadValue:
		return s.loadValue()
	case pcode.LoadAddress:
		return s.loadAddress()
	case pcode.LoadIndirect:
		return s.loadIndirect()
	case pcode.Store:
		return s.store(false)
	case pcode.StoreKeep:
		return s.store(true)
	case pcode.StoreIndirect:
		return s.storeIndirect()
	case pcode.Index:
		return s.index()
	case pcode.LoadLocal:
		return s.loadLocal()
	case pcode.StoreLocal:
		return s.storeLocal()
	case pcode.Pop:
		_, err := s.t.Pop()
		return err
	case pcode.Dup:
		x, err := s.t.Top()
		if err != nil {
			return err
		}
		s.t.Push(x)
		return nil

	// Arithmetic
	case pcode.Add, pcode.Sub, pcode.Mult, pcode.Div, pcode.Mod:
		return s.arith2()
	case pcode.Negate:
		return s.unary(func(x int32) int32 { return -x })

	// Logic
	case pcode.And, pcode.Or,
		pcode.TestEQ, pcode.TestNE, pcode.TestLT, pcode.TestLE, pcode.TestGT, pcode.TestGE:
		return s.logic2()
	case pcode.Not:
		return s.unary(func(x int32) int32 { return boolInt(x == 0) })

	// Control
	case pcode.Jump:
		return s.jumpOp()
	case pcode.JumpZero:
		return s.jumpZero()
	case pcode.Call:
		return s.call()
	case pcode.Return:
		return s.ret()
	case pcode.Halt:
		s.terminate()
		return nil

	// Loops
	case pcode.ForInit:
		return s.forInit(false)
	case pcode.ForInitDown:
		return s.forInit(true)
	case pcode.ForStep:
		return s.forStep(false)
	case pcode.ForStepDown:
		return s.forStep(true)

	// Processes
	case pcode.Cobegin:
		return s.cobegin()
	case pcode.Coend:
		return s.coend()
	case pcode.Create:
		return s.create()
	case pcode.Suspend:
		return s.suspend()
	case pcode.Revive:
		return s.revive()
	case pcode.Yield:
		s.res.Yield = true
		return nil
	case pcode.WhichProc:
		s.t.Push(int32(s.t.ID()))
		return nil

	// Semaphores
	case pcode.Wait:
		return s.semWait()
	case pcode.Signal:
		return s.semSignal()
	case pcode.StoreSemaphore:
		return s.storeSemaphore(false)
	case pcode.StoreBinarySemaphore:
		return s.storeSemaphore(true)

	// Monitors
	case pcode.EnterMonitor:
		return s.enterMonitor()
	case pcode.ExitMonitor:
		return s.exitMonitor()
	case pcode.WaitCondition:
		return s.waitCondition()
	case pcode.SignalCondition:
		return s.signalCondition()
	case pcode.EmptyCondition:
		return s.emptyCondition()

	// I/O
	case pcode.Read:
		return s.read(false)
	case pcode.ReadChar:
		return s.read(true)
	case pcode.Write:
		return s.writeInt()
	case pcode.WriteChar:
		return s.writeChar()
	case pcode.Writeln:
		s.write("\n")
		return nil
	case pcode.WriteRawString:
		return s.writeRaw()
	case pcode.WriteFormatted:
		return s.writeFormatted()

	// Strings
	case pcode.StoreString:
		return s.storeString()
	case pcode.WriteString:
		return s.writeString()
	case pcode.StringLength:
		return s.stringLength()
	case pcode.StringCompare:
		return s.stringCompare()
	case pcode.StringCopy:
		return s.stringCopy(false)
	case pcode.StringConcat:
		return s.stringCopy(true)

	// Misc
	case pcode.Nop:
		return nil
	case pcode.Random:
		return s.random()

	default:
		return newFault(KindUnimplemented, "%v", s.ix.Op)
	}
}

func boolInt(x bool) int32 {
	if x {
		return 1
	}
	return 0
}

// addrOf converts a value popped from the stack into a memory address.
func addrOf(x int32) (uint32, error) {
	if x < 0 {
		return 0, newFault(KindBadOperand, "negative address %d", x)
	}
	return uint32(x), nil
}
