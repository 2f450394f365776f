// package bacrt runs BACI programs: it owns a program, an interpreter and a scheduler,
// and advances them one instruction at a time.
package bacrt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"nsbaci.org/nsbaci/bvm"
	"nsbaci.org/nsbaci/internal/ringbuf"
	"nsbaci.org/nsbaci/pcode"
)

type State uint8

const (
	// Idle means no program is loaded.
	Idle State = iota
	Paused
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(data []byte) error {
	for x := Idle; x <= Halted; x++ {
		if x.String() == string(data) {
			*s = x
			return nil
		}
	}
	return fmt.Errorf("unknown runtime state %q", data)
}

// Result is the outcome of one or more steps.
type Result struct {
	Errors     []*bvm.Fault `json:"errors,omitempty"`
	Halted     bool         `json:"halted"`
	NeedsInput bool         `json:"needs_input"`
	Prompt     string       `json:"prompt,omitempty"`
	Output     string       `json:"output"`
	// Steps is the number of instructions which completed.
	Steps int `json:"steps"`
}

func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err returns the first fault as an error, or nil.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

type Option func(rt *Runtime)

func WithInterpreter(in bvm.Interpreter) Option {
	return func(rt *Runtime) {
		rt.interp = in
	}
}

func WithScheduler(s bvm.Scheduler) Option {
	return func(rt *Runtime) {
		rt.sched = s
	}
}

// WithIDGen sets the generator used for the main thread.
// It should be the same generator the interpreter uses.
func WithIDGen(ids *bvm.IDGen) Option {
	return func(rt *Runtime) {
		rt.ids = ids
	}
}

// WithOutput sets a callback which receives output as it is written.
func WithOutput(fn func(string)) Option {
	return func(rt *Runtime) {
		rt.output = fn
	}
}

// Runtime is not safe for concurrent use, except for Pause.
type Runtime struct {
	cfg    Config
	ids    *bvm.IDGen
	interp bvm.Interpreter
	sched  bvm.Scheduler
	output func(string)

	prog  *bvm.Program
	state State
	// fatal is set until Reset once a fatal fault occurs
	fatal    *bvm.Fault
	pauseReq atomic.Bool
	trace    ringbuf.RingBuf[TraceEntry]
}

func New(cfg Config, opts ...Option) *Runtime {
	if cfg.Prompt == "" {
		cfg.Prompt = bvm.DefaultPrompt
	}
	rt := &Runtime{cfg: cfg}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.ids == nil {
		rt.ids = bvm.NewIDGen()
	}
	if rt.sched == nil {
		if cfg.Seed != 0 {
			rt.sched = bvm.NewSeededScheduler(cfg.Seed)
		} else {
			rt.sched = bvm.NewRandomScheduler(nil)
		}
	}
	if rt.interp == nil {
		iopts := []bvm.Option{bvm.WithPrompt(cfg.Prompt)}
		if cfg.Seed != 0 {
			iopts = append(iopts, bvm.WithRand(rand.New(rand.NewPCG(cfg.Seed, ^cfg.Seed))))
		}
		rt.interp = bvm.NewInterp(rt.ids, iopts...)
	}
	if rt.output != nil {
		rt.interp.SetOutput(rt.output)
	}
	rt.trace = ringbuf.New[TraceEntry](max(cfg.TraceLen, 1))
	return rt
}

func (rt *Runtime) Config() Config {
	return rt.cfg
}

func (rt *Runtime) State() State {
	return rt.state
}

// Program returns the loaded program or nil.
func (rt *Runtime) Program() *bvm.Program {
	return rt.prog
}

// Load installs p and resets the runtime.
func (rt *Runtime) Load(ctx context.Context, p *bvm.Program) {
	rt.prog = p
	logctx.Info(ctx, "program loaded",
		zap.Int("instructions", p.Len()),
		zap.Int("symbols", len(p.Symbols())),
	)
	rt.Reset(ctx)
}

// Reset drops every thread, restores the program's initial memory,
// and starts a new main thread at pc 0.
func (rt *Runtime) Reset(ctx context.Context) {
	rt.sched.Clear()
	rt.interp.Reset()
	rt.trace.Clear()
	rt.fatal = nil
	rt.pauseReq.Store(false)
	if rt.prog == nil {
		rt.state = Idle
		return
	}
	rt.prog.ResetMemory()
	main := rt.ids.NewThread(0)
	rt.sched.AddThread(main)
	rt.state = Paused
	logctx.Debug(ctx, "runtime reset", zap.Uint64("main", uint64(main.ID())))
}

// Step executes one instruction of a thread chosen by the scheduler.
func (rt *Runtime) Step(ctx context.Context) Result {
	return rt.step(ctx, rt.sched.PickNext, false)
}

// StepThread executes one instruction of the thread with the given id.
func (rt *Runtime) StepThread(ctx context.Context, id bvm.ThreadID) Result {
	return rt.step(ctx, func() *bvm.Thread { return rt.sched.PickThread(id) }, true)
}

func (rt *Runtime) step(ctx context.Context, pick func() *bvm.Thread, targeted bool) Result {
	switch {
	case rt.prog == nil:
		return faultResult(&bvm.Fault{Severity: bvm.Error, Kind: bvm.KindNotLoaded})
	case rt.state == Halted:
		return Result{Halted: true}
	case rt.fatal != nil:
		return faultResult(rt.fatal)
	}
	th := pick()
	if th == nil {
		if targeted && rt.sched.HasThreads() {
			return faultResult(&bvm.Fault{Severity: bvm.Error, Kind: bvm.KindNotRunnable, Msg: "thread is not ready"})
		}
		return rt.idle(ctx)
	}

	pc := th.PC()
	ix, _ := rt.prog.At(pc)
	res := rt.interp.Execute(th, rt.prog)
	if res.Err != nil {
		if res.Err.IsFatal() {
			rt.fatal = res.Err
			logctx.Error(ctx, "fatal fault", zap.Error(res.Err))
		} else {
			logctx.Info(ctx, "fault", zap.Error(res.Err))
		}
		rt.state = Paused
		return faultResult(res.Err)
	}
	// a thread that only asked for input has not executed anything yet
	if !res.NeedsInput {
		if rt.cfg.TraceLen > 0 {
			rt.trace.PushBack(TraceEntry{Thread: th.ID(), PC: pc, Op: ix.Op})
		}
		logctx.Debug(ctx, "step",
			zap.Uint64("thread", uint64(th.ID())),
			zap.Uint32("pc", pc),
			zap.Stringer("op", ix.Op),
		)
	}
	bvm.Apply(rt.sched, th, res)

	ret := Result{
		Output:     res.Output,
		NeedsInput: res.NeedsInput,
		Prompt:     res.Prompt,
	}
	if !res.NeedsInput {
		ret.Steps = 1
	}
	if th.State() == bvm.Terminated && !rt.sched.HasThreads() && !rt.sched.Stuck() {
		rt.halt(ctx)
		ret.Halted = true
	}
	return ret
}

// idle is called when no thread can be picked.
func (rt *Runtime) idle(ctx context.Context) Result {
	switch {
	case rt.sched.WaitingIO():
		return Result{NeedsInput: true, Prompt: rt.cfg.Prompt}
	case rt.sched.Stuck():
		rt.state = Paused
		f := &bvm.Fault{Severity: bvm.Error, Kind: bvm.KindDeadlock, Msg: "every thread is blocked"}
		logctx.Warnf(ctx, "deadlock: %d threads blocked", len(rt.sched.Threads()))
		return faultResult(f)
	default:
		rt.halt(ctx)
		return Result{Halted: true}
	}
}

func (rt *Runtime) halt(ctx context.Context) {
	rt.state = Halted
	logctx.Info(ctx, "program halted")
}

// Run steps until a fault, halt, input request, a Pause, ctx is done,
// or maxSteps instructions have completed. 0 is unbounded.
func (rt *Runtime) Run(ctx context.Context, maxSteps int) Result {
	rt.pauseReq.Store(false)
	if rt.state == Paused {
		rt.state = Running
	}
	defer func() {
		if rt.state == Running {
			rt.state = Paused
		}
	}()
	var ret Result
	var out strings.Builder
	for maxSteps == 0 || ret.Steps < maxSteps {
		if ctx.Err() != nil || rt.pauseReq.Swap(false) {
			break
		}
		r := rt.Step(ctx)
		out.WriteString(r.Output)
		ret.Steps += r.Steps
		if !r.OK() || r.Halted || r.NeedsInput {
			ret.Errors = r.Errors
			ret.Halted = r.Halted
			ret.NeedsInput = r.NeedsInput
			ret.Prompt = r.Prompt
			break
		}
	}
	ret.Output = out.String()
	return ret
}

// Pause stops a Run in progress. It may be called from any goroutine.
func (rt *Runtime) Pause() {
	rt.pauseReq.Store(true)
}

// ProvideInput supplies a line of input and wakes every thread waiting for it.
func (rt *Runtime) ProvideInput(text string) {
	rt.interp.ProvideInput(text)
	rt.sched.UnblockIO()
}

func (rt *Runtime) IsWaitingForInput() bool {
	return rt.interp.WaitingForInput()
}

func faultResult(f *bvm.Fault) Result {
	return Result{Errors: []*bvm.Fault{f}}
}

// TraceEntry is one executed instruction.
type TraceEntry struct {
	Thread bvm.ThreadID `json:"thread"`
	PC     uint32       `json:"pc"`
	Op     pcode.Op     `json:"op"`
}
