package bvm

import (
	"errors"
	"fmt"

	"nsbaci.org/nsbaci/pcode"
)

// Severity is how bad a Fault is.
type Severity uint8

const (
	// Warning is reserved for diagnostics which do not stop execution.
	Warning Severity = iota
	// Error faults pause execution. The faulting instruction can be retried.
	Error
	// Fatal faults stop execution until the runtime is reset.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// Kind classifies a Fault.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPCOutOfRange
	KindArithmetic
	KindInvalidInput
	KindUnimplemented
	KindStackUnderflow
	KindBadOperand
	KindIndexOutOfRange
	KindInvalidSemaphore
	KindMonitorViolation
	KindProcessViolation
	KindMemoryLimit
	KindDeadlock
	KindNotLoaded
	KindNotRunnable
)

var kindNames = [...]string{
	KindUnknown:          "unknown",
	KindPCOutOfRange:     "program counter out of range",
	KindArithmetic:       "arithmetic error",
	KindInvalidInput:     "invalid input",
	KindUnimplemented:    "unimplemented opcode",
	KindStackUnderflow:   "stack underflow",
	KindBadOperand:       "bad operand",
	KindIndexOutOfRange:  "index out of range",
	KindInvalidSemaphore: "invalid semaphore",
	KindMonitorViolation: "monitor violation",
	KindProcessViolation: "process violation",
	KindMemoryLimit:      "memory limit",
	KindDeadlock:         "deadlock",
	KindNotLoaded:        "no program loaded",
	KindNotRunnable:      "thread not runnable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Fault is a structured execution error.
type Fault struct {
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
	Msg      string   `json:"msg"`
	Thread   ThreadID `json:"thread"`
	PC       uint32   `json:"pc"`
	Op       pcode.Op `json:"op"`
}

func (f *Fault) Error() string {
	if f.Msg == "" {
		return fmt.Sprintf("%v (thread %d, pc %d, %v)", f.Kind, f.Thread, f.PC, f.Op)
	}
	return fmt.Sprintf("%v: %s (thread %d, pc %d, %v)", f.Kind, f.Msg, f.Thread, f.PC, f.Op)
}

// IsFatal is true if execution cannot continue without a reset.
func (f *Fault) IsFatal() bool {
	return f.Severity == Fatal
}

// ErrStackUnderflow is returned by Thread operations on an empty stack.
var ErrStackUnderflow = errors.New("stack underflow")

func newFault(k Kind, format string, args ...any) *Fault {
	return &Fault{Severity: Error, Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// asFault converts any error produced while executing an instruction into a Fault.
func asFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	var oe *pcode.OperandError
	if errors.As(err, &oe) {
		return &Fault{Severity: Error, Kind: KindBadOperand, Msg: oe.Error()}
	}
	if errors.Is(err, ErrStackUnderflow) {
		return &Fault{Severity: Error, Kind: KindStackUnderflow}
	}
	return &Fault{Severity: Error, Kind: KindUnknown, Msg: err.Error()}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(data []byte) error {
	for i, name := range kindNames {
		if name == string(data) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown fault kind %q", data)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(data []byte) error {
	for x := Warning; x <= Fatal; x++ {
		if x.String() == string(data) {
			*s = x
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", data)
}
