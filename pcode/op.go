// package pcode contains the instruction set of the BACI virtual machine
package pcode

// OpBits is the number of bits needed to encode an Op
const OpBits = 8

// Op is a virtual machine operation
type Op uint8

const section = 1 << 4

const (
	Unknown Op = iota
)

// stack and memory
const (
	// PushLiteral k: () -> k
	PushLiteral Op = 1*section + iota
	// LoadValue @a: () -> mem[a]
	LoadValue
	// LoadAddress @a: () -> a
	LoadAddress
	// LoadIndirect: (a) -> mem[a]
	LoadIndirect
	// Store @a: (x) -> ()
	Store
	// StoreKeep @a: (x) -> (x)
	StoreKeep
	// StoreIndirect: (a x) -> ()
	StoreIndirect
	// Index n: (base i) -> base+i, with 0 <= i < n
	Index
	// LoadLocal k: () -> stack[bp+k]
	LoadLocal
	// StoreLocal k: (x) -> (), stack[bp+k] = x
	StoreLocal
	// Pop: (x) -> ()
	Pop
	// Dup: (x) -> (x x)
	Dup
)

// arithmetic
const (
	// Add: (a b) -> a+b
	Add Op = 2*section + iota
	// Sub: (a b) -> a-b
	Sub
	// Mult: (a b) -> a*b
	Mult
	// Div: (a b) -> a/b
	Div
	// Mod: (a b) -> a%b
	Mod
	// Negate: (a) -> -a
	Negate
)

// logical and comparison
const (
	// And: (a b) -> a && b
	And Op = 3*section + iota
	// Or: (a b) -> a || b
	Or
	// Not: (a) -> !a
	Not
	// TestEQ: (a b) -> a == b
	TestEQ
	// TestNE: (a b) -> a != b
	TestNE
	// TestLT: (a b) -> a < b
	TestLT
	// TestLE: (a b) -> a <= b
	TestLE
	// TestGT: (a b) -> a > b
	TestGT
	// TestGE: (a b) -> a >= b
	TestGE
)

// control flow
const (
	// Jump k
	Jump Op = 4*section + iota
	// JumpZero k: (cond) -> ()
	JumpZero
	// Call target nargs: (args...) -> (args... ret bp)
	Call
	// Return nargs hasValue: (args... ret bp locals... [v]) -> ([v])
	Return
	// Halt terminates the executing thread
	Halt
)

// loop control
const (
	// ForInit exit: (a lo hi) -> (a hi) | ()
	ForInit Op = 5*section + iota
	// ForStep body: (a hi) -> (a hi) | ()
	ForStep
	// ForInitDown exit: (a hi lo) -> (a lo) | ()
	ForInitDown
	// ForStepDown body: (a lo) -> (a lo) | ()
	ForStepDown
)

// concurrency: processes
const (
	// Cobegin opens a group of concurrently created threads
	Cobegin Op = 6*section + iota
	// Coend waits until every thread of the group has terminated
	Coend
	// Create target nargs: (args...) -> ()
	Create
	// Suspend blocks the executing thread until it is revived
	Suspend
	// Revive: (id) -> ()
	Revive
	// Yield gives up the processor
	Yield
	// WhichProc: () -> id
	WhichProc
)

// concurrency: semaphores
const (
	// Wait: (a) -> ()
	Wait Op = 7*section + iota
	// Signal: (a) -> ()
	Signal
	// StoreSemaphore: (a n) -> ()
	StoreSemaphore
	// StoreBinarySemaphore: (a n) -> ()
	StoreBinarySemaphore
)

// concurrency: monitors
const (
	// EnterMonitor @m
	EnterMonitor Op = 8*section + iota
	// ExitMonitor @m
	ExitMonitor
	// WaitCondition @c [prio]
	WaitCondition
	// SignalCondition @c
	SignalCondition
	// EmptyCondition @c: () -> empty
	EmptyCondition
)

// I/O
const (
	// Read: () -> n
	Read Op = 9*section + iota
	// ReadChar: () -> c
	ReadChar
	// Write: (n) -> ()
	Write
	// WriteChar: (c) -> ()
	WriteChar
	// Writeln writes a newline
	Writeln
	// WriteRawString "s"
	WriteRawString
	// WriteFormatted width: (n) -> ()
	WriteFormatted
)

// strings
const (
	// StoreString @a "s"
	StoreString Op = 10*section + iota
	// WriteString: (a) -> ()
	WriteString
	// StringLength: (a) -> len
	StringLength
	// StringCompare: (a b) -> cmp
	StringCompare
	// StringCopy: (dst src) -> ()
	StringCopy
	// StringConcat: (dst src) -> ()
	StringConcat
)

// miscellaneous
const (
	// Nop does nothing
	Nop Op = 11*section + iota
	// Random: (n) -> [0, n)
	Random
)

// Category is the section of the instruction set an Op belongs to
type Category uint8

const (
	CatNone Category = iota
	CatStack
	CatArith
	CatLogic
	CatControl
	CatLoop
	CatProcess
	CatSemaphore
	CatMonitor
	CatIO
	CatString
	CatMisc
)

var categoryNames = [...]string{
	CatNone:      "none",
	CatStack:     "stack",
	CatArith:     "arithmetic",
	CatLogic:     "logical",
	CatControl:   "control",
	CatLoop:      "loop",
	CatProcess:   "process",
	CatSemaphore: "semaphore",
	CatMonitor:   "monitor",
	CatIO:        "io",
	CatString:    "string",
	CatMisc:      "misc",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// Category returns the section the op is encoded in.
func (op Op) Category() Category {
	c := Category(op / section)
	if c > CatMisc {
		return CatNone
	}
	return c
}

// IsConcurrency is true for process, semaphore and monitor operations.
func (op Op) IsConcurrency() bool {
	switch op.Category() {
	case CatProcess, CatSemaphore, CatMonitor:
		return true
	}
	return false
}
