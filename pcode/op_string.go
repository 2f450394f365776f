package pcode

import (
	"fmt"
	"strconv"
)

var opNames = map[Op]string{
	Unknown: "Unknown",

	PushLiteral:   "PushLiteral",
	LoadValue:     "LoadValue",
	LoadAddress:   "LoadAddress",
	LoadIndirect:  "LoadIndirect",
	Store:         "Store",
	StoreKeep:     "StoreKeep",
	StoreIndirect: "StoreIndirect",
	Index:         "Index",
	LoadLocal:     "LoadLocal",
	StoreLocal:    "StoreLocal",
	Pop:           "Pop",
	Dup:           "Dup",

	Add:    "Add",
	Sub:    "Sub",
	Mult:   "Mult",
	Div:    "Div",
	Mod:    "Mod",
	Negate: "Negate",

	And:    "And",
	Or:     "Or",
	Not:    "Not",
	TestEQ: "TestEQ",
	TestNE: "TestNE",
	TestLT: "TestLT",
	TestLE: "TestLE",
	TestGT: "TestGT",
	TestGE: "TestGE",

	Jump:     "Jump",
	JumpZero: "JumpZero",
	Call:     "Call",
	Return:   "Return",
	Halt:     "Halt",

	ForInit:     "ForInit",
	ForStep:     "ForStep",
	ForInitDown: "ForInitDown",
	ForStepDown: "ForStepDown",

	Cobegin:   "Cobegin",
	Coend:     "Coend",
	Create:    "Create",
	Suspend:   "Suspend",
	Revive:    "Revive",
	Yield:     "Yield",
	WhichProc: "WhichProc",

	Wait:                 "Wait",
	Signal:               "Signal",
	StoreSemaphore:       "StoreSemaphore",
	StoreBinarySemaphore: "StoreBinarySemaphore",

	EnterMonitor:    "EnterMonitor",
	ExitMonitor:     "ExitMonitor",
	WaitCondition:   "WaitCondition",
	SignalCondition: "SignalCondition",
	EmptyCondition:  "EmptyCondition",

	Read:           "Read",
	ReadChar:       "ReadChar",
	Write:          "Write",
	WriteChar:      "WriteChar",
	Writeln:        "Writeln",
	WriteRawString: "WriteRawString",
	WriteFormatted: "WriteFormatted",

	StoreString:   "StoreString",
	WriteString:   "WriteString",
	StringLength:  "StringLength",
	StringCompare: "StringCompare",
	StringCopy:    "StringCopy",
	StringConcat:  "StringConcat",

	Nop:    "Nop",
	Random: "Random",
}

var opsByName = func() map[string]Op {
	ret := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		ret[name] = op
	}
	return ret
}()

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "Op(" + strconv.Itoa(int(op)) + ")"
}

// ParseOp returns the Op with the given display name.
func ParseOp(name string) (Op, bool) {
	op, ok := opsByName[name]
	return op, ok
}

func (op Op) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

func (op *Op) UnmarshalText(data []byte) error {
	x, ok := ParseOp(string(data))
	if !ok {
		return fmt.Errorf("unknown op %q", data)
	}
	*op = x
	return nil
}
