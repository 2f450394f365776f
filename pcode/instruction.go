package pcode

import (
	"fmt"
	"strings"
)

// Instruction is one operation with up to two operands.
// Instructions are values; nothing mutates them after the front end produces them.
type Instruction struct {
	Op Op
	A  Operand
	B  Operand
}

// I constructs an Instruction.
func I(op Op, operands ...Operand) Instruction {
	ix := Instruction{Op: op}
	if len(operands) > 0 {
		ix.A = operands[0]
	}
	if len(operands) > 1 {
		ix.B = operands[1]
	}
	if len(operands) > 2 {
		panic(fmt.Sprintf("pcode: %v takes at most 2 operands, got %d", op, len(operands)))
	}
	return ix
}

// Check returns an error if the operands do not match the shapes declared for the op.
func (ix Instruction) Check() error {
	if _, ok := opNames[ix.Op]; !ok || ix.Op == Unknown {
		return fmt.Errorf("unknown op %v", ix.Op)
	}
	info := ix.Op.Info()
	if have := ShapeOf(ix.A); !info.A.Accepts(have) {
		return &OperandError{Slot: 0, Want: info.A, Have: have}
	}
	if have := ShapeOf(ix.B); !info.B.Accepts(have) {
		return &OperandError{Slot: 1, Want: info.B, Have: have}
	}
	return nil
}

func (ix Instruction) String() string {
	sb := strings.Builder{}
	sb.WriteString(ix.Op.String())
	for _, o := range []Operand{ix.A, ix.B} {
		if o == nil {
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(o.String())
	}
	return sb.String()
}
