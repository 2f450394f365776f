package pcode

import (
	"fmt"
	"strconv"
)

// Shape is the kind of value an operand slot holds.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeInt
	ShapeAddr
	ShapeText

	shapeOptional Shape = 1 << 7
)

// Optional marks a shape as allowed to be absent.
func Optional(s Shape) Shape {
	return s | shapeOptional
}

func (s Shape) IsOptional() bool {
	return s&shapeOptional != 0
}

// Base strips the optional flag.
func (s Shape) Base() Shape {
	return s &^ shapeOptional
}

// Accepts returns true if an operand of shape x may fill a slot of shape s.
func (s Shape) Accepts(x Shape) bool {
	if x == ShapeNone {
		return s.Base() == ShapeNone || s.IsOptional()
	}
	return s.Base() == x
}

func (s Shape) String() string {
	var name string
	switch s.Base() {
	case ShapeNone:
		name = "none"
	case ShapeInt:
		name = "int"
	case ShapeAddr:
		name = "addr"
	case ShapeText:
		name = "text"
	default:
		name = "Shape(" + strconv.Itoa(int(s.Base())) + ")"
	}
	if s.IsOptional() {
		name += "?"
	}
	return name
}

// Operand is the tagged value carried by an instruction slot.
// A nil Operand is the empty operand.
type Operand interface {
	Shape() Shape
	String() string
}

var (
	_ Operand = Int(0)
	_ Operand = Addr(0)
	_ Operand = Text("")
)

// Int is an immediate signed integer
type Int int32

func (Int) Shape() Shape     { return ShapeInt }
func (x Int) String() string { return strconv.FormatInt(int64(x), 10) }

// Addr is a memory address
type Addr uint32

func (Addr) Shape() Shape     { return ShapeAddr }
func (x Addr) String() string { return "@" + strconv.FormatUint(uint64(x), 10) }

// Text is a string literal
type Text string

func (Text) Shape() Shape     { return ShapeText }
func (x Text) String() string { return strconv.Quote(string(x)) }

// ShapeOf returns the shape of o, ShapeNone for nil.
func ShapeOf(o Operand) Shape {
	if o == nil {
		return ShapeNone
	}
	return o.Shape()
}

// OperandError is returned when an operand does not have the expected shape.
type OperandError struct {
	Slot int
	Want Shape
	Have Shape
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("operand %d: want %v, have %v", e.Slot, e.Want, e.Have)
}

// AsInt asserts that o is an Int.
func AsInt(slot int, o Operand) (int32, error) {
	x, ok := o.(Int)
	if !ok {
		return 0, &OperandError{Slot: slot, Want: ShapeInt, Have: ShapeOf(o)}
	}
	return int32(x), nil
}

// AsAddr asserts that o is an Addr.
func AsAddr(slot int, o Operand) (uint32, error) {
	x, ok := o.(Addr)
	if !ok {
		return 0, &OperandError{Slot: slot, Want: ShapeAddr, Have: ShapeOf(o)}
	}
	return uint32(x), nil
}

// AsText asserts that o is a Text.
func AsText(slot int, o Operand) (string, error) {
	x, ok := o.(Text)
	if !ok {
		return "", &OperandError{Slot: slot, Want: ShapeText, Have: ShapeOf(o)}
	}
	return string(x), nil
}

// IntOr returns the Int in o, or def if o is empty.
func IntOr(slot int, o Operand, def int32) (int32, error) {
	if o == nil {
		return def, nil
	}
	return AsInt(slot, o)
}
