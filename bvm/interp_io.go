package bvm

import (
	"fmt"
	"strconv"
	"strings"

	"nsbaci.org/nsbaci/pcode"
)

// MaxString is the longest string the string instructions will read or write.
const MaxString = 1 << 16

// Read: () -> (x)
// ReadChar: () -> (c)
func (s *step) read(char bool) error {
	in := s.in
	if !in.hasInput {
		in.waiting = true
		s.t.SetState(WaitingIO)
		s.res.NeedsInput = true
		s.res.Prompt = in.prompt
		s.stay = true
		return nil
	}
	text := in.input
	in.input, in.hasInput = "", false
	var x int32
	if char {
		text = strings.TrimRight(text, "\r\n")
		if text == "" {
			return newFault(KindInvalidInput, "expected a character")
		}
		x = int32(text[0])
	} else {
		text = strings.TrimSpace(text)
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return newFault(KindInvalidInput, "%q is not an integer", text)
		}
		x = int32(n)
	}
	in.waiting = false
	s.t.Push(x)
	return nil
}

// Write: (x) -> ()
func (s *step) writeInt() error {
	x, err := s.t.Pop()
	if err != nil {
		return err
	}
	s.write(strconv.FormatInt(int64(x), 10))
	return nil
}

// WriteChar: (c) -> ()
func (s *step) writeChar() error {
	x, err := s.t.Pop()
	if err != nil {
		return err
	}
	s.write(string([]byte{byte(x)}))
	return nil
}

func (s *step) writeRaw() error {
	text, err := pcode.AsText(0, s.ix.A)
	if err != nil {
		return err
	}
	s.write(text)
	return nil
}

// WriteFormatted: (x) -> ()
func (s *step) writeFormatted() error {
	w, err := s.intA()
	if err != nil {
		return err
	}
	if w < 0 || w > MaxString {
		return newFault(KindBadOperand, "field width %d", w)
	}
	x, err := s.t.Pop()
	if err != nil {
		return err
	}
	s.write(fmt.Sprintf("%*d", w, x))
	return nil
}

// checkSpan fails if a string of length n at a would not fit in memory.
func checkSpan(a uint32, n int) error {
	if end := uint64(a) + uint64(n) + 1; end > MaxMemory {
		return newFault(KindMemoryLimit, "string of length %d at @%d exceeds memory limit %d", n, a, MaxMemory)
	}
	return nil
}

// loadString reads the string stored at a.
func (s *step) loadString(a uint32) (string, error) {
	n := s.p.Read(a)
	if n < 0 || n > MaxString {
		return "", newFault(KindIndexOutOfRange, "string at @%d has length %d", a, n)
	}
	if err := checkSpan(a, int(n)); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(s.p.Read(a + 1 + uint32(i)))
	}
	return string(buf), nil
}

// storeText writes x at a as a length followed by one cell per byte.
// Nothing is written unless the whole string fits.
func (s *step) storeText(a uint32, x string) error {
	if len(x) > MaxString {
		return newFault(KindIndexOutOfRange, "string of length %d", len(x))
	}
	if err := checkSpan(a, len(x)); err != nil {
		return err
	}
	if err := s.p.Write(a, int32(len(x))); err != nil {
		return err
	}
	for i := 0; i < len(x); i++ {
		if err := s.p.Write(a+1+uint32(i), int32(x[i])); err != nil {
			return err
		}
	}
	return nil
}

// peekString reads the string whose address is depth slots below the top of the stack.
func (s *step) peekString(depth int) (string, error) {
	y, err := s.t.Peek(depth)
	if err != nil {
		return "", err
	}
	a, err := addrOf(y)
	if err != nil {
		return "", err
	}
	return s.loadString(a)
}

// popString pops an address and reads the string there.
// The stack is unchanged on error.
func (s *step) popString() (string, error) {
	x, err := s.peekString(0)
	if err != nil {
		return "", err
	}
	s.t.Pop()
	return x, nil
}

func (s *step) storeString() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	text, err := pcode.AsText(1, s.ix.B)
	if err != nil {
		return err
	}
	return s.storeText(a, text)
}

// WriteString: (addr) -> ()
func (s *step) writeString() error {
	x, err := s.popString()
	if err != nil {
		return err
	}
	s.write(x)
	return nil
}

// StringLength: (addr) -> (len)
func (s *step) stringLength() error {
	x, err := s.popString()
	if err != nil {
		return err
	}
	s.t.Push(int32(len(x)))
	return nil
}

// StringCompare: (a b) -> (cmp)
func (s *step) stringCompare() error {
	if err := s.t.Need(2); err != nil {
		return err
	}
	b, err := s.peekString(0)
	if err != nil {
		return err
	}
	a, err := s.peekString(1)
	if err != nil {
		return err
	}
	s.t.PopN(2)
	s.t.Push(int32(strings.Compare(a, b)))
	return nil
}

// stringCopy handles StringCopy and StringConcat.
//
// (dst src) -> ()
func (s *step) stringCopy(concat bool) error {
	if err := s.t.Need(2); err != nil {
		return err
	}
	src, err := s.peekString(0)
	if err != nil {
		return err
	}
	y, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	dst, err := addrOf(y)
	if err != nil {
		return err
	}
	if concat {
		prefix, err := s.loadString(dst)
		if err != nil {
			return err
		}
		src = prefix + src
	}
	if len(src) > MaxString {
		return newFault(KindIndexOutOfRange, "string of length %d", len(src))
	}
	if err := checkSpan(dst, len(src)); err != nil {
		return err
	}
	s.t.PopN(2)
	return s.storeText(dst, src)
}

// Random: (n) -> (x)
func (s *step) random() error {
	n, err := s.t.Top()
	if err != nil {
		return err
	}
	if n <= 0 {
		return newFault(KindArithmetic, "random bound %d must be positive", n)
	}
	s.t.Pop()
	s.t.Push(s.in.rng.Int32N(n))
	return nil
}
