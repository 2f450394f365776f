package pcode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Listing is the textual form of a compiled program.
type Listing struct {
	Instructions []Instruction
	Symbols      []Symbol
	Memory       []MemInit
}

// ParseError reports a malformed listing line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse reads a listing.
//
//	.var count int @0 global
//	.mem @0 5
//	0: LoadValue @0   ; comment
//	WriteRawString "done"
func Parse(r io.Reader) (*Listing, error) {
	var l Listing
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		toks, err := tokenize(sc.Text())
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}
		if len(toks) == 0 {
			continue
		}
		if err := l.parseLine(toks); err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &l, nil
}

// ParseString is Parse on a string.
func ParseString(x string) (*Listing, error) {
	return Parse(strings.NewReader(x))
}

func (l *Listing) parseLine(toks []string) error {
	if strings.HasPrefix(toks[0], ".") {
		return l.parseDirective(toks)
	}
	if label, ok := strings.CutSuffix(toks[0], ":"); ok {
		n, err := strconv.Atoi(label)
		if err != nil {
			return fmt.Errorf("bad label %q", toks[0])
		}
		if n != len(l.Instructions) {
			return fmt.Errorf("label %d does not match instruction index %d", n, len(l.Instructions))
		}
		toks = toks[1:]
		if len(toks) == 0 {
			return fmt.Errorf("label without instruction")
		}
	}
	op, ok := ParseOp(toks[0])
	if !ok || op == Unknown {
		return fmt.Errorf("unknown op %q", toks[0])
	}
	if len(toks) > 3 {
		return fmt.Errorf("%v: too many operands", op)
	}
	var operands []Operand
	for _, tok := range toks[1:] {
		o, err := parseOperand(tok)
		if err != nil {
			return err
		}
		operands = append(operands, o)
	}
	ix := I(op, operands...)
	if err := ix.Check(); err != nil {
		return fmt.Errorf("%v: %w", op, err)
	}
	l.Instructions = append(l.Instructions, ix)
	return nil
}

func (l *Listing) parseDirective(toks []string) error {
	switch toks[0] {
	case ".var":
		if len(toks) < 4 || len(toks) > 5 {
			return fmt.Errorf(".var takes name, type, address and an optional scope")
		}
		addr, err := parseAddr(toks[3])
		if err != nil {
			return err
		}
		sym := Symbol{Name: toks[1], Type: toks[2], Addr: addr, Global: true}
		if len(toks) == 5 {
			switch toks[4] {
			case "global":
			case "local":
				sym.Global = false
			default:
				return fmt.Errorf("unknown scope %q", toks[4])
			}
		}
		l.Symbols = append(l.Symbols, sym)
	case ".mem":
		if len(toks) != 3 {
			return fmt.Errorf(".mem takes an address and a value")
		}
		addr, err := parseAddr(toks[1])
		if err != nil {
			return err
		}
		v, err := strconv.ParseInt(toks[2], 10, 32)
		if err != nil {
			return err
		}
		l.Memory = append(l.Memory, MemInit{Addr: addr, Value: int32(v)})
	default:
		return fmt.Errorf("unknown directive %q", toks[0])
	}
	return nil
}

func parseOperand(tok string) (Operand, error) {
	switch {
	case strings.HasPrefix(tok, `"`):
		s, err := strconv.Unquote(tok)
		if err != nil {
			return nil, fmt.Errorf("bad string literal %s", tok)
		}
		return Text(s), nil
	case strings.HasPrefix(tok, "@"):
		a, err := parseAddr(tok)
		if err != nil {
			return nil, err
		}
		return Addr(a), nil
	default:
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", tok)
		}
		return Int(n), nil
	}
}

func parseAddr(tok string) (uint32, error) {
	s, ok := strings.CutPrefix(tok, "@")
	if !ok {
		return 0, fmt.Errorf("address must start with @, have %q", tok)
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", tok)
	}
	return uint32(n), nil
}

// tokenize splits a line on whitespace, keeping quoted strings whole and dropping comments.
func tokenize(line string) (ret []string, _ error) {
	for {
		line = strings.TrimLeftFunc(line, unicode.IsSpace)
		if line == "" || line[0] == ';' {
			return ret, nil
		}
		if line[0] == '"' {
			q, err := strconv.QuotedPrefix(line)
			if err != nil {
				return nil, fmt.Errorf("unterminated string literal")
			}
			ret = append(ret, q)
			line = line[len(q):]
			continue
		}
		end := strings.IndexFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || r == ';'
		})
		if end < 0 {
			end = len(line)
		}
		ret = append(ret, line[:end])
		line = line[end:]
	}
}

// Format writes l in the form accepted by Parse.
func Format(w io.Writer, l *Listing) error {
	bw := bufio.NewWriter(w)
	for _, sym := range l.Symbols {
		scope := "global"
		if !sym.Global {
			scope = "local"
		}
		fmt.Fprintf(bw, ".var %s %s @%d %s\n", sym.Name, sym.Type, sym.Addr, scope)
	}
	for _, mi := range l.Memory {
		fmt.Fprintf(bw, ".mem @%d %d\n", mi.Addr, mi.Value)
	}
	for i, ix := range l.Instructions {
		fmt.Fprintf(bw, "%d: %v\n", i, ix)
	}
	return bw.Flush()
}
