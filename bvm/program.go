package bvm

import (
	"maps"
	"slices"
	"strings"

	"nsbaci.org/nsbaci/pcode"
)

// MaxMemory is the number of cells a program's data memory may grow to.
const MaxMemory = 1 << 20

// Program is the immutable instruction list, the symbol table, and the data memory.
type Program struct {
	instrs  []pcode.Instruction
	symbols map[string]pcode.Symbol
	mem     []int32
	initial []int32
}

// NewProgram creates a program.
// init is applied to memory now, and again every time ResetMemory is called.
func NewProgram(instrs []pcode.Instruction, symbols []pcode.Symbol, init []pcode.MemInit) *Program {
	p := &Program{
		instrs:  slices.Clone(instrs),
		symbols: make(map[string]pcode.Symbol, len(symbols)),
	}
	for _, sym := range symbols {
		p.symbols[sym.Name] = sym
	}
	for _, mi := range init {
		p.Write(mi.Addr, mi.Value)
	}
	p.initial = slices.Clone(p.mem)
	return p
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.instrs)
}

// At returns the instruction at pc.
func (p *Program) At(pc uint32) (pcode.Instruction, bool) {
	if int64(pc) >= int64(len(p.instrs)) {
		return pcode.Instruction{}, false
	}
	return p.instrs[pc], true
}

// Instructions returns a copy of the instruction list.
func (p *Program) Instructions() []pcode.Instruction {
	return slices.Clone(p.instrs)
}

// Read returns the value at addr.
// Cells which were never written read as 0.
func (p *Program) Read(addr uint32) int32 {
	if int64(addr) >= int64(len(p.mem)) {
		return 0
	}
	return p.mem[addr]
}

// Write sets the value at addr, growing memory as needed.
func (p *Program) Write(addr uint32, x int32) error {
	if addr >= MaxMemory {
		return newFault(KindMemoryLimit, "address %d exceeds memory limit %d", addr, MaxMemory)
	}
	if int(addr) >= len(p.mem) {
		p.mem = append(p.mem, make([]int32, int(addr)+1-len(p.mem))...)
	}
	p.mem[addr] = x
	return nil
}

// Memory returns a copy of the data memory.
func (p *Program) Memory() []int32 {
	return slices.Clone(p.mem)
}

// ResetMemory restores memory to the state it had when the program was created.
func (p *Program) ResetMemory() {
	p.mem = slices.Clone(p.initial)
}

// AddSymbol adds sym to the table, replacing any symbol with the same name.
func (p *Program) AddSymbol(sym pcode.Symbol) {
	p.symbols[sym.Name] = sym
}

func (p *Program) Symbol(name string) (pcode.Symbol, bool) {
	sym, ok := p.symbols[name]
	return sym, ok
}

// Symbols returns the symbol table sorted by name.
func (p *Program) Symbols() []pcode.Symbol {
	return slices.SortedFunc(maps.Values(p.symbols), func(a, b pcode.Symbol) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// Listing returns the program in listing form, with the initial memory image.
func (p *Program) Listing() *pcode.Listing {
	l := &pcode.Listing{
		Instructions: p.Instructions(),
		Symbols:      p.Symbols(),
	}
	for addr, v := range p.initial {
		if v != 0 {
			l.Memory = append(l.Memory, pcode.MemInit{Addr: uint32(addr), Value: v})
		}
	}
	return l
}
