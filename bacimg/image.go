// package bacimg stores compiled BACI programs as canonical CBOR images.
package bacimg

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"nsbaci.org/nsbaci"
	"nsbaci.org/nsbaci/bvm"
	"nsbaci.org/nsbaci/pcode"
)

const (
	// Version is written into every encoded image.
	Version = 1

	ExtListing = ".pcode"
	ExtImage   = ".bimg"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bacimg: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Image is a loadable program: code, symbols and initial memory.
type Image struct {
	Instructions []pcode.Instruction
	Symbols      []pcode.Symbol
	Memory       []pcode.MemInit
}

func FromListing(l *pcode.Listing) *Image {
	return &Image{
		Instructions: l.Instructions,
		Symbols:      l.Symbols,
		Memory:       l.Memory,
	}
}

func (img *Image) Listing() *pcode.Listing {
	return &pcode.Listing{
		Instructions: img.Instructions,
		Symbols:      img.Symbols,
		Memory:       img.Memory,
	}
}

// Program builds a fresh bvm.Program from the image.
func (img *Image) Program() *bvm.Program {
	return bvm.NewProgram(img.Instructions, img.Symbols, img.Memory)
}

// Check returns the first instruction whose operands do not fit its op.
func (img *Image) Check() error {
	for i, ix := range img.Instructions {
		if err := ix.Check(); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}

// Fingerprint is the hash of the canonical encoding.
func (img *Image) Fingerprint() nsbaci.Fingerprint {
	data, err := Encode(img)
	if err != nil {
		panic(err)
	}
	return nsbaci.Hash(data)
}

type wireImage struct {
	Version uint            `cbor:"1,keyasint"`
	Code    []wireInstr     `cbor:"2,keyasint,omitempty"`
	Symbols []pcode.Symbol  `cbor:"3,keyasint,omitempty"`
	Memory  []pcode.MemInit `cbor:"4,keyasint,omitempty"`
}

type wireInstr struct {
	Op uint8        `cbor:"1,keyasint"`
	A  *wireOperand `cbor:"2,keyasint,omitempty"`
	B  *wireOperand `cbor:"3,keyasint,omitempty"`
}

// wireOperand has exactly one field set.
type wireOperand struct {
	Int  *int32  `cbor:"1,keyasint,omitempty"`
	Addr *uint32 `cbor:"2,keyasint,omitempty"`
	Text *string `cbor:"3,keyasint,omitempty"`
}

func toWireOperand(o pcode.Operand) *wireOperand {
	switch o := o.(type) {
	case pcode.Int:
		x := int32(o)
		return &wireOperand{Int: &x}
	case pcode.Addr:
		x := uint32(o)
		return &wireOperand{Addr: &x}
	case pcode.Text:
		x := string(o)
		return &wireOperand{Text: &x}
	default:
		return nil
	}
}

func (wo *wireOperand) operand() (pcode.Operand, error) {
	if wo == nil {
		return nil, nil
	}
	var ret pcode.Operand
	n := 0
	if wo.Int != nil {
		ret = pcode.Int(*wo.Int)
		n++
	}
	if wo.Addr != nil {
		ret = pcode.Addr(*wo.Addr)
		n++
	}
	if wo.Text != nil {
		ret = pcode.Text(*wo.Text)
		n++
	}
	if n != 1 {
		return nil, errors.New("operand must have exactly one value")
	}
	return ret, nil
}

// Encode returns the canonical CBOR encoding of img.
func Encode(img *Image) ([]byte, error) {
	w := wireImage{
		Version: Version,
		Symbols: img.Symbols,
		Memory:  img.Memory,
	}
	for _, ix := range img.Instructions {
		w.Code = append(w.Code, wireInstr{
			Op: uint8(ix.Op),
			A:  toWireOperand(ix.A),
			B:  toWireOperand(ix.B),
		})
	}
	return encMode.Marshal(w)
}

// Decode parses an encoded image and checks every instruction.
func Decode(data []byte) (*Image, error) {
	var w wireImage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bacimg: decode: %w", err)
	}
	if w.Version != Version {
		return nil, fmt.Errorf("bacimg: unsupported version %d", w.Version)
	}
	img := &Image{
		Symbols: w.Symbols,
		Memory:  w.Memory,
	}
	for i, wi := range w.Code {
		a, err := wi.A.operand()
		if err != nil {
			return nil, fmt.Errorf("bacimg: instruction %d: %w", i, err)
		}
		b, err := wi.B.operand()
		if err != nil {
			return nil, fmt.Errorf("bacimg: instruction %d: %w", i, err)
		}
		img.Instructions = append(img.Instructions, pcode.Instruction{Op: pcode.Op(wi.Op), A: a, B: b})
	}
	if err := img.Check(); err != nil {
		return nil, fmt.Errorf("bacimg: %w", err)
	}
	return img, nil
}

// LoadFile reads a listing or an encoded image, depending on the extension of p.
func LoadFile(p string) (*Image, error) {
	switch ext := filepath.Ext(p); ext {
	case ExtListing:
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		l, err := pcode.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		return FromListing(l), nil
	case ExtImage:
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		return Decode(data)
	default:
		return nil, fmt.Errorf("bacimg: unrecognized extension %q", ext)
	}
}

// WriteFile writes img to p, as a listing or an encoded image, depending on the extension.
func WriteFile(p string, img *Image) error {
	var data []byte
	switch ext := filepath.Ext(p); ext {
	case ExtListing:
		var buf bytes.Buffer
		if err := pcode.Format(&buf, img.Listing()); err != nil {
			return err
		}
		data = buf.Bytes()
	case ExtImage:
		var err error
		if data, err = Encode(img); err != nil {
			return err
		}
	default:
		return fmt.Errorf("bacimg: unrecognized extension %q", ext)
	}
	return os.WriteFile(p, data, 0o644)
}
