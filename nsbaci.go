// package nsbaci is a virtual machine for BACI, the Ben-Ari Concurrent Interpreter.
//
// The instruction set is in package pcode, the machine in package bvm,
// and the runtime which drives it in package bacrt.
package nsbaci

import (
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

const (
	FingerprintSize = 32
	// Base64Alphabet is used when encoding Fingerprints as strings.
	// It is a URL and filepath safe encoding, which maintains ordering.
	Base64Alphabet = "-0123456789" + "ABCDEFGHIJKLMNOPQRSTUVWXYZ" + "_" + "abcdefghijklmnopqrstuvwxyz"
)

var _ driver.Valuer = Fingerprint{}

// Fingerprint identifies the content of a program image.
type Fingerprint [FingerprintSize]byte

// Hash calculates the Fingerprint of x.
func Hash(x []byte) (ret Fingerprint) {
	h := blake3.New(FingerprintSize, nil)
	h.Write(x)
	h.Sum(ret[:0])
	return ret
}

var enc = base64.NewEncoding(Base64Alphabet).WithPadding(base64.NoPadding)

// ParseFingerprint decodes the output of Fingerprint.String.
func ParseFingerprint(x string) (Fingerprint, error) {
	var fp Fingerprint
	if err := fp.UnmarshalText([]byte(x)); err != nil {
		return Fingerprint{}, err
	}
	return fp, nil
}

func (fp Fingerprint) String() string {
	return enc.EncodeToString(fp[:])
}

func (fp Fingerprint) IsZero() bool {
	return fp == (Fingerprint{})
}

func (fp Fingerprint) MarshalText() ([]byte, error) {
	buf := make([]byte, enc.EncodedLen(len(fp)))
	enc.Encode(buf, fp[:])
	return buf, nil
}

func (fp *Fingerprint) UnmarshalText(data []byte) error {
	if enc.DecodedLen(len(data)) != FingerprintSize {
		return fmt.Errorf("fingerprint must be %d bytes", FingerprintSize)
	}
	var buf [FingerprintSize]byte
	n, err := enc.Decode(buf[:], data)
	if err != nil {
		return err
	}
	if n != FingerprintSize {
		return errors.New("fingerprint is too short")
	}
	*fp = buf
	return nil
}

func (fp *Fingerprint) Scan(x any) error {
	switch x := x.(type) {
	case []byte:
		if len(x) != FingerprintSize {
			return fmt.Errorf("wrong length for Fingerprint HAVE: %d WANT: %d", len(x), FingerprintSize)
		}
		copy(fp[:], x)
		return nil
	default:
		return fmt.Errorf("cannot scan type %T", x)
	}
}

func (fp Fingerprint) Value() (driver.Value, error) {
	return fp[:], nil
}
