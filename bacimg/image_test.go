package bacimg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nsbaci.org/nsbaci/internal/testutil"
	"nsbaci.org/nsbaci/pcode"
)

const testSrc = `
	.var total int @0 global
	.mem @0 7
	LoadValue @0
	PushLiteral -3
	Add
	WaitCondition @4 2
	WriteRawString "hi \"there\""
	Halt
`

func parse(t testing.TB, src string) *Image {
	l, err := pcode.ParseString(src)
	require.NoError(t, err)
	return FromListing(l)
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	img := parse(t, testSrc)
	data, err := Encode(img)
	require.NoError(t, err)
	img2, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, img, img2)
	require.Equal(t, img.Fingerprint(), img2.Fingerprint())

	// re-encoding is byte for byte identical
	data2, err := Encode(img2)
	require.NoError(t, err)
	require.Equal(t, data, data2)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	a := parse(t, testSrc)
	b := parse(t, testSrc+"\nNop\n")
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	require.Equal(t, a.Fingerprint(), parse(t, testSrc).Fingerprint())
}

func TestDecodeInvalid(t *testing.T) {
	t.Parallel()
	mk := func(w wireImage) []byte {
		data, err := encMode.Marshal(w)
		require.NoError(t, err)
		return data
	}
	one := int32(1)
	tcs := []struct {
		Name string
		Data []byte
	}{
		{Name: "Garbage", Data: []byte{0xff, 0x00}},
		{Name: "Version", Data: mk(wireImage{Version: 99})},
		{Name: "UnknownOp", Data: mk(wireImage{Version: Version, Code: []wireInstr{{Op: 255}}})},
		{Name: "BadShape", Data: mk(wireImage{Version: Version, Code: []wireInstr{{
			Op: uint8(pcode.Add),
			A:  &wireOperand{Int: &one},
		}}})},
		{Name: "EmptyOperand", Data: mk(wireImage{Version: Version, Code: []wireInstr{{
			Op: uint8(pcode.PushLiteral),
			A:  &wireOperand{},
		}}})},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := Decode(tc.Data)
			require.Error(t, err)
		})
	}
}

func TestFiles(t *testing.T) {
	t.Parallel()
	src := testutil.WriteFile(t, "prog.pcode", []byte(testSrc))
	img, err := LoadFile(src)
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"out.bimg", "out.pcode"} {
		p := filepath.Join(dir, name)
		require.NoError(t, WriteFile(p, img))
		img2, err := LoadFile(p)
		require.NoError(t, err)
		require.Equal(t, img, img2)
	}

	_, err = LoadFile(filepath.Join(dir, "out.txt"))
	require.Error(t, err)
	require.Error(t, WriteFile(filepath.Join(dir, "out.txt"), img))
}

func TestProgram(t *testing.T) {
	t.Parallel()
	p := parse(t, testSrc).Program()
	require.Equal(t, 6, p.Len())
	require.Equal(t, int32(7), p.Read(0))
	sym, ok := p.Symbol("total")
	require.True(t, ok)
	require.True(t, sym.Global)
}
