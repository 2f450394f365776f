package pcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	ops := All()
	require.Len(t, ops, len(opNames)-1)
	seen := map[string]Op{}
	for _, op := range ops {
		name := op.String()
		require.False(t, strings.HasPrefix(name, "Op("), "op %d has no name", op)
		if prev, exists := seen[name]; exists {
			t.Fatalf("%v and %d share the name %q", prev, op, name)
		}
		seen[name] = op
		back, ok := ParseOp(name)
		require.True(t, ok)
		require.Equal(t, op, back)
	}
}

func TestCategories(t *testing.T) {
	tcs := []struct {
		Op  Op
		Cat Category
	}{
		{PushLiteral, CatStack},
		{Dup, CatStack},
		{Add, CatArith},
		{Negate, CatArith},
		{TestGE, CatLogic},
		{Halt, CatControl},
		{ForStepDown, CatLoop},
		{Create, CatProcess},
		{Signal, CatSemaphore},
		{SignalCondition, CatMonitor},
		{Read, CatIO},
		{StringConcat, CatString},
		{Random, CatMisc},
	}
	for _, tc := range tcs {
		require.Equal(t, tc.Cat, tc.Op.Category(), "%v", tc.Op)
	}
	for _, op := range All() {
		require.NotEqual(t, CatNone, op.Category(), "%v", op)
	}
	require.Len(t, AllConcurrency(), 16)
}

func TestUnknownName(t *testing.T) {
	require.Equal(t, "Op(255)", Op(255).String())
	_, ok := ParseOp("Frobnicate")
	require.False(t, ok)
}

func TestCheck(t *testing.T) {
	require.NoError(t, I(PushLiteral, Int(5)).Check())
	require.NoError(t, I(Store, Addr(0)).Check())
	require.NoError(t, I(Add).Check())
	require.NoError(t, I(WaitCondition, Addr(3)).Check())
	require.NoError(t, I(WaitCondition, Addr(3), Int(2)).Check())
	require.NoError(t, I(WriteRawString, Text("hi")).Check())

	err := I(Store, Int(0)).Check()
	var oe *OperandError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, ShapeAddr, oe.Want)
	require.Equal(t, ShapeInt, oe.Have)

	require.Error(t, I(PushLiteral).Check())
	require.Error(t, I(Add, Int(1)).Check())
	require.Error(t, I(Unknown).Check())
}

func TestDecode(t *testing.T) {
	n, err := AsInt(0, Int(-4))
	require.NoError(t, err)
	require.Equal(t, int32(-4), n)

	_, err = AsAddr(1, Text("x"))
	require.Error(t, err)

	n, err = IntOr(1, nil, 7)
	require.NoError(t, err)
	require.Equal(t, int32(7), n)
}
