package nsbaci

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := Hash([]byte("abc"))
	require.Equal(t, a, Hash([]byte("abc")))
	require.NotEqual(t, a, Hash([]byte("abd")))
	require.False(t, a.IsZero())

	b, err := ParseFingerprint(a.String())
	require.NoError(t, err)
	require.Equal(t, a, b)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	var c Fingerprint
	require.NoError(t, json.Unmarshal(data, &c))
	require.Equal(t, a, c)

	_, err = ParseFingerprint("short")
	require.Error(t, err)
}

func TestFingerprintScan(t *testing.T) {
	a := Hash(nil)
	v, err := a.Value()
	require.NoError(t, err)
	var b Fingerprint
	require.NoError(t, b.Scan(v))
	require.Equal(t, a, b)
	require.Error(t, b.Scan("text"))
	require.Error(t, b.Scan([]byte{1, 2}))
}
