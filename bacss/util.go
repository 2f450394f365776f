package bacss

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/bacss/internal/dbutil"
	"nsbaci.org/nsbaci/internal/testutil"
)

// NewTestSys returns a System backed by a fresh database in a temp directory.
func NewTestSys(t testing.TB) *System {
	ctx := testutil.Context(t)
	db := dbutil.NewTestDB(t)
	require.NoError(t, SetupDB(ctx, db))
	cfg := bacrt.DefaultConfig()
	cfg.Seed = 1
	return NewSystem(db, cfg)
}
