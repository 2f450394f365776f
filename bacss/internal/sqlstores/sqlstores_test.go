package sqlstores

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"nsbaci.org/nsbaci"
	"nsbaci.org/nsbaci/bacss/internal/dbutil"
	"nsbaci.org/nsbaci/bacss/internal/migrations"
	"nsbaci.org/nsbaci/internal/testutil"
)

func setup(t testing.TB) *sqlx.DB {
	ctx := testutil.Context(t)
	db := dbutil.NewTestDB(t)
	x := Migration(migrations.InitialState()).
		ApplyStmt(`CREATE TABLE refs (blob_id BLOB NOT NULL)`)
	require.NoError(t, migrations.Migrate(ctx, db, x))
	return db
}

func TestPostGet(t *testing.T) {
	ctx := testutil.Context(t)
	db := setup(t)
	require.NoError(t, dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		id, err := Post(tx, []byte("hello"))
		require.NoError(t, err)
		require.Equal(t, nsbaci.Hash([]byte("hello")), id)

		id2, err := Post(tx, []byte("hello"))
		require.NoError(t, err)
		require.Equal(t, id, id2)
		n, err := CountBlobs(tx)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		data, err := Get(tx, id)
		require.NoError(t, err)
		require.Equal(t, []byte("hello"), data)

		ok, err := Exists(tx, id)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = Get(tx, nsbaci.Hash(nil))
		require.ErrorAs(t, err, &ErrNotFound{})
		return nil
	}))
}

func TestDropUnreferenced(t *testing.T) {
	ctx := testutil.Context(t)
	db := setup(t)
	require.NoError(t, dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		keep, err := Post(tx, []byte("keep"))
		require.NoError(t, err)
		_, err = Post(tx, []byte("drop"))
		require.NoError(t, err)
		_, err = tx.Exec(`INSERT INTO refs (blob_id) VALUES (?)`, keep[:])
		require.NoError(t, err)

		n, err := DropUnreferenced(tx, "refs", "blob_id")
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		ok, err := Exists(tx, keep)
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	}))
}
