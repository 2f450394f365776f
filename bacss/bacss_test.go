package bacss

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nsbaci.org/nsbaci/bacimg"
	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/bvm"
	"nsbaci.org/nsbaci/internal/testutil"
	"nsbaci.org/nsbaci/pcode"
)

const echoSrc = `
	.var total int @0 global
	Read
	PushLiteral 1
	Add
	Store @0
	LoadValue @0
	Write
	Halt
`

func parse(t testing.TB, src string) *bacimg.Image {
	l, err := pcode.ParseString(src)
	require.NoError(t, err)
	return bacimg.FromListing(l)
}

func TestCreateGet(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	sys := NewTestSys(t)
	img := parse(t, echoSrc)
	sess, err := sys.Create(ctx, img)
	require.NoError(t, err)
	require.Equal(t, img.Fingerprint(), sess.Fingerprint())

	sess2, err := sys.Get(ctx, sess.ID())
	require.NoError(t, err)
	require.Same(t, sess, sess2)

	_, err = sys.Get(ctx, sess.ID()+100)
	require.ErrorIs(t, err, ErrSessionNotFound{sess.ID() + 100})
}

func TestReopen(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	sys := NewTestSys(t)
	sess, err := sys.Create(ctx, parse(t, echoSrc))
	require.NoError(t, err)

	// a second system on the same database opens the session from its row
	sys2 := NewSystem(sys.db, sys.cfg)
	sess2, err := sys2.Get(ctx, sess.ID())
	require.NoError(t, err)
	require.NotSame(t, sess, sess2)
	require.Equal(t, sess.Fingerprint(), sess2.Fingerprint())
	snap := sess2.Snapshot()
	require.Equal(t, bacrt.Paused, snap.State)
	require.Len(t, snap.Threads, 1)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	sys := NewTestSys(t)
	var ids []SessionID
	for range 3 {
		sess, err := sys.Create(ctx, parse(t, echoSrc))
		require.NoError(t, err)
		ids = append(ids, sess.ID())
	}
	ss, err := sys.List(ctx)
	require.NoError(t, err)
	require.Len(t, ss, 3)
	for i := range ss {
		require.Equal(t, ids[i], ss[i].ID())
	}
}

func TestDrop(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	sys := NewTestSys(t)
	a, err := sys.Create(ctx, parse(t, echoSrc))
	require.NoError(t, err)
	b, err := sys.Create(ctx, parse(t, echoSrc))
	require.NoError(t, err)

	require.NoError(t, sys.Drop(ctx, a.ID()))
	_, err = sys.Get(ctx, a.ID())
	require.ErrorIs(t, err, ErrSessionNotFound{a.ID()})
	require.ErrorIs(t, sys.Drop(ctx, a.ID()), ErrSessionNotFound{a.ID()})

	// the dropped handle no longer runs
	closed := ErrSessionClosed{a.ID()}
	_, err = a.Step(ctx)
	require.ErrorIs(t, err, closed)
	_, err = a.Run(ctx, 0)
	require.ErrorIs(t, err, closed)
	require.ErrorIs(t, a.Input(ctx, "1"), closed)
	require.ErrorIs(t, a.Reset(ctx), closed)

	// b still uses the image
	var n int
	require.NoError(t, sys.db.Get(&n, `SELECT count(*) FROM blobs`))
	require.Equal(t, 1, n)
	require.NoError(t, sys.Drop(ctx, b.ID()))
	require.NoError(t, sys.db.Get(&n, `SELECT count(*) FROM blobs`))
	require.Equal(t, 0, n)
}

func TestSessionRun(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	sys := NewTestSys(t)
	sess, err := sys.Create(ctx, parse(t, echoSrc))
	require.NoError(t, err)

	res, err := sess.Run(ctx, 0)
	require.NoError(t, err)
	require.True(t, res.NeedsInput)

	require.NoError(t, sess.Input(ctx, "41"))
	res, err = sess.Run(ctx, 0)
	require.NoError(t, err)
	require.True(t, res.Halted)
	require.Equal(t, "42", res.Output)

	snap := sess.Snapshot()
	require.Equal(t, "42", snap.Output)
	require.Equal(t, 7, snap.Steps)
	require.Equal(t, int32(42), snap.Variables[0].Value)

	hist, err := sys.History(ctx, sess.ID())
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, sess.ID(), hist[0].Session)
	require.Equal(t, sess.Fingerprint(), hist[0].Image)
	require.True(t, hist[0].Halted)
	require.Equal(t, 7, hist[0].Steps)
	require.Equal(t, "42", hist[0].Output)
	require.Positive(t, hist[0].FinishedAt)

	// stepping a halted session does not record it again
	_, err = sess.Step(ctx)
	require.NoError(t, err)
	hist, err = sys.History(ctx, sess.ID())
	require.NoError(t, err)
	require.Len(t, hist, 1)

	require.NoError(t, sess.Reset(ctx))
	require.Empty(t, sess.Snapshot().Output)
	require.NoError(t, sess.Input(ctx, "1"))
	_, err = sess.Run(ctx, 0)
	require.NoError(t, err)
	hist, err = sys.History(ctx, sess.ID())
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "2", hist[1].Output)
}

func TestSessionFatal(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	sys := NewTestSys(t)
	sess, err := sys.Create(ctx, parse(t, `Nop`))
	require.NoError(t, err)
	res, err := sess.Step(ctx)
	require.NoError(t, err)
	require.True(t, res.OK())
	res, err = sess.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, bvm.KindPCOutOfRange, res.Errors[0].Kind)

	hist, err := sys.History(ctx, sess.ID())
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.False(t, hist[0].Halted)
	require.NotEmpty(t, hist[0].Fault)

	_, err = sys.History(ctx, sess.ID()+1)
	require.ErrorIs(t, err, ErrSessionNotFound{sess.ID() + 1})
}

func TestCreateInvalid(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	sys := NewTestSys(t)
	img := &bacimg.Image{Instructions: []pcode.Instruction{{Op: pcode.Add, A: pcode.Int(1)}}}
	_, err := sys.Create(ctx, img)
	require.Error(t, err)
}
