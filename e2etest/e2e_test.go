package e2etest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nsbaci.org/nsbaci/bacimg"
	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/bacss"
	"nsbaci.org/nsbaci/bacss/bachui"
	"nsbaci.org/nsbaci/internal/testutil"
)

const readerWriterSrc = `
	.var total int @0 global
	.var mutex semaphore @1 global
	LoadAddress @1
	PushLiteral 1
	StoreSemaphore
	Read
	Store @2
	Cobegin
	Create 12 0
	Create 12 0
	Coend
	LoadValue @0
	Write
	Halt
	PushLiteral 1
	Wait
	LoadValue @0
	LoadValue @2
	Add
	Store @0
	PushLiteral 1
	Signal
	Return 0 0
`

// TestImageToHistory assembles a listing into an image file, runs it in a served session,
// and reads back the recorded run.
func TestImageToHistory(t *testing.T) {
	ctx := testutil.Context(t)
	dir := t.TempDir()
	src := testutil.WriteFile(t, "prog.pcode", []byte(readerWriterSrc))
	img, err := bacimg.LoadFile(src)
	require.NoError(t, err)
	imgPath := filepath.Join(dir, "prog.bimg")
	require.NoError(t, bacimg.WriteFile(imgPath, img))
	img, err = bacimg.LoadFile(imgPath)
	require.NoError(t, err)

	sys := bacss.NewTestSys(t)
	sess, err := sys.Create(ctx, img)
	require.NoError(t, err)
	lAddr := startServing(t, sys)
	base := fmt.Sprintf("http://%s/v1/sessions/%d", lAddr, sess.ID())

	var sr struct {
		Result   bacrt.Result          `json:"result"`
		Snapshot bacss.SessionSnapshot `json:"snapshot"`
	}
	post(t, base+"/run", "", &sr)
	require.True(t, sr.Result.NeedsInput)
	post(t, base+"/input", "21", nil)
	post(t, base+"/run", "", &sr)
	require.True(t, sr.Result.Halted)
	require.Equal(t, "42", sr.Snapshot.Output)

	resp, err := http.Get(base + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []bacss.RunInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	require.Equal(t, img.Fingerprint(), runs[0].Image)
	require.Equal(t, "42", runs[0].Output)
}

func post(t testing.TB, u, body string, out any) {
	t.Helper()
	resp, err := http.Post(u, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out))
	}
}

func startServing(t testing.TB, sys *bacss.System) net.Addr {
	ctx := testutil.Context(t)
	lis := testutil.Listen(t)
	go bachui.Serve(ctx, lis, sys)
	return lis.Addr()
}
