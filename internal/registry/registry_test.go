package registry

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autosave/internal/identity"
	"autosave/internal/store"
)

const testID = identity.Token("aaaabbbbccccdddd")

func TestSetLiveAndPid(t *testing.T) {
	r := New(store.NewMem())

	_, ok, err := r.Pid(testID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetLive(testID, os.Getpid()))
	pid, ok, err := r.Pid(testID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, r.Clear(testID))
	_, ok, err = r.Pid(testID)
	require.NoError(t, err)
	assert.False(t, ok)

	// clearing an absent record is fine
	require.NoError(t, r.Clear(testID))
}

func TestSetLiveRejectsBadPid(t *testing.T) {
	r := New(store.NewMem())
	assert.Error(t, r.SetLive(testID, 0))
	assert.Error(t, r.SetLive(testID, -1))
}

func TestLiveSelf(t *testing.T) {
	r := New(store.NewMem())
	require.NoError(t, r.SetLive(testID, os.Getpid()))

	pid, alive, err := r.Live(testID)
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLiveDeadProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a process")
	}
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	r := New(store.NewMem())
	require.NoError(t, r.SetLive(testID, pid))

	_, alive, err := r.Live(testID)
	require.NoError(t, err)
	assert.True(t, alive)

	require.NoError(t, cmd.Process.Kill())
	_, _ = cmd.Process.Wait()

	deadline := time.Now().Add(3 * time.Second)
	for {
		_, alive, err = r.Live(testID)
		require.NoError(t, err)
		if !alive || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.False(t, alive)
}

func TestLivePlainPidRecord(t *testing.T) {
	// Records without metadata (or with garbage metadata) degrade to plain
	// pid liveness.
	kv := store.NewMem()
	r := New(kv)
	require.NoError(t, kv.Put(store.BucketPids, testID.String(), []byte("1\nnot-json\n")))

	pid, alive, err := r.Live(testID)
	require.NoError(t, err)
	assert.Equal(t, 1, pid)
	assert.True(t, alive) // pid 1 always exists
}

func TestLiveMalformedRecordTreatedAsStale(t *testing.T) {
	kv := store.NewMem()
	r := New(kv)
	require.NoError(t, kv.Put(store.BucketPids, testID.String(), []byte("not-a-pid\n")))

	pid, alive, err := r.Live(testID)
	require.NoError(t, err)
	assert.Equal(t, 0, pid)
	assert.False(t, alive)

	// the unreadable record was removed on observation
	_, ok, err := r.Pid(testID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPidAlive(t *testing.T) {
	assert.True(t, PidAlive(os.Getpid()))
	assert.False(t, PidAlive(0))
	assert.False(t, PidAlive(-5))
}

func TestBootMarker(t *testing.T) {
	r := New(store.NewMem())

	_, ok, err := r.LastBoot()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetLastBoot(1724572800))
	ts, ok, err := r.LastBoot()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1724572800), ts)
}

func TestBootMarkerCorrupt(t *testing.T) {
	kv := store.NewMem()
	r := New(kv)
	require.NoError(t, kv.Put(store.BucketState, "last_boot", []byte("garbage")))

	_, ok, err := r.LastBoot()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBootTime(t *testing.T) {
	ts, err := BootTime()
	require.NoError(t, err)
	assert.Greater(t, ts, int64(0))
	assert.Less(t, ts, time.Now().Unix())
}
