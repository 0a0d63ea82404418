package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autosave/internal/action"
	"autosave/internal/history"
	"autosave/internal/identity"
	"autosave/internal/job"
)

type countingAction struct {
	runs atomic.Int64
	err  error
}

func (a *countingAction) Prepare(string) error { return nil }
func (a *countingAction) Run(context.Context, string) (action.Outcome, error) {
	a.runs.Add(1)
	if a.err != nil {
		return action.Outcome{}, a.err
	}
	return action.Outcome{Changed: true, Committed: true, Message: "autosave: test"}, nil
}

type fakeClearer struct {
	mu      sync.Mutex
	cleared []identity.Token
}

func (f *fakeClearer) Clear(id identity.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, id)
	return nil
}

type memSink struct {
	mu    sync.Mutex
	ticks []history.Tick
}

func (m *memSink) Append(_ context.Context, t history.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, t)
	return nil
}

func (m *memSink) Last(context.Context, string) (history.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ticks) == 0 {
		return history.Tick{}, history.ErrNoTicks
	}
	return m.ticks[len(m.ticks)-1], nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) all() []history.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Tick, len(m.ticks))
	copy(out, m.ticks)
	return out
}

func testDescriptor(t *testing.T, path string) job.Descriptor {
	t.Helper()
	d, err := job.New(path, 1, false)
	require.NoError(t, err)
	return d
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runWorker runs w until at least want ticks have been observed or the
// timeout expires, then cancels it.
func runWorker(t *testing.T, w *Worker, sink *memSink, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for len(sink.all()) < want && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	require.GreaterOrEqual(t, len(sink.all()), want)
}

func TestWorkerTicksImmediatelyAndRepeats(t *testing.T) {
	dir := t.TempDir()
	act := &countingAction{}
	sink := &memSink{}
	w := New(testDescriptor(t, dir), act, nil, sink, quietLogger())

	runWorker(t, w, sink, 2)
	assert.GreaterOrEqual(t, act.runs.Load(), int64(2))
	for _, tk := range sink.all() {
		assert.Equal(t, history.StatusOK, tk.Status)
	}
}

func TestWorkerSurvivesActionFailures(t *testing.T) {
	dir := t.TempDir()
	act := &countingAction{err: errors.New("push rejected")}
	sink := &memSink{}
	w := New(testDescriptor(t, dir), act, nil, sink, quietLogger())

	runWorker(t, w, sink, 2)
	// The loop kept ticking even though every tick failed.
	assert.GreaterOrEqual(t, act.runs.Load(), int64(2))
	for _, tk := range sink.all() {
		assert.Equal(t, history.StatusFailed, tk.Status)
		assert.Contains(t, tk.Detail, "push rejected")
	}
}

func TestWorkerSkipsTickWhenPathGone(t *testing.T) {
	// Path never created: every tick is an environment error, not a crash.
	d, err := job.New(filepath.Join(t.TempDir(), "gone"), 1, false)
	require.NoError(t, err)
	act := &countingAction{}
	sink := &memSink{}
	w := New(d, act, nil, sink, quietLogger())

	runWorker(t, w, sink, 2)
	assert.Equal(t, int64(0), act.runs.Load())
	for _, tk := range sink.all() {
		assert.Equal(t, history.StatusSkipped, tk.Status)
	}
}

func TestWorkerClearsRegistryOnStop(t *testing.T) {
	dir := t.TempDir()
	act := &countingAction{}
	sink := &memSink{}
	clearer := &fakeClearer{}
	d := testDescriptor(t, dir)
	w := New(d, act, clearer, sink, quietLogger())

	runWorker(t, w, sink, 1)

	clearer.mu.Lock()
	defer clearer.mu.Unlock()
	require.Len(t, clearer.cleared, 1)
	assert.Equal(t, d.ID, clearer.cleared[0])
}

func TestSpawnerStartsDetachedProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a process")
	}
	d := testDescriptor(t, t.TempDir())

	// A stand-in binary that ignores the worker args; we only verify the
	// spawn and log-stream plumbing here. The real re-exec path is covered
	// through the CLI run command.
	s := &Spawner{Bin: "true"}
	s.Log.Dir = t.TempDir()

	pid, err := s.Spawn(d)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	_, err = os.Stat(filepath.Join(s.Log.Dir, d.ID.String()+".log"))
	assert.NoError(t, err)
}
