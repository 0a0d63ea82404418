package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndLast(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.Last(ctx, "aaaabbbbccccdddd")
	assert.ErrorIs(t, err, ErrNoTicks)

	base := time.Now().Add(-time.Minute).Truncate(time.Second)
	require.NoError(t, s.Append(ctx, Tick{
		ProjectID:  "aaaabbbbccccdddd",
		StartedAt:  base,
		FinishedAt: base.Add(time.Second),
		Status:     StatusOK,
		Detail:     "autosave: 2026-08-25 12:00:00",
	}))
	require.NoError(t, s.Append(ctx, Tick{
		ProjectID:  "aaaabbbbccccdddd",
		StartedAt:  base.Add(10 * time.Second),
		FinishedAt: base.Add(11 * time.Second),
		Status:     StatusFailed,
		Detail:     "action: push: auth failed",
	}))

	last, err := s.Last(ctx, "aaaabbbbccccdddd")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, last.Status)
	assert.Equal(t, "action: push: auth failed", last.Detail)
	assert.NotEmpty(t, last.ID)
	assert.Equal(t, base.Add(10*time.Second).Unix(), last.StartedAt.Unix())
}

func TestLastIsPerProject(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Append(ctx, Tick{ProjectID: "p1", StartedAt: now, FinishedAt: now, Status: StatusOK}))
	require.NoError(t, s.Append(ctx, Tick{ProjectID: "p2", StartedAt: now, FinishedAt: now, Status: StatusSkipped}))

	last, err := s.Last(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, last.Status)
}

func TestPrune(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Append(ctx, Tick{ProjectID: "p1", StartedAt: old, FinishedAt: old, Status: StatusOK}))
	require.NoError(t, s.Prune(ctx, 24*time.Hour))

	_, err := s.Last(ctx, "p1")
	assert.ErrorIs(t, err, ErrNoTicks)
}

func TestNopSink(t *testing.T) {
	var n Nop
	require.NoError(t, n.Append(context.Background(), Tick{}))
	_, err := n.Last(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrNoTicks)
	require.NoError(t, n.Close())
}
