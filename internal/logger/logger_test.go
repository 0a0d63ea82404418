package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}

	w, err := c.Writer("aaaabbbbccccdddd")
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("tick ok\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "aaaabbbbccccdddd.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick ok")
}

func TestWriterRequiresDir(t *testing.T) {
	_, err := Config{}.Writer("x")
	assert.Error(t, err)
}

func TestNewWorkerLogsStructured(t *testing.T) {
	var buf bytes.Buffer
	log := NewWorker(&buf)
	log.Info("tick finished", "status", "ok", "project", "proj")

	out := buf.String()
	assert.True(t, strings.Contains(out, "tick finished"))
	assert.True(t, strings.Contains(out, "status=ok"))
}
