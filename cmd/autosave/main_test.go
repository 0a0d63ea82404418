package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestBareInvocationPrintsUsageAndFails(t *testing.T) {
	out, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, out, "Usage:")
}

func TestUnknownCommandFails(t *testing.T) {
	_, err := execute(t, "bogus")
	require.Error(t, err)
}

func TestHelpSucceeds(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "autosave")
	assert.Contains(t, out, "start")
}
