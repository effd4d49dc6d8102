package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcap-go/mcap"
)

func writeFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "good.mcap")
	w, err := mcap.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Open())
	ch, err := w.RegisterChannel(0, "/a", "raw", nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(&mcap.Message{ChannelID: ch, LogTime: 1, Data: []byte{1}}))
	require.NoError(t, w.Close())
	return path
}

func execute(args ...string) (stdout, stderr string, err error) {
	cmd := newCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir)
	bad := filepath.Join(dir, "bad.mcap")
	require.NoError(t, os.WriteFile(bad, []byte("not an mcap file"), 0o644))

	t.Run("valid", func(t *testing.T) {
		stdout, _, err := execute("--log-format", "json", good)
		require.NoError(t, err)
		assert.Contains(t, stdout, "good.mcap: valid (1 messages, 1 chunks, 1 channels)")
	})

	t.Run("invalid", func(t *testing.T) {
		stdout, stderr, err := execute(good, bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 files invalid")
		assert.Contains(t, stderr, "bad.mcap:")
		assert.Contains(t, stdout, "good.mcap: valid")
		assert.NotContains(t, stdout, "All 2 files are valid")
	})

	t.Run("quiet", func(t *testing.T) {
		stdout, _, err := execute("--quiet", good, good)
		require.NoError(t, err)
		assert.Empty(t, stdout)

		stdout, stderr, err := execute("-q", bad)
		require.Error(t, err)
		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "missing leading magic")
	})

	t.Run("no arguments", func(t *testing.T) {
		_, _, err := execute()
		require.Error(t, err)
	})
}
