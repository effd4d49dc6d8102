package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reallyoldfogie/mcap-go/mcap"
)

func TestParseMessage(t *testing.T) {
	m, err := parseMessage("0x10:0AFF")
	require.NoError(t, err)
	assert.Equal(t, uint64(16), m.ts)
	assert.Equal(t, []byte{0x0A, 0xFF}, m.data)

	_, err = parseMessage("10")
	require.Error(t, err)
	_, err = parseMessage("10:zz")
	require.Error(t, err)
}

func TestParseKeyValues(t *testing.T) {
	m, err := parseKeyValues([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, m)
	_, err = parseKeyValues([]string{"novalue"})
	require.Error(t, err)
}

func TestCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cli.mcap")
	cmd := newCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{
		"--out", out,
		"--compression", "lz4",
		"--message", "10:0102",
		"--message", "5:03",
		"--metadata", "operator=ci",
		"--log-level", "warn",
	})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "2 messages")

	rep, err := mcap.ValidateFile(out, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rep.Messages)
	assert.Equal(t, 1, rep.Metadata)
	assert.Equal(t, uint64(5), rep.Statistics.MessageStartTime)
}
