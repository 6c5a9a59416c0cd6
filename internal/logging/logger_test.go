package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpersNoopWithoutLogger(t *testing.T) {
	Logger = nil
	// Must not panic before Init.
	Info("x", "k", 1)
	Debug("x")
	Warn("x")
	Error("x")
	assert.Nil(t, WithPrefix("p"))
}

func TestInitWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn")
	t.Cleanup(func() { Logger = nil })

	Info("hidden message")
	Warn("visible message", "collection", "featured")

	out := buf.String()
	assert.NotContains(t, out, "hidden message")
	assert.Contains(t, out, "visible message")
	assert.Contains(t, out, "collection=featured")
}

func TestInitWriterUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "chatty")
	t.Cleanup(func() { Logger = nil })

	Debug("debug line")
	Info("info line")
	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestInitCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, "debug"))
	Close()
	Logger = nil

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "marketfeed-")
}
