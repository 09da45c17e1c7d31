package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnpa/goewf"
)

func captureFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func readBack(t *testing.T, f *os.File) string {
	t.Helper()
	buf, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return string(buf)
}

func TestRunAcquiresInputFile(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "source.raw")
	payload := bytes.Repeat([]byte{0x42}, 8192)
	require.NoError(t, os.WriteFile(inputPath, payload, 0o644))

	basename := filepath.Join(dir, "out")
	var stdout bytes.Buffer
	stderr := captureFile(t)

	code := run([]string{"-o", basename, "-format", "ENCASE6", "-compression", "none", inputPath}, &stdout, stderr)
	require.Equal(t, 0, code, readBack(t, stderr))
	assert.Contains(t, stdout.String(), "acquired 8192 bytes")

	h, err := ewf.OpenRead([]string{basename + ".E01"})
	require.NoError(t, err)
	defer h.Close()
	buf := make([]byte, len(payload))
	n, err := h.Read(buf, 0, len(buf))
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestRunRejectsBadFormatName(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "source.raw")
	require.NoError(t, os.WriteFile(inputPath, []byte("x"), 0o644))

	var stdout bytes.Buffer
	stderr := captureFile(t)
	code := run([]string{"-format", "NOTAFORMAT", inputPath}, &stdout, stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, readBack(t, stderr), "unknown format")
}

func TestRunRequiresExactlyOneInput(t *testing.T) {
	var stdout bytes.Buffer
	stderr := captureFile(t)
	code := run(nil, &stdout, stderr)
	assert.Equal(t, 1, code)
}
