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

func acquireFixture(t *testing.T, payload []byte) string {
	t.Helper()
	dir := t.TempDir()
	basename := filepath.Join(dir, "image")
	mv := ewf.NewMediaValues(8, 512, ewf.FormatEnCase6, ewf.CompressionFast)
	h, err := ewf.OpenWrite(basename, mv, ewf.FormatEnCase6, ewf.CompressionFast)
	require.NoError(t, err)
	_, err = h.Write(payload)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	return basename + ".E01"
}

func TestRunExportsToStdout(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7A}, 4096)
	path := acquireFixture(t, payload)

	var stdout bytes.Buffer
	stderr := captureFile(t)
	code := run([]string{path}, &stdout, stderr)
	require.Equal(t, 0, code, readBack(t, stderr))
	assert.Equal(t, payload, stdout.Bytes())
}

func TestRunExportsToOutputFile(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 4096)
	path := acquireFixture(t, payload)
	outPath := filepath.Join(t.TempDir(), "exported.raw")

	var stdout bytes.Buffer
	stderr := captureFile(t)
	code := run([]string{"-o", outPath, path}, &stdout, stderr)
	require.Equal(t, 0, code, readBack(t, stderr))
	assert.Empty(t, stdout.Bytes())

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRunRequiresAtLeastOnePath(t *testing.T) {
	var stdout bytes.Buffer
	stderr := captureFile(t)
	code := run(nil, &stdout, stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, readBack(t, stderr), "usage:")
}

func TestRunReportsOpenErrors(t *testing.T) {
	var stdout bytes.Buffer
	stderr := captureFile(t)
	code := run([]string{"/nonexistent/path.E01"}, &stdout, stderr)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, readBack(t, stderr), "ewfexport:")
}
