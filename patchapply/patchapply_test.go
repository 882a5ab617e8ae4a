package patchapply

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/bindelta/diffengine"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func makePatch(t *testing.T, dir string, old, newBuf []byte, blockSize uint32, verify bool) (oldPath, patchPath string) {
	t.Helper()
	oldPath = writeFile(t, dir, "old.bin", old)
	newPath := writeFile(t, dir, "new.bin", newBuf)
	patchPath = filepath.Join(dir, "patch.bin")
	_, err := diffengine.Run(context.Background(), oldPath, newPath, patchPath, diffengine.Options{
		BlockSize: blockSize,
		Verify:    verify,
	}, nil)
	require.NoError(t, err)
	return oldPath, patchPath
}

func TestRunReconstructsNewFile(t *testing.T) {
	dir := t.TempDir()
	old := bytes.Repeat([]byte("xyzw"), 2048)
	newBuf := append([]byte(nil), old...)
	newBuf[10] = '!'

	oldPath, patchPath := makePatch(t, dir, old, newBuf, 512, true)
	outPath := filepath.Join(dir, "out.bin")

	stats, err := Run(context.Background(), oldPath, patchPath, outPath, Options{Verify: true}, nil)
	require.NoError(t, err)
	require.EqualValues(t, len(newBuf), stats.BytesProcessed)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(got, newBuf))
}

func TestRunRejectsOldSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	old := []byte("original content")
	oldPath, patchPath := makePatch(t, dir, old, []byte("original content, extended"), 64, false)

	require.NoError(t, os.WriteFile(oldPath, append(old, 'X'), 0o644))
	outPath := filepath.Join(dir, "out.bin")
	_, err := Run(context.Background(), oldPath, patchPath, outPath, Options{}, nil)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestRunDetectsOldHashMismatch(t *testing.T) {
	dir := t.TempDir()
	old := bytes.Repeat([]byte{0x7A}, 256)
	newBuf := append([]byte(nil), old...)
	newBuf[0] = 0x7B

	oldPath, patchPath := makePatch(t, dir, old, newBuf, 64, true)
	mutated := append([]byte(nil), old...)
	mutated[1] ^= 0xFF
	require.NoError(t, os.WriteFile(oldPath, mutated, 0o644))

	outPath := filepath.Join(dir, "out.bin")
	_, err := Run(context.Background(), oldPath, patchPath, outPath, Options{Verify: true}, nil)
	require.ErrorIs(t, err, ErrHashMismatch)

	_, statErr := os.Stat(outPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunLeavesNoPartialOutputOnCorruptBlock(t *testing.T) {
	dir := t.TempDir()
	old := bytes.Repeat([]byte{0x10}, 4096)
	newBuf := append([]byte(nil), old...)
	newBuf[4000] = 0x11

	oldPath, patchPath := makePatch(t, dir, old, newBuf, 1024, false)

	buf, err := os.ReadFile(patchPath)
	require.NoError(t, err)
	// Flip a high byte of a block-offset table entry; a small legitimate
	// offset becomes one far past end-of-file.
	buf[120] ^= 0xFF
	require.NoError(t, os.WriteFile(patchPath, buf, 0o644))

	outPath := filepath.Join(dir, "out.bin")
	_, err = Run(context.Background(), oldPath, patchPath, outPath, Options{}, nil)
	require.Error(t, err)
	_, statErr := os.Stat(outPath)
	require.True(t, os.IsNotExist(statErr))
}
