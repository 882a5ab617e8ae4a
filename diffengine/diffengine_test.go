package diffengine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/bindelta/patchfile"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunProducesValidPatchHeader(t *testing.T) {
	dir := t.TempDir()
	old := bytes.Repeat([]byte("abcdefgh"), 1024)
	newBuf := append([]byte(nil), old...)
	newBuf[500] = 'Z'

	oldPath := writeFile(t, dir, "old.bin", old)
	newPath := writeFile(t, dir, "new.bin", newBuf)
	patchPath := filepath.Join(dir, "patch.bin")

	stats, err := Run(context.Background(), oldPath, newPath, patchPath, Options{BlockSize: 2048, Verify: true}, nil)
	require.NoError(t, err)
	require.Greater(t, stats.NumBlocks, 0)

	f, err := os.Open(patchPath)
	require.NoError(t, err)
	defer f.Close()
	st, err := f.Stat()
	require.NoError(t, err)

	r, err := patchfile.Open(f, st.Size())
	require.NoError(t, err)
	require.EqualValues(t, len(old), r.Header().OldSize)
	require.EqualValues(t, len(newBuf), r.Header().NewSize)
}

func TestRunZeroBlocksForEmptyNew(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.bin", []byte("some content"))
	newPath := writeFile(t, dir, "new.bin", nil)
	patchPath := filepath.Join(dir, "patch.bin")

	stats, err := Run(context.Background(), oldPath, newPath, patchPath, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, stats.NumBlocks)
}

func TestRunRemovesPartialPatchOnFailure(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.bin", []byte("content"))
	patchPath := filepath.Join(dir, "patch.bin")

	_, err := Run(context.Background(), oldPath, filepath.Join(dir, "missing.bin"), patchPath, Options{}, nil)
	require.Error(t, err)
	_, statErr := os.Stat(patchPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	old := bytes.Repeat([]byte{0x01}, 1<<20)
	oldPath := writeFile(t, dir, "old.bin", old)
	newPath := writeFile(t, dir, "new.bin", old)
	patchPath := filepath.Join(dir, "patch.bin")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, oldPath, newPath, patchPath, Options{}, nil)
	require.Error(t, err)
}

func TestRunProgressReportsStages(t *testing.T) {
	dir := t.TempDir()
	old := bytes.Repeat([]byte{0x02}, 4096)
	newBuf := append([]byte(nil), old...)
	newBuf[0] = 0x03
	oldPath := writeFile(t, dir, "old.bin", old)
	newPath := writeFile(t, dir, "new.bin", newBuf)
	patchPath := filepath.Join(dir, "patch.bin")

	seen := map[string]bool{}
	_, err := Run(context.Background(), oldPath, newPath, patchPath, Options{BlockSize: 1024, Verify: true}, func(percent float32, stage string) {
		seen[stage] = true
	})
	require.NoError(t, err)
	require.True(t, seen["hashing-old"])
	require.True(t, seen["hashing-new"])
	require.True(t, seen["indexing"])
}
