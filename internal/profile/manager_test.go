package profile

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	dir := t.TempDir()

	got, err := Locate([]string{missing, file, dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = Locate([]string{missing})
	assert.ErrorIs(t, err, ErrNoProfile)

	_, err = Locate(nil)
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Default", "Local Storage"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Default", "Cookies"), []byte("sqlite"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Local State"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "SingletonCookie"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lockfile"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("elsewhere", filepath.Join(src, "SingletonLock")))

	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	snap, err := m.Snapshot(src)
	require.NoError(t, err)
	assert.Equal(t, src, snap.Source)
	assert.FileExists(t, snap.DataPath)

	dir, err := m.Extract(snap.ID)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	data, err := os.ReadFile(filepath.Join(dir, "Default", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", string(data))
	assert.DirExists(t, filepath.Join(dir, "Default", "Local Storage"))
	assert.FileExists(t, filepath.Join(dir, "Local State"))
	assert.NoFileExists(t, filepath.Join(dir, "SingletonCookie"))
	assert.NoFileExists(t, filepath.Join(dir, "lockfile"))
	_, err = os.Lstat(filepath.Join(dir, "SingletonLock"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, m.Delete(snap.ID))
	assert.NoFileExists(t, snap.DataPath)
	_, err = m.Get(snap.ID)
	assert.Error(t, err)
}

func TestUnknownSnapshot(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Extract("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.Delete("nope"), ErrNotFound)
}

func TestSnapshotRejectsFile(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = m.Snapshot(file)
	assert.Error(t, err)
}

func TestExtractRejectsTraversal(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "evil.tar.gz")
	f, err := os.Create(archive)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	body := []byte("pwned")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../../escape", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	target := t.TempDir()
	err = extractDirectory(archive, target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}
