package hostio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesMissingImageAtRequestedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	img, err := Open(path, 64*1024)
	require.NoError(t, err)
	defer img.Close()

	require.EqualValues(t, 64*1024, img.Size())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, 64*1024, info.Size())
}

func TestOpenExistingImageKeepsItsOwnSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	img, err := Open(path, 999999) // ignored: the file already exists
	require.NoError(t, err)
	defer img.Close()

	require.EqualValues(t, 4096, img.Size())
}

func TestWriteAtThenReadAtRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	img, err := Open(path, 4096)
	require.NoError(t, err)
	defer img.Close()

	n, err := img.WriteAt([]byte("hello"), 512)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = img.ReadAt(buf, 512)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
}

func TestWriteAtPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	img, err := Open(path, 4096)
	require.NoError(t, err)

	_, err = img.WriteAt([]byte("persisted"), 0)
	require.NoError(t, err)
	require.NoError(t, img.Flush())
	require.NoError(t, img.Close())

	reopened, err := Open(path, 4096)
	require.NoError(t, err)
	defer reopened.Close()

	buf := make([]byte, len("persisted"))
	_, err = reopened.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "persisted", string(buf))
}

func TestReadAtPastEndReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	img, err := Open(path, 4096)
	require.NoError(t, err)
	defer img.Close()

	_, err = img.ReadAt(make([]byte, 1), 4096)
	require.Error(t, err)
}
