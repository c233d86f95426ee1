package filex

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureDir("media")
	require.NoError(t, err)

	want := filepath.Join(tmp, "media")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureDir_AbsoluteAndIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	first, err := EnsureDir(dir)
	require.NoError(t, err)
	second, err := EnsureDir(dir)
	require.NoError(t, err)

	require.Equal(t, dir, first)
	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	require.NoError(t, os.WriteFile("media", []byte("x"), 0o660))

	_, err := EnsureDir("media")
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")

	ok, err := Exists(p)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	ok, err = Exists(p)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Exists(dir)
	require.NoError(t, err)
	require.False(t, ok, "directories are not files")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read-fail") }

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.bin")

	n, err := WriteAtomic(p, bytes.NewReader([]byte("hello")), make([]byte, 2))
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	_, err = WriteAtomic(filepath.Join(dir, "broken"), failingReader{}, nil)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	n, err := CopyFile(src, filepath.Join(dir, "dst"))
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	_, err = CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "x"))
	require.Error(t, err)
}
