package storage

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/internal/errkind"
)

func testBackends(t *testing.T) map[string]Storage {
	t.Helper()
	fb, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	return map[string]Storage{
		"memory": NewMemoryBackend(),
		"file":   fb,
	}
}

func TestBackendWriteReadRoundTrip(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			out, err := backend.CreateOutput("a.bin")
			require.NoError(t, err)
			_, err = out.Write([]byte("hello"))
			require.NoError(t, err)
			require.NoError(t, out.Sync())
			require.NoError(t, out.Close())

			in, err := backend.OpenInput("a.bin")
			require.NoError(t, err)
			data, err := io.ReadAll(in)
			require.NoError(t, err)
			require.NoError(t, in.Close())
			require.Equal(t, "hello", string(data))
		})
	}
}

func TestBackendExistsAndList(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := backend.Exists("missing.bin")
			require.NoError(t, err)
			require.False(t, ok)

			out, err := backend.CreateOutput("b.bin")
			require.NoError(t, err)
			require.NoError(t, out.Close())

			ok, err = backend.Exists("b.bin")
			require.NoError(t, err)
			require.True(t, ok)

			names, err := backend.List()
			require.NoError(t, err)
			require.Contains(t, names, "b.bin")
		})
	}
}

func TestBackendDeleteIsIdempotent(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			out, err := backend.CreateOutput("c.bin")
			require.NoError(t, err)
			require.NoError(t, out.Close())

			require.NoError(t, backend.Delete("c.bin"))
			ok, err := backend.Exists("c.bin")
			require.NoError(t, err)
			require.False(t, ok)

			// Deleting an already-missing name is not an error.
			require.NoError(t, backend.Delete("c.bin"))
		})
	}
}

func TestBackendRename(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			out, err := backend.CreateOutput("old.bin")
			require.NoError(t, err)
			_, err = out.Write([]byte("data"))
			require.NoError(t, err)
			require.NoError(t, out.Close())

			require.NoError(t, backend.Rename("old.bin", "new.bin"))

			ok, err := backend.Exists("old.bin")
			require.NoError(t, err)
			require.False(t, ok)

			in, err := backend.OpenInput("new.bin")
			require.NoError(t, err)
			data, err := io.ReadAll(in)
			require.NoError(t, err)
			require.NoError(t, in.Close())
			require.Equal(t, "data", string(data))
		})
	}
}

func TestBackendOpenInputMissingReturnsNotFound(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := backend.OpenInput("does-not-exist.bin")
			require.Error(t, err)
			require.True(t, errkind.Is(err, errkind.NotFound), "expected a NotFound error, got %v", err)
		})
	}
}

func TestFileBackendWritesUnderRoot(t *testing.T) {
	dir := t.TempDir()
	fb, err := NewFileBackend(dir)
	require.NoError(t, err)

	out, err := fb.CreateOutput("nested.bin")
	require.NoError(t, err)
	require.NoError(t, out.Close())

	require.FileExists(t, filepath.Join(dir, "nested.bin"))
}

func TestPrefixedNamespacesKeys(t *testing.T) {
	inner := NewMemoryBackend()
	a := NewPrefixed(inner, "a")
	b := NewPrefixed(inner, "b")

	out, err := a.CreateOutput("x.bin")
	require.NoError(t, err)
	require.NoError(t, out.Close())

	ok, err := b.Exists("x.bin")
	require.NoError(t, err)
	require.False(t, ok, "a namespace's file must not be visible under b's prefix")

	names, err := inner.List()
	require.NoError(t, err)
	require.Contains(t, names, "a/x.bin")

	namesA, err := a.List()
	require.NoError(t, err)
	require.Equal(t, []string{"x.bin"}, namesA)
}
