package wal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/internal/storage"
)

func TestWALAppendAndReplay(t *testing.T) {
	backend := storage.NewMemoryBackend()

	w, entries, err := Open(backend, "test.wal")
	require.NoError(t, err)
	require.Empty(t, entries)

	seq0, err := w.Append(OpAdd, 1, []byte("doc-1"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq0)

	seq1, err := w.Append(OpUpsert, 2, []byte("doc-2"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)

	seq2, err := w.Append(OpDelete, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq2)
	require.NoError(t, w.Close())

	_, replayed, err := Open(backend, "test.wal")
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	require.Equal(t, OpAdd, replayed[0].Op)
	require.Equal(t, uint64(1), replayed[0].DocID)
	require.Equal(t, []byte("doc-1"), replayed[0].Payload)
	require.Equal(t, OpUpsert, replayed[1].Op)
	require.Equal(t, OpDelete, replayed[2].Op)
	require.Equal(t, uint64(2), replayed[2].Seq)
}

func TestWALTruncateResetsButKeepsSeqMonotonic(t *testing.T) {
	backend := storage.NewMemoryBackend()
	w, _, err := Open(backend, "test.wal")
	require.NoError(t, err)

	seq0, err := w.Append(OpAdd, 1, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq0)

	require.NoError(t, w.Truncate(seq0))

	_, replayed, err := Open(backend, "test.wal")
	require.NoError(t, err)
	require.Empty(t, replayed)

	seq1, err := w.Append(OpAdd, 2, []byte("b"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1, "sequence numbers must keep increasing across a truncate")
}

func TestWALOpenWithNoExistingFileStartsEmpty(t *testing.T) {
	backend := storage.NewMemoryBackend()
	w, entries, err := Open(backend, "fresh.wal")
	require.NoError(t, err)
	require.Empty(t, entries)
	seq, err := w.Append(OpAdd, 1, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq)
}

func TestWALReplayToleratesTruncatedTrailingFrame(t *testing.T) {
	backend := storage.NewMemoryBackend()
	w, _, err := Open(backend, "partial.wal")
	require.NoError(t, err)
	_, err = w.Append(OpAdd, 1, []byte("good"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := backend.OpenInput("partial.wal")
	require.NoError(t, err)
	buf := make([]byte, 1<<16)
	n, _ := data.Read(buf)
	require.NoError(t, data.Close())

	// Drop the last few bytes to simulate a crash mid-append, leaving a
	// truncated trailing frame that replay must tolerate rather than fail.
	truncated := buf[:n-2]
	out, err := backend.CreateOutput("partial.wal")
	require.NoError(t, err)
	_, err = out.Write(truncated)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	_, replayed, err := Open(backend, "partial.wal")
	require.NoError(t, err)
	require.Empty(t, replayed, "a fully-corrupted single frame yields no usable entries")
}
