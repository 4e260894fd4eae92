package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReopenReplaysEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.wal")

	l, entries, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, entries)

	seq0, err := l.Append([]byte(`{"op":"insert","row":1}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq0)

	seq1, err := l.Append([]byte(`{"op":"insert","row":2}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq1)

	require.NoError(t, l.Close())

	l2, recovered, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	require.Len(t, recovered, 2)
	assert.Equal(t, `{"op":"insert","row":1}`, string(recovered[0].Payload))
	assert.Equal(t, `{"op":"insert","row":2}`, string(recovered[1].Payload))
	assert.Equal(t, uint64(2), l2.Len())
}

func TestReplayTruncatesTrailingCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.wal")

	l, _, err := Open(path)
	require.NoError(t, err)
	_, err = l.Append([]byte(`{"op":"insert","row":1}`))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0600)
	require.NoError(t, err)
	// Append a header that claims a payload far longer than what follows.
	_, err = f.Write([]byte{0, 0, 1, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	_, err = f.Write([]byte("short"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	sizeBeforeRecovery := info.Size()

	l2, recovered, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	require.Len(t, recovered, 1)
	assert.Equal(t, `{"op":"insert","row":1}`, string(recovered[0].Payload))

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), sizeBeforeRecovery)
}

func TestReplayStopsOnChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.wal")

	l, _, err := Open(path)
	require.NoError(t, err)
	_, err = l.Append([]byte(`{"op":"insert","row":1}`))
	require.NoError(t, err)
	_, err = l.Append([]byte(`{"op":"insert","row":2}`))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte inside the second frame's payload so its checksum fails.
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0600))

	l2, recovered, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	require.Len(t, recovered, 1)
	assert.Equal(t, `{"op":"insert","row":1}`, string(recovered[0].Payload))
}
