package audit

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritesSignedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(Config{Enabled: true, LogPath: path, HMACKey: []byte("secret-key")})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(Created("sb-1", "acme", "build", "process", nil)))
	require.NoError(t, w.Append(Started("sb-1", "acme")))

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	for _, l := range lines {
		event, err := VerifySignedLine(l, []byte("secret-key"))
		require.NoError(t, err)
		assert.Equal(t, "sb-1", event.SandboxID)
	}
}

func TestOmitsSignatureWhenKeyAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(Config{Enabled: true, LogPath: path})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(Stopped("sb-1", "acme")))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.NotContains(t, string(lines[0]), "signature")

	_, err = VerifySignedLine(lines[0], []byte("secret-key"))
	assert.Error(t, err)
}

func TestVerifyRejectsTamperedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(Config{Enabled: true, LogPath: path, HMACKey: []byte("secret-key")})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(Deleted("sb-1", "acme")))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	tampered := append([]byte(nil), lines[0]...)
	tampered[10] ^= 0xFF

	_, err = VerifySignedLine(tampered, []byte("secret-key"))
	assert.Error(t, err)
}

func readLines(t *testing.T, path string) [][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	require.NoError(t, scanner.Err())
	return lines
}
