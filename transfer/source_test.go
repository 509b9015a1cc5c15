package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainSource(t *testing.T, src Source, max int) [][]byte {
	t.Helper()

	var chunks [][]byte
	for {
		chunk, err := src.Next(max)
		require.NoError(t, err)
		chunks = append(chunks, append([]byte(nil), chunk...))
		if len(chunk) < max {
			return chunks
		}
	}
}

func TestBytesSource(t *testing.T) {
	chunks := drainSource(t, BytesSource([]byte{1, 2, 3, 4, 5}), 2)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}, {5}}, chunks)

	// Exact multiples end with an empty chunk.
	chunks = drainSource(t, BytesSource([]byte{1, 2, 3, 4}), 2)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}, {}}, chunks)

	chunks = drainSource(t, BytesSource(nil), 2)
	assert.Equal(t, [][]byte{{}}, chunks)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	payload := []byte("abcdefghij")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	src, err := FileSource(path)
	require.NoError(t, err)
	defer src.Close()

	chunks := drainSource(t, src, 4)
	assert.Equal(t, [][]byte{[]byte("abcd"), []byte("efgh"), []byte("ij")}, chunks)
}

func TestFileSourceEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	src, err := FileSource(path)
	require.NoError(t, err)
	defer src.Close()

	chunk, err := src.Next(16)
	require.NoError(t, err)
	assert.Empty(t, chunk)
}

func TestFileSourceMissing(t *testing.T) {
	_, err := FileSource(filepath.Join(t.TempDir(), "nope.bin"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
