package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, filepath.Join("/media", "movie.mkv"), ReplaceExt("/media/movie.mp4", "mkv"))
	assert.Equal(t, filepath.Join("/media", "movie.srt"), ReplaceExt("/media/movie", ".srt"))
	assert.Equal(t, "", ReplaceExt("", ".srt"))
}

func TestStem(t *testing.T) {
	assert.Equal(t, "movie", Stem("/media/movie.mp4"))
	assert.Equal(t, "movie.de", Stem("/media/movie.de.srt"))
	assert.Equal(t, "movie", Stem("movie"))
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, ".mp4", NormalizeExt("mp4"))
	assert.Equal(t, ".mp4", NormalizeExt(" .MP4 "))
	assert.Equal(t, "", NormalizeExt(""))
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.srt")

	require.NoError(t, WriteAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
	assert.True(t, Exists(path))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
}
