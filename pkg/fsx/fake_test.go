package fsx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeListFilesAndListDirsSeparateEntries(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Mkdir("/sd/notes/note-1"))
	require.NoError(t, f.Mkdir("/sd/notes/note-2"))
	require.NoError(t, f.WriteFile("/sd/notes/readme.txt", []byte("hi")))

	dirs, err := f.ListDirs("/sd/notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"note-1", "note-2"}, dirs)

	files, err := f.ListFiles("/sd/notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.txt"}, files)
}

func TestFakeSeekWriteGrowsFileWhenNeeded(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.WriteFile("/f", []byte("ab")))
	require.NoError(t, f.SeekWrite("/f", 4, []byte("z")))

	buf, err := f.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0, 'z'}, buf)
}

func TestFakeDeleteFileMissingReturnsError(t *testing.T) {
	f := NewFake()
	assert.Error(t, f.DeleteFile("/nope"))
}
