package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeUpsertGetDelete(t *testing.T) {
	store := NewFake()

	_, found, err := store.Get("note-1", "sd-1")
	require.NoError(t, err)
	assert.False(t, found)

	row := Row{NoteID: "note-1", SDID: "sd-1", VectorClockJSON: "{}", DocumentState: []byte{0x01}, UpdatedAt: 100}
	require.NoError(t, store.Upsert(row))

	got, found, err := store.Get("note-1", "sd-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, row, got)

	require.NoError(t, store.Delete("note-1", "sd-1"))
	_, found, err = store.Get("note-1", "sd-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFakeUpsertOverwritesSameKey(t *testing.T) {
	store := NewFake()
	require.NoError(t, store.Upsert(Row{NoteID: "n", SDID: "s", UpdatedAt: 1}))
	require.NoError(t, store.Upsert(Row{NoteID: "n", SDID: "s", UpdatedAt: 2}))

	got, found, err := store.Get("n", "s")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), got.UpdatedAt)
}

func TestDifferentSDsAreIndependentKeys(t *testing.T) {
	store := NewFake()
	require.NoError(t, store.Upsert(Row{NoteID: "n", SDID: "sd-a", UpdatedAt: 1}))
	require.NoError(t, store.Upsert(Row{NoteID: "n", SDID: "sd-b", UpdatedAt: 2}))

	a, _, _ := store.Get("n", "sd-a")
	b, _, _ := store.Get("n", "sd-b")
	assert.Equal(t, int64(1), a.UpdatedAt)
	assert.Equal(t, int64(2), b.UpdatedAt)
}
