package activity

import (
	"testing"

	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordNoteActivityAppendsOneLinePerCall(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd/activity"))
	l := NewLogger(fake, "/sd", "peer", 1000)

	require.NoError(t, l.RecordNoteActivity("note-1", 1))
	require.NoError(t, l.RecordNoteActivity("note-1", 2))

	buf, err := fake.ReadFile("/sd/activity/peer.log")
	require.NoError(t, err)
	assert.Equal(t, "note-1|peer_1\nnote-1|peer_2\n", string(buf))
}

// Scenario S5: a truncated trailing line is discarded until the file
// is newline-terminated.
func TestSplitCompleteLinesDiscardsTruncatedTrailingFragment(t *testing.T) {
	lines := splitCompleteLines([]byte("note-1|peer_100\nnote-2|peer_101"))
	assert.Equal(t, []string{"note-1|peer_100"}, lines)

	lines = splitCompleteLines([]byte("note-1|peer_100\nnote-2|peer_101\n"))
	assert.Equal(t, []string{"note-1|peer_100", "note-2|peer_101"}, lines)
}

func TestParseLineRejectsMalformed(t *testing.T) {
	_, ok := parseLine("no-pipe-here")
	assert.False(t, ok)

	_, ok = parseLine("note-1|peer-no-underscore")
	assert.False(t, ok)

	_, ok = parseLine("note-1|peer_not-a-number")
	assert.False(t, ok)

	e, ok := parseLine("note-1|peer_42")
	require.True(t, ok)
	assert.Equal(t, Entry{NoteID: "note-1", InstanceID: "peer", Sequence: 42}, e)
}

func TestCompactRewritesToLastMaxEntries(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd/activity"))
	l := NewLogger(fake, "/sd", "peer", 2)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, l.RecordNoteActivity("note-1", i))
	}

	dropped, err := l.Compact()
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)

	buf, err := fake.ReadFile("/sd/activity/peer.log")
	require.NoError(t, err)
	assert.Equal(t, "note-1|peer_4\nnote-1|peer_5\n", string(buf))
}

func TestCompactNoOpBelowThreshold(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd/activity"))
	l := NewLogger(fake, "/sd", "peer", 1000)
	require.NoError(t, l.RecordNoteActivity("note-1", 1))

	dropped, err := l.Compact()
	require.NoError(t, err)
	assert.Equal(t, 0, dropped)
}

// Gap exactly at the threshold (50) is not stale; 51 is.
func TestCleanupOwnStaleEntriesBoundary(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd/activity"))
	l := NewLogger(fake, "/sd", "peer", 1000)

	require.NoError(t, l.RecordNoteActivity("note-a", 1))  // gap 99: stale
	require.NoError(t, l.RecordNoteActivity("note-b", 50))  // gap 50: not stale
	require.NoError(t, l.RecordNoteActivity("note-c", 49))  // gap 51: stale
	require.NoError(t, l.RecordNoteActivity("note-d", 100)) // highest

	stale, err := l.CleanupOwnStaleEntries(50)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "note-a", stale[0].NoteID)
	assert.Equal(t, "note-c", stale[1].NoteID)

	buf, err := fake.ReadFile("/sd/activity/peer.log")
	require.NoError(t, err)
	assert.Equal(t, "note-b|peer_50\nnote-d|peer_100\n", string(buf))
}

func TestCleanupOwnStaleEntriesIsIdempotent(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd/activity"))
	l := NewLogger(fake, "/sd", "peer", 1000)
	require.NoError(t, l.RecordNoteActivity("note-a", 1))
	require.NoError(t, l.RecordNoteActivity("note-d", 100))

	first, err := l.CleanupOwnStaleEntries(50)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := l.CleanupOwnStaleEntries(50)
	require.NoError(t, err)
	assert.Len(t, second, 0)
}
