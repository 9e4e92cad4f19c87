package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}

func writeActivityLog(t *testing.T, fs fsx.FS, sdRoot, instanceID, content string) {
	t.Helper()
	require.NoError(t, fs.Mkdir(fs.JoinPath(sdRoot, logDirName)))
	require.NoError(t, fs.WriteFile(logPath(fs, sdRoot, instanceID), []byte(content)))
}

// Scenario S3: three notes from the same peer, each becoming
// available after a different number of poll attempts, all converge.
func TestSyncParallelPollingAcrossNotes(t *testing.T) {
	fake := fsx.NewFake()
	writeActivityLog(t, fake, "/sd", "peer",
		"note-1|peer_1\nnote-2|peer_1\nnote-3|peer_1\n")

	var mu sync.Mutex
	attempts := map[string]int{}
	readyAfter := map[string]int{"note-1": 1, "note-2": 2, "note-3": 3}
	reloaded := map[string]bool{}

	cb := Callbacks{
		CheckNoteExists: func(noteID string) bool { return true },
		CheckCRDTLogExists: func(noteID, instanceID string, expectedSequence uint64) bool {
			mu.Lock()
			defer mu.Unlock()
			attempts[noteID]++
			return attempts[noteID] >= readyAfter[noteID]
		},
		ReloadNote: func(noteID, sdID string) error {
			mu.Lock()
			defer mu.Unlock()
			reloaded[noteID] = true
			return nil
		},
	}

	s := NewSync(fake, "/sd", "sd-1", "self", 50, fastBackoff, cb)
	require.NoError(t, s.RunCycle())
	s.WaitForPendingSyncs()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, reloaded["note-1"])
	assert.True(t, reloaded["note-2"])
	assert.True(t, reloaded["note-3"])
}

// Scenario S4: a peer entry with gap 100 (> threshold 50) over that
// peer's highest known sequence (200, reached via a different note) is
// recorded as stale and never polled.
func TestSyncRecordsStaleEntryAboveGapThreshold(t *testing.T) {
	fake := fsx.NewFake()
	writeActivityLog(t, fake, "/sd", "peer", "note-2|peer_200\nnote-1|peer_100\n")

	var mu sync.Mutex
	polledNotes := map[string]bool{}
	cb := Callbacks{
		CheckNoteExists: func(noteID string) bool { return true },
		CheckCRDTLogExists: func(noteID, instanceID string, expectedSequence uint64) bool {
			mu.Lock()
			defer mu.Unlock()
			polledNotes[noteID] = true
			return true
		},
		ReloadNote: func(noteID, sdID string) error { return nil },
	}

	s := NewSync(fake, "/sd", "sd-1", "self", 50, fastBackoff, cb)
	require.NoError(t, s.RunCycle())
	s.WaitForPendingSyncs()

	stale := s.StaleEntries()
	require.Len(t, stale, 1)
	assert.Equal(t, "note-1", stale[0].NoteID)
	assert.Equal(t, "peer", stale[0].PeerID)
	assert.Equal(t, uint64(100), stale[0].ExpectedSequence)
	assert.Equal(t, uint64(200), stale[0].HighestSequenceFromInstance)
	assert.Equal(t, uint64(100), stale[0].Gap)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, polledNotes["note-1"], "note-1's stale entry must never be polled")
	assert.True(t, polledNotes["note-2"], "note-2's non-stale entry is polled normally")
}

// Scenario S6: the peer's activity log shrinks between cycles
// (compaction), triggering a full scan that reloads every loaded note.
func TestSyncCompactionTriggersFullScan(t *testing.T) {
	fake := fsx.NewFake()
	writeActivityLog(t, fake, "/sd", "peer", "note-1|peer_1\nnote-2|peer_1\nnote-3|peer_1\n")

	loaded := []string{"note-1", "note-2", "note-3"}
	var reloadedMu sync.Mutex
	reloaded := map[string]bool{}

	cb := Callbacks{
		CheckNoteExists:    func(noteID string) bool { return true },
		CheckCRDTLogExists: func(noteID, instanceID string, expectedSequence uint64) bool { return true },
		ReloadNote: func(noteID, sdID string) error {
			reloadedMu.Lock()
			defer reloadedMu.Unlock()
			reloaded[noteID] = true
			return nil
		},
		GetLoadedNotes: func() []string { return loaded },
	}

	s := NewSync(fake, "/sd", "sd-1", "self", 50, fastBackoff, cb)
	require.NoError(t, s.RunCycle())
	s.WaitForPendingSyncs()

	// Compact the peer log down to 2 lines.
	require.NoError(t, fake.WriteFile(logPath(fake, "/sd", "peer"), []byte("note-2|peer_1\nnote-3|peer_1\n")))
	reloadedMu.Lock()
	reloaded = map[string]bool{}
	reloadedMu.Unlock()

	require.NoError(t, s.RunCycle())
	s.WaitForPendingSyncs()

	reloadedMu.Lock()
	defer reloadedMu.Unlock()
	assert.True(t, reloaded["note-1"])
	assert.True(t, reloaded["note-2"])
	assert.True(t, reloaded["note-3"])

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 2, s.lastSeenLineCount["peer"])
}

func TestSyncSkipSuppressesFutureStaleEntriesAndPolling(t *testing.T) {
	fake := fsx.NewFake()
	writeActivityLog(t, fake, "/sd", "peer", "note-1|peer_1\nnote-1|peer_200\n")

	polled := false
	s := NewSync(fake, "/sd", "sd-1", "self", 50, fastBackoff, Callbacks{
		CheckNoteExists: func(noteID string) bool { return true },
		CheckCRDTLogExists: func(noteID, instanceID string, expectedSequence uint64) bool {
			polled = true
			return false
		},
		ReloadNote: func(noteID, sdID string) error { return nil },
	})
	s.Skip("note-1", "peer")

	require.NoError(t, s.RunCycle())
	s.WaitForPendingSyncs()

	assert.Empty(t, s.StaleEntries())
	assert.False(t, polled, "a skipped (note, peer) pair must never be polled")
}

func TestRunnerStartStopRunsAtLeastOneCycle(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd/activity"))

	s := NewSync(fake, "/sd", "sd-1", "self", 50, fastBackoff, Callbacks{})
	r := NewRunner(s, 5*time.Millisecond)
	r.Start()
	time.Sleep(20 * time.Millisecond)
	r.Stop()
}

func TestSyncIgnoresOwnInstanceLog(t *testing.T) {
	fake := fsx.NewFake()
	writeActivityLog(t, fake, "/sd", "self", "note-1|self_1\n")

	called := false
	s := NewSync(fake, "/sd", "sd-1", "self", 50, fastBackoff, Callbacks{
		CheckNoteExists: func(noteID string) bool { called = true; return true },
	})
	require.NoError(t, s.RunCycle())
	s.WaitForPendingSyncs()
	assert.False(t, called)
}
