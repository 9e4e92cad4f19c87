package notestore

import (
	"testing"

	"github.com/cuemby/noteforge/pkg/cache"
	"github.com/cuemby/noteforge/pkg/crdt"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHitRatioTracksHitsAndMisses(t *testing.T) {
	fake := fsx.NewFake()
	paths := setupNote(t, fake)
	lib := crdt.NewFakeLibrary()
	cacheStore := cache.NewFake()
	mgr := NewManager(fake, cacheStore, lib)

	assert.Equal(t, float64(0), mgr.HitRatio())

	_, err := mgr.SaveUpdate("sd-1", "n1", "inst-a", paths, []byte("one"))
	require.NoError(t, err)

	loaded, err := mgr.LoadNote("sd-1", "n1", "inst-a", paths) // miss: no cache row yet
	require.NoError(t, err)
	assert.Equal(t, float64(0), mgr.HitRatio())

	state := lib.EncodeState(loaded.Doc)
	require.NoError(t, mgr.SaveDbSnapshot("sd-1", "n1", loaded.VectorClock, state))

	_, found, err := mgr.LoadNoteFromCache("sd-1", "n1", "inst-a", paths) // hit
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float64(0.5), mgr.HitRatio())
}

func TestHitRatioCollectorStartStop(t *testing.T) {
	mgr := NewManager(fsx.NewFake(), cache.NewFake(), crdt.NewFakeLibrary())
	c := NewHitRatioCollector(mgr)
	c.Start()
	c.Stop()
}
