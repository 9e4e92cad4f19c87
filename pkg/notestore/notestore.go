// Package notestore implements the note storage manager (C6): loading
// a note by merging its newest complete snapshot with the log tail
// that postdates it, serializing appends per note, and caching
// computed state in the per-note cache row. It also implements crash
// recovery (C10): pruning incomplete/old snapshots and deleting log
// files older than the surviving watermark.
package notestore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/noteforge/pkg/cache"
	"github.com/cuemby/noteforge/pkg/codec"
	"github.com/cuemby/noteforge/pkg/crdt"
	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/logstore"
	"github.com/cuemby/noteforge/pkg/metrics"
	"github.com/cuemby/noteforge/pkg/ncerr"
	"github.com/cuemby/noteforge/pkg/snapshot"
	"github.com/rs/zerolog"
)

// Paths scopes one note's on-disk subdirectories.
type Paths struct {
	Logs      string
	Snapshots string
}

// Loaded is the result of loadNote / loadNoteFromCache / recoverDocument.
type Loaded struct {
	Doc         crdt.Doc
	VectorClock map[string]codec.VectorClockEntry
}

// noteKey identifies one (sdId, noteId) pair's serialized state.
type noteKey struct {
	SDID   string
	NoteID string
}

type noteState struct {
	mu       sync.Mutex // serializes appends: the FIFO write-queue of spec.md §4.6
	sequence uint64
	writer   *logstore.Writer
}

// Manager owns per-(sdId, noteId) sequence counters and log writers,
// and the shared codec/filesystem/cache collaborators.
type Manager struct {
	fs    fsx.FS
	cache cache.Store
	lib   crdt.Library

	mu    sync.Mutex
	notes map[noteKey]*noteState

	statsMu sync.Mutex
	hits    uint64
	misses  uint64

	logger zerolog.Logger
}

// NewManager constructs a Manager over the given collaborators.
func NewManager(fs fsx.FS, cacheStore cache.Store, lib crdt.Library) *Manager {
	return &Manager{
		fs:     fs,
		cache:  cacheStore,
		lib:    lib,
		notes:  make(map[noteKey]*noteState),
		logger: elog.WithComponent("notestore"),
	}
}

func (m *Manager) stateFor(sdID, noteID string, dir string, instanceID string) *noteState {
	key := noteKey{SDID: sdID, NoteID: noteID}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.notes[key]
	if !ok {
		st = &noteState{writer: logstore.NewWriter(m.fs, dir, instanceID)}
		m.notes[key] = st
	}
	return st
}

// LoadNote implements spec.md §4.6's loadNote full path: best snapshot,
// then log-merge, then seeding the sequence counter so a restarted
// instance with a stable id never re-emits sequence 1.
func (m *Manager) LoadNote(sdID, noteID, thisInstanceID string, paths Paths) (Loaded, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.NoteLoadDuration)

	doc, vc, err := m.loadFromSnapshotAndLogs(paths)
	if err != nil {
		return Loaded{}, err
	}

	st := m.stateFor(sdID, noteID, paths.Logs, thisInstanceID)
	st.mu.Lock()
	if entry, ok := vc[thisInstanceID]; ok && entry.Sequence > st.sequence {
		st.sequence = entry.Sequence
	}
	st.mu.Unlock()

	metrics.CacheMissesTotal.Inc()
	m.recordMiss()
	return Loaded{Doc: doc, VectorClock: vc}, nil
}

func (m *Manager) recordHit() {
	m.statsMu.Lock()
	m.hits++
	m.statsMu.Unlock()
}

func (m *Manager) recordMiss() {
	m.statsMu.Lock()
	m.misses++
	m.statsMu.Unlock()
}

// HitRatio returns the cumulative fraction of note loads served from
// the cache row rather than a snapshot+log merge.
func (m *Manager) HitRatio() float64 {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	total := m.hits + m.misses
	if total == 0 {
		return 0
	}
	return float64(m.hits) / float64(total)
}

// LoadNoteFromCache implements the fast path: start from the cached
// encoded state and vector clock if present, then run log-merge to
// pick up anything newer. Returns found=false on a cache miss.
func (m *Manager) LoadNoteFromCache(sdID, noteID, thisInstanceID string, paths Paths) (loaded Loaded, found bool, err error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.NoteLoadDuration)

	row, ok, err := m.cache.Get(noteID, sdID)
	if err != nil {
		return Loaded{}, false, err
	}
	if !ok {
		return Loaded{}, false, nil
	}

	vc, err := decodeVectorClockJSON(row.VectorClockJSON)
	if err != nil {
		return Loaded{}, false, err
	}
	doc := m.lib.NewDoc()
	if err := m.lib.ApplyUpdate(doc, row.DocumentState); err != nil {
		return Loaded{}, false, err
	}

	mergedVC, err := m.mergeLogs(paths.Logs, doc, vc)
	if err != nil {
		return Loaded{}, false, err
	}

	st := m.stateFor(sdID, noteID, paths.Logs, thisInstanceID)
	st.mu.Lock()
	if entry, ok := mergedVC[thisInstanceID]; ok && entry.Sequence > st.sequence {
		st.sequence = entry.Sequence
	}
	st.mu.Unlock()

	metrics.CacheHitsTotal.Inc()
	m.recordHit()
	return Loaded{Doc: doc, VectorClock: mergedVC}, true, nil
}

func (m *Manager) loadFromSnapshotAndLogs(paths Paths) (crdt.Doc, map[string]codec.VectorClockEntry, error) {
	doc := m.lib.NewDoc()
	vc := make(map[string]codec.VectorClockEntry)

	reader := snapshot.NewReader(m.fs, paths.Snapshots)
	snap, _, found, err := reader.FindBest()
	if err != nil {
		return nil, nil, err
	}
	if found {
		if err := m.lib.ApplyUpdate(doc, snap.State); err != nil {
			return nil, nil, err
		}
		for _, e := range snap.VectorClock {
			vc[e.InstanceID] = e
		}
	}

	merged, err := m.mergeLogs(paths.Logs, doc, vc)
	if err != nil {
		return nil, nil, err
	}
	return doc, merged, nil
}

// mergeLogs implements the log-merge algorithm of spec.md §4.6. A
// Truncated error from readRecords is re-raised so the caller (the
// activity-sync retry loop) can back off and try again.
func (m *Manager) mergeLogs(dir string, doc crdt.Doc, vc map[string]codec.VectorClockEntry) (map[string]codec.VectorClockEntry, error) {
	out := make(map[string]codec.VectorClockEntry, len(vc))
	for k, v := range vc {
		out[k] = v
	}

	files, err := logstore.ListLogFiles(m.fs, dir)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		entry, hasEntry := vc[f.InstanceID]

		if hasEntry && f.Filename <= entry.Filename && f.Filename != entry.Filename {
			continue // fully covered by an earlier/equal watermark file
		}

		var startOffset *int64
		var startSequence uint64
		if hasEntry && f.Filename == entry.Filename {
			off := int64(entry.Offset)
			startOffset = &off
			startSequence = entry.Sequence
		}

		entries, err := logstore.ReadRecords(m.fs, f.Path, startOffset)
		if err != nil {
			if ncerr.OfKind(err, ncerr.KindTruncated) {
				return nil, err
			}
			m.logger.Warn().Str("file", f.Filename).Err(err).Msg("skipping unreadable log file contribution")
			continue
		}

		var maxSeq uint64
		var lastOffset int64
		applied := false
		for _, e := range entries {
			if e.Sequence <= startSequence {
				continue
			}
			if err := m.lib.ApplyUpdate(doc, e.Data); err != nil {
				return nil, err
			}
			applied = true
			if e.Sequence > maxSeq {
				maxSeq = e.Sequence
			}
			lastOffset = e.Offset + int64(e.BytesRead)
		}

		if applied {
			seq := maxSeq
			if startSequence > seq {
				seq = startSequence
			}
			out[f.InstanceID] = codec.VectorClockEntry{
				InstanceID: f.InstanceID,
				Sequence:   seq,
				Offset:     uint64(lastOffset),
				Filename:   f.Filename,
			}
		}
	}

	return out, nil
}

// SaveUpdate appends an incremental update, serializing appends to
// this note per spec.md §4.6: sequence is derived from the pre-write
// counter, which only advances once the append for the same
// (sdId, noteId) has resolved.
func (m *Manager) SaveUpdate(sdID, noteID, thisInstanceID string, paths Paths, data []byte) (codec.VectorClockEntry, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.NoteSaveDuration)

	st := m.stateFor(sdID, noteID, paths.Logs, thisInstanceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	seq := st.sequence + 1
	res, err := st.writer.AppendRecord(nowMs(), seq, data)
	if err != nil {
		return codec.VectorClockEntry{}, err
	}
	st.sequence = seq
	metrics.LogRecordsAppendedTotal.Inc()

	return codec.VectorClockEntry{
		InstanceID: thisInstanceID,
		Sequence:   seq,
		Offset:     uint64(res.Offset),
		Filename:   res.File,
	}, nil
}

// SaveDbSnapshot upserts the per-note cache row.
func (m *Manager) SaveDbSnapshot(sdID, noteID string, vc map[string]codec.VectorClockEntry, state []byte) error {
	vcJSON, err := encodeVectorClockJSON(vc)
	if err != nil {
		return err
	}
	return m.cache.Upsert(cache.Row{
		NoteID:          noteID,
		SDID:            sdID,
		VectorClockJSON: vcJSON,
		DocumentState:   state,
		UpdatedAt:       int64(nowMs()),
	})
}

// Finalize finalizes every open log writer, writing a sentinel to
// each — used on clean shutdown.
func (m *Manager) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for key, st := range m.notes {
		st.mu.Lock()
		if err := st.writer.Finalize(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("finalize %s/%s: %w", key.SDID, key.NoteID, err)
		}
		st.mu.Unlock()
	}
	return firstErr
}

func sortedKeys(vc map[string]codec.VectorClockEntry) []string {
	keys := make([]string, 0, len(vc))
	for k := range vc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
