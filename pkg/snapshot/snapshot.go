// Package snapshot implements the .snapshot format's two-phase
// crash-safe write protocol (C4) and the reader that lists, validates,
// and selects among snapshot files (C5), per spec.md §4.4.
package snapshot

import (
	"sort"

	"github.com/cuemby/noteforge/pkg/codec"
	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/metrics"
	"github.com/cuemby/noteforge/pkg/ncerr"
	"github.com/rs/zerolog"
)

const snapshotExt = ".snapshot"

// FileInfo describes one .snapshot file on disk.
type FileInfo struct {
	Filename   string
	Path       string
	InstanceID string
	Timestamp  uint64
}

// Snapshot is a fully decoded snapshot: its vector clock and the
// CRDT library's opaque encoded document state.
type Snapshot struct {
	Status      byte
	VectorClock []codec.VectorClockEntry
	State       []byte
}

// Writer builds snapshot files for one note directory.
type Writer struct {
	fs     fsx.FS
	dir    string
	logger zerolog.Logger
}

// NewWriter returns a Writer scoped to a note's snapshots/ directory.
func NewWriter(fs fsx.FS, dir string) *Writer {
	return &Writer{fs: fs, dir: dir, logger: elog.WithComponent("snapshot.writer")}
}

// Write performs the two-phase protocol of spec.md §4.4: the full
// payload (header with status=incomplete, vector clock, state) is
// written and fsynced first; only then is the status byte flipped to
// complete and fsynced again. No file with status 0x01 exists until
// every byte of its payload is durable.
func (w *Writer) Write(instanceID string, vc []codec.VectorClockEntry, state []byte) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotWriteDuration)

	ts := nowMs()
	name := formatSnapshotFilename(instanceID, ts)
	for w.fs.Exists(w.fs.JoinPath(w.dir, name)) {
		ts++
		name = formatSnapshotFilename(instanceID, ts)
	}
	path := w.fs.JoinPath(w.dir, name)

	buf := make([]byte, 0, codec.SnapshotHeaderSize+len(state)+64)
	buf = append(buf, codec.WriteSnapshotHeader(codec.StatusIncomplete)...)
	buf = append(buf, codec.EncodeVectorClock(vc)...)
	buf = append(buf, state...)

	if err := w.fs.WriteFile(path, buf); err != nil {
		return "", err
	}
	if err := w.fs.Sync(path); err != nil {
		return "", err
	}

	if err := w.markComplete(path); err != nil {
		return "", err
	}
	if err := w.fs.Sync(path); err != nil {
		return "", err
	}

	metrics.SnapshotsWrittenTotal.Inc()
	w.logger.Info().Str("file", name).Int("entries", len(vc)).Msg("snapshot written")
	return name, nil
}

// markComplete flips the status byte at offset 5 in place via
// SeekWrite when the collaborator supports it, falling back to a
// read-modify-write otherwise (spec.md §6).
func (w *Writer) markComplete(path string) error {
	if err := w.fs.SeekWrite(path, 5, []byte{codec.StatusComplete}); err == nil {
		return nil
	}
	buf, err := w.fs.ReadFile(path)
	if err != nil {
		return err
	}
	if len(buf) < codec.SnapshotHeaderSize {
		return ncerr.ErrTruncated
	}
	buf[5] = codec.StatusComplete
	return w.fs.WriteFile(path, buf)
}

// Reader lists and decodes snapshot files for one note directory.
type Reader struct {
	fs  fsx.FS
	dir string
}

// NewReader returns a Reader scoped to a note's snapshots/ directory.
func NewReader(fs fsx.FS, dir string) *Reader {
	return &Reader{fs: fs, dir: dir}
}

// List returns every recognized .snapshot file, sorted newest-first by
// parsed timestamp — lexicographic filename order matches creation
// order per spec.md §3.
func (r *Reader) List() ([]FileInfo, error) {
	names, err := r.fs.ListFiles(r.dir)
	if err != nil {
		return nil, err
	}
	var files []FileInfo
	for _, name := range names {
		instanceID, ts, ok := parseSnapshotFilename(name)
		if !ok {
			continue
		}
		files = append(files, FileInfo{
			Filename:   name,
			Path:       r.fs.JoinPath(r.dir, name),
			InstanceID: instanceID,
			Timestamp:  ts,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp > files[j].Timestamp })
	return files, nil
}

// IsComplete parses only the header and reports whether its status
// byte is StatusComplete.
func (r *Reader) IsComplete(path string) (bool, error) {
	buf, err := r.fs.ReadFile(path)
	if err != nil {
		return false, err
	}
	status, err := codec.ReadSnapshotHeader(buf)
	if err != nil {
		return false, err
	}
	return status == codec.StatusComplete, nil
}

// Read parses the full snapshot: header, vector clock, and document state.
func (r *Reader) Read(path string) (Snapshot, error) {
	buf, err := r.fs.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	status, err := codec.ReadSnapshotHeader(buf)
	if err != nil {
		return Snapshot{}, err
	}
	vc, n, err := codec.DecodeVectorClock(buf[codec.SnapshotHeaderSize:])
	if err != nil {
		return Snapshot{}, err
	}
	state := buf[codec.SnapshotHeaderSize+n:]
	stateCopy := make([]byte, len(state))
	copy(stateCopy, state)
	return Snapshot{Status: status, VectorClock: vc, State: stateCopy}, nil
}

// FindBest implements findBestSnapshot (spec.md §4.4): iterating
// newest-first, the first file whose status is complete is returned.
// If every snapshot is incomplete, it returns found=false rather than
// an error — corruption of one candidate never blocks recovery from
// an older, valid one.
func (r *Reader) FindBest() (snap Snapshot, file FileInfo, found bool, err error) {
	files, err := r.List()
	if err != nil {
		return Snapshot{}, FileInfo{}, false, err
	}
	for _, f := range files {
		complete, cerr := r.IsComplete(f.Path)
		if cerr != nil {
			continue
		}
		if !complete {
			continue
		}
		s, rerr := r.Read(f.Path)
		if rerr != nil {
			continue
		}
		return s, f, true, nil
	}
	return Snapshot{}, FileInfo{}, false, nil
}
