package notestore

import (
	"strings"

	"github.com/cuemby/noteforge/pkg/codec"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/logstore"
	"github.com/cuemby/noteforge/pkg/metrics"
	"github.com/cuemby/noteforge/pkg/snapshot"
)

// RecoveryOptions tunes crash recovery (C10).
type RecoveryOptions struct {
	// KeepSnapshots, if > 0, caps how many of the most recent complete
	// snapshots survive pruning; 0 means keep all complete snapshots.
	KeepSnapshots int
}

// RecoverNoteDirectory implements spec.md §4.5's startup routine for
// one note directory: delete incomplete snapshots, optionally prune to
// the N most recent complete ones, then delete log files older than the
// surviving watermark.
func RecoverNoteDirectory(fs fsx.FS, paths Paths, opts RecoveryOptions) error {
	metrics.RecoveryRunsTotal.Inc()

	reader := snapshot.NewReader(fs, paths.Snapshots)
	files, err := reader.List() // newest-first
	if err != nil {
		return err
	}

	var complete []snapshot.FileInfo
	for _, f := range files {
		ok, err := reader.IsComplete(f.Path)
		if err != nil || !ok {
			if err := fs.DeleteFile(f.Path); err != nil {
				return err
			}
			metrics.SnapshotsPrunedTotal.WithLabelValues("incomplete").Inc()
			continue
		}
		complete = append(complete, f)
	}

	if opts.KeepSnapshots > 0 && len(complete) > opts.KeepSnapshots {
		for _, f := range complete[opts.KeepSnapshots:] {
			if err := fs.DeleteFile(f.Path); err != nil {
				return err
			}
			metrics.SnapshotsPrunedTotal.WithLabelValues("retention").Inc()
		}
		complete = complete[:opts.KeepSnapshots]
	}

	if len(complete) == 0 {
		return nil // no complete snapshot: keep all logs
	}

	snap, err := reader.Read(complete[0].Path)
	if err != nil {
		return err
	}
	return pruneLogsBelowWatermark(fs, paths.Logs, snap.VectorClock)
}

// pruneLogsBelowWatermark deletes every log file strictly older than
// the watermark filename for its instance (lexicographic comparison),
// keeping files whose instance doesn't appear in the clock at all.
func pruneLogsBelowWatermark(fs fsx.FS, logsDir string, vc []codec.VectorClockEntry) error {
	watermark := make(map[string]string, len(vc))
	for _, e := range vc {
		watermark[e.InstanceID] = e.Filename
	}

	files, err := logstore.ListLogFiles(fs, logsDir)
	if err != nil {
		return err
	}

	for _, f := range files {
		mark, ok := watermark[f.InstanceID]
		if !ok {
			continue
		}
		if strings.Compare(f.Filename, mark) < 0 {
			if err := fs.DeleteFile(f.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecoverDocument implements recoverDocument(snapshotDir, logsDir):
// apply the best snapshot if any, then the log-merge algorithm.
func (m *Manager) RecoverDocument(paths Paths) (Loaded, bool, error) {
	doc, vc, err := m.loadFromSnapshotAndLogs(paths)
	if err != nil {
		return Loaded{}, false, err
	}
	return Loaded{Doc: doc, VectorClock: vc}, true, nil
}
