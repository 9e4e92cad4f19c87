// Package activity implements the activity logger (C7) and activity
// sync (C8) of spec.md §4.7/§4.8: per-instance line-oriented logs that
// announce new writes, and the cross-instance scan/poll loop that
// turns those announcements into reloads.
package activity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/metrics"
)

const logDirName = "activity"

func logPath(fs fsx.FS, sdRoot, instanceID string) string {
	return fs.JoinPath(sdRoot, logDirName, instanceID+".log")
}

// Logger owns one instance's own activity log: {SD}/activity/{instanceId}.log.
type Logger struct {
	fs         fsx.FS
	sdRoot     string
	instanceID string
	maxEntries int
}

// NewLogger returns a Logger for instanceID's own file under sdRoot.
// maxEntries <= 0 uses spec.md's default of 1000.
func NewLogger(fs fsx.FS, sdRoot, instanceID string, maxEntries int) *Logger {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Logger{fs: fs, sdRoot: sdRoot, instanceID: instanceID, maxEntries: maxEntries}
}

// RecordNoteActivity appends one line announcing a write: every
// update gets its own line, never coalesced, so peers reading this
// stream incrementally see every intermediate sequence.
func (l *Logger) RecordNoteActivity(noteID string, sequence uint64) error {
	line := fmt.Sprintf("%s|%s_%d\n", noteID, l.instanceID, sequence)
	return l.fs.AppendFile(logPath(l.fs, l.sdRoot, l.instanceID), []byte(line))
}

// Compact rewrites the file to its last maxEntries lines if it has
// grown past that threshold. Returns the number of lines dropped.
func (l *Logger) Compact() (int, error) {
	path := logPath(l.fs, l.sdRoot, l.instanceID)
	if !l.fs.Exists(path) {
		return 0, nil
	}
	buf, err := l.fs.ReadFile(path)
	if err != nil {
		return 0, err
	}
	lines := splitCompleteLines(buf)
	if len(lines) <= l.maxEntries {
		return 0, nil
	}
	dropped := len(lines) - l.maxEntries
	kept := lines[dropped:]
	out := strings.Join(kept, "\n") + "\n"
	if err := l.fs.WriteFile(path, []byte(out)); err != nil {
		return 0, err
	}
	return dropped, nil
}

// CleanupOwnStaleEntries implements cleanupOwnStaleEntries: find the
// highest sequence in our own log, then rewrite the file dropping
// every line whose sequence is more than threshold behind it. Those
// entries were logged but their CRDT files never materialized — e.g. a
// cloud sync client silently lost the write. Idempotent: a second
// run back-to-back cleans zero entries.
func (l *Logger) CleanupOwnStaleEntries(threshold uint64) ([]Entry, error) {
	path := logPath(l.fs, l.sdRoot, l.instanceID)
	if !l.fs.Exists(path) {
		return nil, nil
	}
	buf, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := splitCompleteLines(buf)

	var highest uint64
	for _, line := range lines {
		if e, ok := parseLine(line); ok && e.Sequence > highest {
			highest = e.Sequence
		}
	}

	var kept []string
	var stale []Entry
	for _, line := range lines {
		if e, ok := parseLine(line); ok && highest-e.Sequence > threshold {
			stale = append(stale, e)
			continue
		}
		kept = append(kept, line)
	}

	if len(stale) == 0 {
		return nil, nil
	}

	out := ""
	if len(kept) > 0 {
		out = strings.Join(kept, "\n") + "\n"
	}
	if err := l.fs.WriteFile(path, []byte(out)); err != nil {
		return nil, err
	}
	metrics.ActivityLogStaleEntriesTotal.WithLabelValues(l.instanceID).Add(float64(len(stale)))
	return stale, nil
}

// Entry is one parsed activity-log line.
type Entry struct {
	NoteID     string
	InstanceID string
	Sequence   uint64
}

// parseLine parses "{noteId}|{instanceId}_{sequence}". Malformed lines
// are reported via ok=false so callers can skip rather than fail.
func parseLine(line string) (Entry, bool) {
	pipeIdx := strings.IndexByte(line, '|')
	if pipeIdx < 0 {
		return Entry{}, false
	}
	noteID := line[:pipeIdx]
	rest := line[pipeIdx+1:]

	underscoreIdx := strings.LastIndexByte(rest, '_')
	if underscoreIdx < 0 {
		return Entry{}, false
	}
	instanceID := rest[:underscoreIdx]
	seqStr := rest[underscoreIdx+1:]

	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil || noteID == "" || instanceID == "" {
		return Entry{}, false
	}
	return Entry{NoteID: noteID, InstanceID: instanceID, Sequence: seq}, true
}

// splitCompleteLines splits buf on '\n' and discards a trailing
// non-terminated fragment — a line still being synced by the cloud
// file-sync client — per spec.md §4.8 step 1. Empty lines are dropped.
func splitCompleteLines(buf []byte) []string {
	s := string(buf)
	if !strings.HasSuffix(s, "\n") {
		if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
			s = s[:idx+1]
		} else {
			s = ""
		}
	}
	raw := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
