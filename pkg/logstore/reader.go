// Package logstore implements the append-only .crdtlog format: the
// log writer (C2) that a single (note, instance) pair appends to, and
// the stateless log reader (C3) that lists and parses log files
// belonging to any instance.
package logstore

import (
	"sort"

	"github.com/cuemby/noteforge/pkg/codec"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/metrics"
	"github.com/cuemby/noteforge/pkg/ncerr"
)

// FileInfo describes one .crdtlog file on disk.
type FileInfo struct {
	Filename   string
	Path       string
	InstanceID string
	Timestamp  uint64
	Size       int64
}

// ListLogFiles returns every *.crdtlog file in dir whose name matches
// the recognized patterns, sorted by parsed timestamp ascending. Files
// that can't be stat'ed (a race with concurrent deletion) are skipped,
// per spec.md §4.3.
func ListLogFiles(fs fsx.FS, dir string) ([]FileInfo, error) {
	names, err := fs.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, name := range names {
		instanceID, ts, ok := parseLogFilename(name)
		if !ok {
			continue
		}
		path := fs.JoinPath(dir, name)
		info, err := fs.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Filename:   name,
			Path:       path,
			InstanceID: instanceID,
			Timestamp:  ts,
			Size:       info.Size,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp < files[j].Timestamp })
	return files, nil
}

// Entry is one record yielded by ReadRecords, including its absolute
// position within the file.
type Entry struct {
	Timestamp uint64
	Sequence  uint64
	Data      []byte
	Offset    int64
	BytesRead int
}

// ReadRecords reads the whole file into memory once and iterates its
// records starting at startOffset. If startOffset is nil, the header
// is validated first and iteration starts right after it; otherwise
// iteration jumps directly to *startOffset (the caller is trusted to
// have derived it from a valid vector clock).
//
// Iteration stops at the termination sentinel, at end of buffer, or on
// a Truncated error — which is returned to the caller so a retrying
// layer (the note storage manager's log-merge, §4.6) can back off and
// retry once more bytes have propagated through cloud sync.
func ReadRecords(fs fsx.FS, path string, startOffset *int64) ([]Entry, error) {
	buf, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var offset int64
	if startOffset == nil {
		if err := codec.ReadLogHeader(buf); err != nil {
			return nil, err
		}
		offset = codec.LogHeaderSize
	} else {
		offset = *startOffset
	}

	var entries []Entry
	for int(offset) < len(buf) {
		decoded, err := codec.ReadRecord(buf[offset:])
		if err != nil {
			return entries, err
		}
		if decoded.Terminated {
			break
		}
		entries = append(entries, Entry{
			Timestamp: decoded.Record.Timestamp,
			Sequence:  decoded.Record.Sequence,
			Data:      decoded.Record.Data,
			Offset:    offset,
			BytesRead: decoded.BytesRead,
		})
		offset += int64(decoded.BytesRead)
	}

	return entries, nil
}

// ValidateLogIntegrity validates the header and counts well-formed
// records until EOF, a sentinel, or a decode error (spec.md §4.5). A
// partial count is reported alongside the error when some records
// parsed successfully before corruption was hit.
type ValidateResult struct {
	Valid       bool
	RecordCount int
	Err         error
}

func ValidateLogIntegrity(fs fsx.FS, path string) ValidateResult {
	buf, err := fs.ReadFile(path)
	if err != nil {
		metrics.LogIntegrityFailuresTotal.WithLabelValues("read_error").Inc()
		return ValidateResult{Err: err}
	}
	if err := codec.ReadLogHeader(buf); err != nil {
		metrics.LogIntegrityFailuresTotal.WithLabelValues(integrityKind(err)).Inc()
		return ValidateResult{Err: err}
	}

	offset := codec.LogHeaderSize
	count := 0
	for offset < len(buf) {
		decoded, err := codec.ReadRecord(buf[offset:])
		if err != nil {
			if ncerr.OfKind(err, ncerr.KindTruncated) {
				// An incomplete trailing record is an expected crash
				// or in-flight-cloud-sync artifact, not corruption:
				// everything read up to here is still trustworthy.
				return ValidateResult{Valid: true, RecordCount: count, Err: err}
			}
			metrics.LogIntegrityFailuresTotal.WithLabelValues(integrityKind(err)).Inc()
			return ValidateResult{RecordCount: count, Err: err}
		}
		if decoded.Terminated {
			return ValidateResult{Valid: true, RecordCount: count}
		}
		count++
		offset += decoded.BytesRead
	}
	return ValidateResult{Valid: true, RecordCount: count}
}

// integrityKind extracts the ncerr.Kind label for the failures metric,
// falling back to "unknown" for an error that isn't one of ours.
func integrityKind(err error) string {
	for _, kind := range []ncerr.Kind{
		ncerr.KindBadMagic, ncerr.KindUnsupportedVersion, ncerr.KindBadStatus,
		ncerr.KindNegative, ncerr.KindOverflow, ncerr.KindIncomplete,
	} {
		if ncerr.OfKind(err, kind) {
			return string(kind)
		}
	}
	return "unknown"
}
