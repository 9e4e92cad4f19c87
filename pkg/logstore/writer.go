package logstore

import (
	"github.com/cuemby/noteforge/pkg/codec"
	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/metrics"
	"github.com/cuemby/noteforge/pkg/ncerr"
	"github.com/rs/zerolog"
)

// DefaultRotationSizeBytes is the rotation threshold spec.md §4.2 defaults to.
const DefaultRotationSizeBytes = 10 * 1024 * 1024

// AppendResult is returned by Writer.AppendRecord.
type AppendResult struct {
	File   string
	Offset int64
}

// Writer is scoped to one (note, instance) pair and one logs/
// directory, matching spec.md §4.2's C2 contract.
type Writer struct {
	fs         fsx.FS
	dir        string
	instanceID string
	rotateSize int64
	onRotate   func()
	logger     zerolog.Logger

	currentFile string
	currentPath string
	offset      int64
	finalized   bool
}

// Option configures a Writer at construction time.
type Option func(*Writer)

// WithRotationSize overrides the default rotation threshold.
func WithRotationSize(bytes int64) Option {
	return func(w *Writer) { w.rotateSize = bytes }
}

// WithRotateHook registers a callback invoked synchronously right
// after a sentinel is written and fsynced on rotation, before the new
// file is created — used to trigger a snapshot write (spec.md §4.2).
func WithRotateHook(fn func()) Option {
	return func(w *Writer) { w.onRotate = fn }
}

// NewWriter constructs a Writer. It does not touch disk until the
// first AppendRecord call, which performs the scan-and-resume
// described in spec.md §4.2.
func NewWriter(fs fsx.FS, dir, instanceID string, opts ...Option) *Writer {
	w := &Writer{
		fs:         fs,
		dir:        dir,
		instanceID: instanceID,
		rotateSize: DefaultRotationSizeBytes,
		logger:     elog.WithComponent("logstore.writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// GetCurrentFile returns the basename of the file currently being
// written to, or "" if no file has been opened yet.
func (w *Writer) GetCurrentFile() string { return w.currentFile }

// GetCurrentOffset returns the next byte offset that will be written.
func (w *Writer) GetCurrentOffset() int64 { return w.offset }

// AppendRecord writes one record and returns the file and the offset
// at which it starts.
func (w *Writer) AppendRecord(timestamp, sequence uint64, data []byte) (AppendResult, error) {
	if w.finalized {
		return AppendResult{}, ncerr.ErrFinalized
	}

	if w.currentFile == "" {
		if err := w.initialize(); err != nil {
			return AppendResult{}, err
		}
	}

	record := codec.EncodeRecord(timestamp, sequence, data)
	if w.offset+int64(len(record)) > w.rotateSize && w.offset > codec.LogHeaderSize {
		if err := w.rotate(); err != nil {
			return AppendResult{}, err
		}
	}

	startOffset := w.offset
	if err := w.fs.AppendFile(w.currentPath, record); err != nil {
		return AppendResult{}, err
	}
	w.offset += int64(len(record))

	return AppendResult{File: w.currentFile, Offset: startOffset}, nil
}

// Finalize writes a termination sentinel. Further appends fail with
// ncerr.ErrFinalized. Idempotent: a second call is a no-op.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	if w.currentFile == "" {
		// Nothing was ever written; nothing to terminate.
		w.finalized = true
		return nil
	}
	if err := w.writeSentinel(); err != nil {
		return err
	}
	w.finalized = true
	return nil
}

func (w *Writer) writeSentinel() error {
	sentinel := codec.EncodeSentinel()
	if err := w.fs.AppendFile(w.currentPath, sentinel); err != nil {
		return err
	}
	w.offset += int64(len(sentinel))
	return w.fs.Sync(w.currentPath)
}

// rotate terminates the current file, invokes onRotate, then opens a
// fresh file. Strictly ordered per spec.md §5: sentinel write, hook,
// new file creation all complete before the next append returns.
func (w *Writer) rotate() error {
	if err := w.writeSentinel(); err != nil {
		return err
	}
	metrics.LogRotationsTotal.Inc()
	w.logger.Info().Str("file", w.currentFile).Msg("rotating crdtlog")

	if w.onRotate != nil {
		w.onRotate()
	}

	return w.createNewFile()
}

// initialize implements the scan-and-resume algorithm of spec.md
// §4.2: prefer the newest non-finalized file under the rotation
// threshold; otherwise start a new one.
func (w *Writer) initialize() error {
	files, err := ListLogFiles(w.fs, w.dir)
	if err != nil {
		return err
	}

	// Newest first, restricted to this instance's own files.
	var mine []FileInfo
	for _, f := range files {
		if f.InstanceID == w.instanceID {
			mine = append(mine, f)
		}
	}
	for i, j := 0, len(mine)-1; i < j; i, j = i+1, j-1 {
		mine[i], mine[j] = mine[j], mine[i]
	}

	for _, f := range mine {
		offset, usable, err := w.scanForResume(f.Path)
		if err != nil {
			w.logger.Warn().Str("file", f.Filename).Err(err).Msg("skipping unreadable crdtlog candidate")
			continue
		}
		if !usable {
			continue
		}
		if offset < w.rotateSize {
			w.currentFile = f.Filename
			w.currentPath = f.Path
			w.offset = offset
			w.logger.Debug().Str("file", f.Filename).Int64("offset", offset).Msg("resuming crdtlog")
			return nil
		}
	}

	return w.createNewFile()
}

// scanForResume walks a candidate file's records using only the
// length prefix (the payload contents don't matter here) to find the
// offset writing should resume at. It reports usable=false for a
// finalized file (sentinel already present).
func (w *Writer) scanForResume(path string) (offset int64, usable bool, err error) {
	buf, err := w.fs.ReadFile(path)
	if err != nil {
		return 0, false, err
	}
	if err := codec.ReadLogHeader(buf); err != nil {
		return 0, false, err
	}

	pos := codec.LogHeaderSize
	for pos < len(buf) {
		length, n, err := codec.DecodeUvarint(buf[pos:])
		if err != nil {
			// Varint decode error: treat as EOF, resume here, dropping
			// the undecodable bytes so the next append starts at pos.
			if err := w.fs.WriteFile(path, buf[:pos]); err != nil {
				return 0, false, err
			}
			return int64(pos), true, nil
		}
		if length == 0 {
			// Sentinel: file is finalized, unusable.
			return 0, false, nil
		}
		frameEnd := pos + n + int(length)
		if frameEnd > len(buf) {
			// Incomplete trailing record from a prior crash: truncate
			// by resuming writes here, overwriting the partial record.
			if err := w.fs.WriteFile(path, buf[:pos]); err != nil {
				return 0, false, err
			}
			return int64(pos), true, nil
		}
		pos = frameEnd
	}
	return int64(pos), true, nil
}

// createNewFile opens a brand new log file named per the modern form,
// disambiguating the timestamp if a collision exists.
func (w *Writer) createNewFile() error {
	ts := nowMs()
	name := formatLogFilename(w.instanceID, ts)
	for w.fs.Exists(w.fs.JoinPath(w.dir, name)) {
		ts++
		name = formatLogFilename(w.instanceID, ts)
	}

	path := w.fs.JoinPath(w.dir, name)
	if err := w.fs.WriteFile(path, codec.WriteLogHeader()); err != nil {
		return err
	}

	w.currentFile = name
	w.currentPath = path
	w.offset = codec.LogHeaderSize
	w.finalized = false
	return nil
}
