// Package codec implements the bit-exact wire formats of spec.md §3/§4.1:
// varints, big-endian timestamps, log/snapshot headers, log records,
// and vector-clock serialization.
package codec

import (
	"encoding/binary"

	"github.com/cuemby/noteforge/pkg/ncerr"
)

const (
	// LogMagic is the 4-byte magic of a .crdtlog file header.
	LogMagic uint32 = 0x4E434C47 // "NCLG"
	// SnapshotMagic is the 4-byte magic of a .snapshot file header.
	SnapshotMagic uint32 = 0x4E435353 // "NCSS"
	// FormatVersion is the only header version this build understands.
	FormatVersion byte = 1

	// StatusIncomplete marks a snapshot still being written.
	StatusIncomplete byte = 0x00
	// StatusComplete marks a durably-written, loadable snapshot.
	StatusComplete byte = 0x01

	// LogHeaderSize is the 5-byte log file header: magic + version.
	LogHeaderSize = 5
	// SnapshotHeaderSize is the 6-byte snapshot file header: magic +
	// version + status.
	SnapshotHeaderSize = 6
)

// EncodeTimestamp encodes ms as 8 bytes big-endian.
func EncodeTimestamp(ms uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ms)
	return buf
}

// DecodeTimestamp decodes 8 bytes big-endian into milliseconds.
func DecodeTimestamp(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, ncerr.Wrap(ncerr.KindIncomplete, "timestamp requires 8 bytes", nil)
	}
	return binary.BigEndian.Uint64(buf[:8]), nil
}

// WriteLogHeader appends the 5-byte log file header.
func WriteLogHeader() []byte {
	buf := make([]byte, LogHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], LogMagic)
	buf[4] = FormatVersion
	return buf
}

// ReadLogHeader validates the 5-byte log file header.
func ReadLogHeader(buf []byte) error {
	if len(buf) < LogHeaderSize {
		return ncerr.Wrap(ncerr.KindTruncated, "log header requires 5 bytes", nil)
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != LogMagic {
		return ncerr.Wrap(ncerr.KindBadMagic, "log file magic mismatch", nil)
	}
	if buf[4] != FormatVersion {
		return ncerr.Wrap(ncerr.KindUnsupportedVersion, "unsupported log format version", nil)
	}
	return nil
}

// WriteSnapshotHeader appends the 6-byte snapshot file header.
func WriteSnapshotHeader(status byte) []byte {
	buf := make([]byte, SnapshotHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], SnapshotMagic)
	buf[4] = FormatVersion
	buf[5] = status
	return buf
}

// ReadSnapshotHeader validates the 6-byte snapshot header and returns
// its status byte.
func ReadSnapshotHeader(buf []byte) (status byte, err error) {
	if len(buf) < SnapshotHeaderSize {
		return 0, ncerr.Wrap(ncerr.KindTruncated, "snapshot header requires 6 bytes", nil)
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != SnapshotMagic {
		return 0, ncerr.Wrap(ncerr.KindBadMagic, "snapshot file magic mismatch", nil)
	}
	if buf[4] != FormatVersion {
		return 0, ncerr.Wrap(ncerr.KindUnsupportedVersion, "unsupported snapshot format version", nil)
	}
	st := buf[5]
	if st != StatusIncomplete && st != StatusComplete {
		return 0, ncerr.Wrap(ncerr.KindBadStatus, "snapshot status byte out of range", nil)
	}
	return st, nil
}

// Record is a decoded log record (spec.md §3).
type Record struct {
	Timestamp uint64
	Sequence  uint64
	Data      []byte
}

// EncodeRecord builds the on-disk bytes for one log record: a
// varint-length-prefixed payload of timestamp(8) + varint(sequence) + data.
func EncodeRecord(timestamp uint64, sequence uint64, data []byte) []byte {
	payload := make([]byte, 0, 8+binary.MaxVarintLen64+len(data))
	payload = append(payload, EncodeTimestamp(timestamp)...)
	payload = append(payload, EncodeUvarint(sequence)...)
	payload = append(payload, data...)

	out := make([]byte, 0, binary.MaxVarintLen64+len(payload))
	out = append(out, EncodeUvarint(uint64(len(payload)))...)
	out = append(out, payload...)
	return out
}

// EncodeSentinel returns the one-byte termination sentinel: a
// zero-length payload prefix. payloadLen == 0 is never a valid
// zero-byte data record (spec.md §8).
func EncodeSentinel() []byte {
	return []byte{0x00}
}

// DecodedRecord is the result of reading one frame from a log file.
type DecodedRecord struct {
	Terminated bool
	BytesRead  int
	Record     Record
}

// ReadRecord decodes one frame (record or sentinel) starting at the
// beginning of buf. It does not consult or require a file offset;
// callers track offsets themselves.
//
// Truncated is returned (not BadMagic/UnsupportedVersion — those only
// apply to headers) when the length prefix cannot be fully decoded, or
// when buf doesn't contain the full payload the prefix promised. This
// is the signal activity sync retries on (spec.md §4.3/§4.8).
func ReadRecord(buf []byte) (DecodedRecord, error) {
	length, n, err := DecodeUvarint(buf)
	if err != nil {
		// An incomplete/overflowing length prefix is itself a
		// truncation signal one level up: cloud sync may still be
		// writing this frame.
		return DecodedRecord{}, ncerr.Wrap(ncerr.KindTruncated, "truncated record length prefix", err)
	}
	if length == 0 {
		return DecodedRecord{Terminated: true, BytesRead: n}, nil
	}

	rest := buf[n:]
	if uint64(len(rest)) < length {
		return DecodedRecord{}, ncerr.Wrap(ncerr.KindTruncated, "truncated record payload", nil)
	}
	payload := rest[:length]

	ts, err := DecodeTimestamp(payload)
	if err != nil {
		return DecodedRecord{}, ncerr.Wrap(ncerr.KindTruncated, "truncated record timestamp", err)
	}
	seq, seqLen, err := DecodeUvarint(payload[8:])
	if err != nil {
		return DecodedRecord{}, ncerr.Wrap(ncerr.KindTruncated, "truncated record sequence", err)
	}
	data := payload[8+seqLen:]
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	return DecodedRecord{
		BytesRead: n + int(length),
		Record: Record{
			Timestamp: ts,
			Sequence:  seq,
			Data:      dataCopy,
		},
	}, nil
}

// VectorClockEntry is one peer's position in the log-merge watermark
// (spec.md §3).
type VectorClockEntry struct {
	InstanceID string
	Sequence   uint64
	Offset     uint64
	Filename   string
}

// EncodeVectorClock serializes a set of entries as: varint count, then
// per entry varint idLen + id, varint sequence, varint offset, varint
// fnLen + filename.
func EncodeVectorClock(entries []VectorClockEntry) []byte {
	out := EncodeUvarint(uint64(len(entries)))
	for _, e := range entries {
		out = append(out, EncodeUvarint(uint64(len(e.InstanceID)))...)
		out = append(out, e.InstanceID...)
		out = append(out, EncodeUvarint(e.Sequence)...)
		out = append(out, EncodeUvarint(e.Offset)...)
		out = append(out, EncodeUvarint(uint64(len(e.Filename)))...)
		out = append(out, e.Filename...)
	}
	return out
}

// DecodeVectorClock parses the serialization produced by
// EncodeVectorClock, returning the entries and the number of bytes consumed.
func DecodeVectorClock(buf []byte) ([]VectorClockEntry, int, error) {
	count, n, err := DecodeUvarint(buf)
	if err != nil {
		return nil, 0, ncerr.Wrap(ncerr.KindTruncated, "truncated vector clock count", err)
	}
	pos := n
	entries := make([]VectorClockEntry, 0, count)

	for i := uint64(0); i < count; i++ {
		idLen, ln, err := DecodeUvarint(buf[pos:])
		if err != nil {
			return nil, 0, ncerr.Wrap(ncerr.KindTruncated, "truncated vector clock entry id length", err)
		}
		pos += ln
		if uint64(len(buf)-pos) < idLen {
			return nil, 0, ncerr.Wrap(ncerr.KindTruncated, "truncated vector clock entry id", nil)
		}
		id := string(buf[pos : pos+int(idLen)])
		pos += int(idLen)

		seq, ln, err := DecodeUvarint(buf[pos:])
		if err != nil {
			return nil, 0, ncerr.Wrap(ncerr.KindTruncated, "truncated vector clock entry sequence", err)
		}
		pos += ln

		offset, ln, err := DecodeUvarint(buf[pos:])
		if err != nil {
			return nil, 0, ncerr.Wrap(ncerr.KindTruncated, "truncated vector clock entry offset", err)
		}
		pos += ln

		fnLen, ln, err := DecodeUvarint(buf[pos:])
		if err != nil {
			return nil, 0, ncerr.Wrap(ncerr.KindTruncated, "truncated vector clock entry filename length", err)
		}
		pos += ln
		if uint64(len(buf)-pos) < fnLen {
			return nil, 0, ncerr.Wrap(ncerr.KindTruncated, "truncated vector clock entry filename", nil)
		}
		fn := string(buf[pos : pos+int(fnLen)])
		pos += int(fnLen)

		entries = append(entries, VectorClockEntry{
			InstanceID: id,
			Sequence:   seq,
			Offset:     offset,
			Filename:   fn,
		})
	}

	return entries, pos, nil
}
