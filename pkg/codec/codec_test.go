package codec

import (
	"testing"

	"github.com/cuemby/noteforge/pkg/ncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 16383, 16384, (1 << 53) - 1}
	for _, n := range cases {
		encoded := EncodeUvarint(n)
		got, size, err := DecodeUvarint(encoded)
		require.NoError(t, err)
		assert.Equal(t, n, got)
		assert.Equal(t, len(encoded), size)
	}
}

func TestVarintZeroIsOneByte(t *testing.T) {
	assert.Equal(t, []byte{0x00}, EncodeUvarint(0))
}

func TestVarintEncodeNegativeRejected(t *testing.T) {
	_, err := EncodeVarint(-1)
	assert.True(t, ncerr.OfKind(err, ncerr.KindNegative))
}

func TestVarintDecodeIncomplete(t *testing.T) {
	// high bit set, no following byte
	_, _, err := DecodeUvarint([]byte{0x80})
	assert.True(t, ncerr.OfKind(err, ncerr.KindIncomplete))
}

func TestVarintDecodeEmptyIsIncomplete(t *testing.T) {
	_, _, err := DecodeUvarint(nil)
	assert.True(t, ncerr.OfKind(err, ncerr.KindIncomplete))
}

func TestLogHeaderRoundTrip(t *testing.T) {
	buf := WriteLogHeader()
	require.NoError(t, ReadLogHeader(buf))
}

func TestLogHeaderTruncated(t *testing.T) {
	err := ReadLogHeader([]byte{0x4E, 0x43})
	assert.True(t, ncerr.OfKind(err, ncerr.KindTruncated))
}

func TestLogHeaderBadMagic(t *testing.T) {
	err := ReadLogHeader([]byte{0, 0, 0, 0, 1})
	assert.True(t, ncerr.OfKind(err, ncerr.KindBadMagic))
}

func TestLogHeaderUnsupportedVersion(t *testing.T) {
	buf := WriteLogHeader()
	buf[4] = 9
	err := ReadLogHeader(buf)
	assert.True(t, ncerr.OfKind(err, ncerr.KindUnsupportedVersion))
}

func TestSnapshotHeaderStatusBytes(t *testing.T) {
	for _, st := range []byte{StatusIncomplete, StatusComplete} {
		buf := WriteSnapshotHeader(st)
		got, err := ReadSnapshotHeader(buf)
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
}

func TestSnapshotHeaderBadStatus(t *testing.T) {
	buf := WriteSnapshotHeader(StatusComplete)
	buf[5] = 0x02
	_, err := ReadSnapshotHeader(buf)
	assert.True(t, ncerr.OfKind(err, ncerr.KindBadStatus))
}

func TestRecordRoundTrip(t *testing.T) {
	buf := EncodeRecord(1000, 1, []byte{0xAA})
	decoded, err := ReadRecord(buf)
	require.NoError(t, err)
	assert.False(t, decoded.Terminated)
	assert.Equal(t, uint64(1000), decoded.Record.Timestamp)
	assert.Equal(t, uint64(1), decoded.Record.Sequence)
	assert.Equal(t, []byte{0xAA}, decoded.Record.Data)
	assert.Equal(t, len(buf), decoded.BytesRead)
}

func TestRecordSentinel(t *testing.T) {
	decoded, err := ReadRecord(EncodeSentinel())
	require.NoError(t, err)
	assert.True(t, decoded.Terminated)
	assert.Equal(t, 1, decoded.BytesRead)
}

func TestRecordTruncatedPayload(t *testing.T) {
	buf := EncodeRecord(1000, 1, []byte{0xAA, 0xBB, 0xCC})
	_, err := ReadRecord(buf[:len(buf)-2])
	assert.True(t, ncerr.OfKind(err, ncerr.KindTruncated))
}

func TestVectorClockRoundTrip(t *testing.T) {
	entries := []VectorClockEntry{
		{InstanceID: "inst-a", Sequence: 5, Offset: 42, Filename: "inst-a_1000.crdtlog"},
		{InstanceID: "inst-b", Sequence: 9, Offset: 128, Filename: "inst-b_2000.crdtlog"},
	}
	buf := EncodeVectorClock(entries)
	decoded, n, err := DecodeVectorClock(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, entries, decoded)
}

func TestVectorClockEmpty(t *testing.T) {
	buf := EncodeVectorClock(nil)
	decoded, n, err := DecodeVectorClock(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Empty(t, decoded)
}
