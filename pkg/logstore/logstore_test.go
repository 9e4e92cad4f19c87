package logstore

import (
	"testing"

	"github.com/cuemby/noteforge/pkg/codec"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAppendAndReadBack(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/logs"))

	w := NewWriter(fake, "/logs", "inst-a")
	for i := uint64(1); i <= 3; i++ {
		res, err := w.AppendRecord(1000+i, i, []byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, w.GetCurrentFile(), res.File)
	}
	require.NoError(t, w.Finalize())

	entries, err := ReadRecords(fake, fake.JoinPath("/logs", w.GetCurrentFile()), nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(1001), entries[0].Timestamp)
	assert.Equal(t, []byte{3}, entries[2].Data)
}

func TestWriterFinalizeRejectsFurtherAppends(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/logs"))
	w := NewWriter(fake, "/logs", "inst-a")
	_, err := w.AppendRecord(1, 1, []byte{0x1})
	require.NoError(t, err)
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Finalize()) // idempotent

	_, err = w.AppendRecord(2, 2, []byte{0x2})
	assert.Error(t, err)
}

func TestWriterResumesIntoExistingUnfinalizedFile(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/logs"))

	w1 := NewWriter(fake, "/logs", "inst-a")
	_, err := w1.AppendRecord(1, 1, []byte{0xAA})
	require.NoError(t, err)
	file := w1.GetCurrentFile()
	offsetAfterOne := w1.GetCurrentOffset()

	w2 := NewWriter(fake, "/logs", "inst-a")
	res, err := w2.AppendRecord(2, 2, []byte{0xBB})
	require.NoError(t, err)
	assert.Equal(t, file, res.File)
	assert.Equal(t, offsetAfterOne, res.Offset)

	entries, err := ReadRecords(fake, fake.JoinPath("/logs", file), nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestWriterDoesNotResumeIntoFinalizedFile(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/logs"))

	w1 := NewWriter(fake, "/logs", "inst-a")
	_, err := w1.AppendRecord(1, 1, []byte{0xAA})
	require.NoError(t, err)
	require.NoError(t, w1.Finalize())
	firstFile := w1.GetCurrentFile()

	w2 := NewWriter(fake, "/logs", "inst-a")
	_, err = w2.AppendRecord(2, 2, []byte{0xBB})
	require.NoError(t, err)
	assert.NotEqual(t, firstFile, w2.GetCurrentFile())
}

func TestWriterTruncatesIncompleteTrailingRecordOnResume(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/logs"))

	w1 := NewWriter(fake, "/logs", "inst-a")
	_, err := w1.AppendRecord(1, 1, []byte{0xAA})
	require.NoError(t, err)
	goodOffset := w1.GetCurrentOffset()
	path := fake.JoinPath("/logs", w1.GetCurrentFile())

	// Simulate a crash mid-write of a second record: a length prefix
	// promising more payload than actually landed on disk.
	buf, err := fake.ReadFile(path)
	require.NoError(t, err)
	partial := codec.EncodeRecord(2, 2, []byte{0x01, 0x02, 0x03})
	buf = append(buf, partial[:len(partial)-2]...)
	require.NoError(t, fake.WriteFile(path, buf))

	w2 := NewWriter(fake, "/logs", "inst-a")
	res, err := w2.AppendRecord(3, 2, []byte{0xCC})
	require.NoError(t, err)
	assert.Equal(t, goodOffset, res.Offset)

	entries, err := ReadRecords(fake, path, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte{0xCC}, entries[1].Data)
}

func TestWriterRotatesWhenThresholdExceeded(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/logs"))

	rotated := 0
	w := NewWriter(fake, "/logs", "inst-a",
		WithRotationSize(int64(codec.LogHeaderSize)+20),
		WithRotateHook(func() { rotated++ }))

	first := ""
	for i := uint64(1); i <= 5; i++ {
		res, err := w.AppendRecord(1000+i, i, []byte{0x01, 0x02, 0x03, 0x04})
		require.NoError(t, err)
		if first == "" {
			first = res.File
		}
	}

	assert.Greater(t, rotated, 0)
	assert.NotEqual(t, first, w.GetCurrentFile())

	files, err := ListLogFiles(fake, "/logs")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2)
}

func TestValidateLogIntegrityReportsTruncatedButValid(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/logs"))

	w := NewWriter(fake, "/logs", "inst-a")
	_, err := w.AppendRecord(1, 1, []byte{0xAA})
	require.NoError(t, err)
	path := fake.JoinPath("/logs", w.GetCurrentFile())

	buf, err := fake.ReadFile(path)
	require.NoError(t, err)
	partial := codec.EncodeRecord(2, 2, []byte{0x01, 0x02, 0x03})
	buf = append(buf, partial[:len(partial)-2]...)
	require.NoError(t, fake.WriteFile(path, buf))

	result := ValidateLogIntegrity(fake, path)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.RecordCount)
	assert.Error(t, result.Err)
}

func TestParseLogFilenameLegacyAndModernForms(t *testing.T) {
	instanceID, ts, ok := parseLogFilename("inst-a_1000.crdtlog")
	require.True(t, ok)
	assert.Equal(t, "inst-a", instanceID)
	assert.Equal(t, uint64(1000), ts)

	instanceID, ts, ok = parseLogFilename("profile-x_inst-a_1000.crdtlog")
	require.True(t, ok)
	assert.Equal(t, "inst-a", instanceID)
	assert.Equal(t, uint64(1000), ts)

	_, _, ok = parseLogFilename("not-a-log.txt")
	assert.False(t, ok)
}
