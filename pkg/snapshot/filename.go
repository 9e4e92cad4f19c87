package snapshot

import (
	"strconv"
	"strings"
	"time"
)

// parseSnapshotFilename recognizes "{instanceId}_{timestamp}.snapshot",
// mirroring the log file naming convention of spec.md §3.
func parseSnapshotFilename(name string) (instanceID string, timestamp uint64, ok bool) {
	if !strings.HasSuffix(name, snapshotExt) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(name, snapshotExt)
	idx := strings.LastIndex(stem, "_")
	if idx <= 0 || idx == len(stem)-1 {
		return "", 0, false
	}
	ts, err := strconv.ParseUint(stem[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return stem[:idx], ts, true
}

func formatSnapshotFilename(instanceID string, timestamp uint64) string {
	return instanceID + "_" + strconv.FormatUint(timestamp, 10) + snapshotExt
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
