package logstore

import (
	"strconv"
	"strings"
	"time"
)

const logExt = ".crdtlog"

// parseLogFilename recognizes both on-disk naming forms named in the
// REDESIGN FLAGS of spec.md §9: the modern two-part
// "{instanceId}_{timestamp}.crdtlog" and the legacy three-part
// "{profileId}_{instanceId}_{timestamp}.crdtlog". It returns the
// instance id and timestamp (the profile id, when present, is not
// otherwise used by the engine) and whether name matched either form.
func parseLogFilename(name string) (instanceID string, timestamp uint64, ok bool) {
	if !strings.HasSuffix(name, logExt) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(name, logExt)
	parts := strings.Split(stem, "_")

	switch len(parts) {
	case 2:
		ts, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || parts[0] == "" {
			return "", 0, false
		}
		return parts[0], ts, true
	case 3:
		ts, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil || parts[1] == "" {
			return "", 0, false
		}
		return parts[1], ts, true
	default:
		return "", 0, false
	}
}

// formatLogFilename builds the modern two-part form. New files are
// always written this way, per spec.md §9.
func formatLogFilename(instanceID string, timestamp uint64) string {
	return instanceID + "_" + strconv.FormatUint(timestamp, 10) + logExt
}

// nowMs returns the current time as milliseconds since epoch, the
// unit every on-disk timestamp in this package uses.
func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
