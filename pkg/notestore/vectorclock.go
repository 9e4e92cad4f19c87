package notestore

import (
	"encoding/json"
	"time"

	"github.com/cuemby/noteforge/pkg/codec"
)

// vcJSON is the on-disk shape of the cache row's vectorClockJSON
// column: a plain list, not a map, so key order never affects the
// serialized bytes.
type vcJSON struct {
	InstanceID string `json:"instanceId"`
	Sequence   uint64 `json:"sequence"`
	Offset     uint64 `json:"offset"`
	Filename   string `json:"filename"`
}

func encodeVectorClockJSON(vc map[string]codec.VectorClockEntry) (string, error) {
	entries := make([]vcJSON, 0, len(vc))
	for _, k := range sortedKeys(vc) {
		e := vc[k]
		entries = append(entries, vcJSON{
			InstanceID: e.InstanceID,
			Sequence:   e.Sequence,
			Offset:     e.Offset,
			Filename:   e.Filename,
		})
	}
	buf, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeVectorClockJSON(s string) (map[string]codec.VectorClockEntry, error) {
	out := make(map[string]codec.VectorClockEntry)
	if s == "" {
		return out, nil
	}
	var entries []vcJSON
	if err := json.Unmarshal([]byte(s), &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.InstanceID] = codec.VectorClockEntry{
			InstanceID: e.InstanceID,
			Sequence:   e.Sequence,
			Offset:     e.Offset,
			Filename:   e.Filename,
		}
	}
	return out, nil
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
