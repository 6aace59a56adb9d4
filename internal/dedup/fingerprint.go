package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"intake/internal/textutil"
)

const markerPrefix = "intake:"

// ResponseKey derives the key identifying one submission. With a timestamp
// column the key is built from the timestamp and identifying answers; without
// one it is the ordered join of every non-empty cell.
func ResponseKey(headers, row []string) string {
	sub := Parse(headers, row)
	if sub.HasTimestamp() {
		parts := []string{
			textutil.Normalize(sub.Timestamp),
			textutil.Normalize(sub.IdentityID),
			textutil.Normalize(sub.IdentityName),
			textutil.Normalize(sub.InGameName),
			textutil.Normalize(sub.TrackSelection),
		}
		return strings.Join(parts, "|")
	}
	parts := make([]string, 0, len(row))
	for _, cell := range row {
		if normalized := textutil.Normalize(cell); normalized != "" {
			parts = append(parts, normalized)
		}
	}
	return strings.Join(parts, "|")
}

// SubmittedFieldsFingerprint hashes the normalized "key: value" lines of the
// answered fields in order. Empty answers are skipped.
func SubmittedFieldsFingerprint(fields []Field) string {
	lines := make([]string, 0, len(fields))
	for _, field := range fields {
		value := textutil.Normalize(field.Value)
		if value == "" {
			continue
		}
		lines = append(lines, textutil.Normalize(field.Key)+": "+value)
	}
	if len(lines) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// PostMarker returns the token embedded in a posted message so a later pass
// can recognize its own post. Keyed rows use the response key; unkeyed rows
// use the row index and fingerprint.
func PostMarker(responseKey, fingerprint string, rowIndex int, trackKey string) string {
	seed := responseKey
	if seed == "" {
		seed = "row:" + strconv.Itoa(rowIndex) + "|" + fingerprint
	}
	sum := sha256.Sum256([]byte(seed + "|" + trackKey))
	return markerPrefix + hex.EncodeToString(sum[:8])
}
