package tables

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ComputeChecksum computes a SHA256 checksum for the given data.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// VerifyChecksum verifies that data matches the expected checksum.
func VerifyChecksum(data []byte, expected string) bool {
	actual := ComputeChecksum(data)
	return actual == expected
}

// RecordsChecksum hashes a batch of records joined by newlines.
// It depends only on record bytes and order, not on the storage encoding.
func RecordsChecksum(records []json.RawMessage) string {
	h := sha256.New()
	for i, rec := range records {
		if i > 0 {
			h.Write([]byte{'\n'})
		}
		h.Write(rec)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
