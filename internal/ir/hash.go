package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFlushEntry = "touchdelay/flush/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FlushEntryID computes the content-addressed ID of a journal entry.
// The ID is stable for the same scope, pass, group and timestamp, so
// re-recording an entry (e.g. on retry of the surrounding transaction) is
// idempotent. The entry's own ID and Seq are not part of the hash.
func FlushEntryID(e FlushEntry) (string, error) {
	obj := map[string]any{
		"scope_id":    e.ScopeID,
		"pass":        e.Pass,
		"attr_key":    string(e.AttrKey),
		"record_type": e.RecordType,
		"columns":     e.Columns,
		"record_ids":  e.RecordIDs,
		"stamped_at":  e.StampedAt,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FlushEntryID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainFlushEntry, canonical), nil
}

// MustFlushEntryID is like FlushEntryID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFlushEntryID(e FlushEntry) string {
	id, err := FlushEntryID(e)
	if err != nil {
		panic(err)
	}
	return id
}
