package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRecord   = "dyneval/record/v1"
	DomainEmission = "dyneval/emission/v1"
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

// RecordHash computes the content hash of a record's canonical form.
// Structurally equal records always hash the same; the invalid sentinel
// hashes like any other NO_DATA record, so callers that care must track
// invalidity separately.
func RecordHash(r *Record) (string, error) {
	canonical, err := MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("RecordHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// MustRecordHash is like RecordHash but panics on error.
// Use only with records known to be finite (tests, constants).
func MustRecordHash(r *Record) string {
	h, err := RecordHash(r)
	if err != nil {
		panic(err)
	}
	return h
}

// EmissionID computes the identity of one emission within a subscription.
func EmissionID(subscriptionID string, seq int64, recordHash string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"subscription_id": subscriptionID,
		"seq":             seq,
		"record_hash":     recordHash,
	})
	if err != nil {
		return "", fmt.Errorf("EmissionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEmission, canonical), nil
}
