package store

import (
	"context"
	"fmt"

	"github.com/roach88/dyneval/internal/engine"
	"github.com/roach88/dyneval/internal/ir"
)

var _ engine.TraceSink = (*Store)(nil)

// BeginSubscription inserts a subscription record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) BeginSubscription(ctx context.Context, sub engine.TraceSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, record_name, record_hash, started_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sub.ID, sub.RecordName, sub.RecordHash, sub.StartedSeq)
	if err != nil {
		return fmt.Errorf("begin subscription: %w", err)
	}
	return nil
}

// RecordEmission appends one emission to its subscription.
//
// The record is stored as canonical JSON; the invalid sentinel is flagged
// with invalid = 1 so readers can tell it apart from a real NO_DATA record.
// Writing the same (subscription, seq) twice is a no-op.
//
// Note: The subscription must exist (foreign key constraint).
func (s *Store) RecordEmission(ctx context.Context, em engine.TraceEmission) error {
	if em.Record == nil {
		return fmt.Errorf("record emission: nil record")
	}
	recordJSON, err := marshalRecord(em.Record)
	if err != nil {
		return fmt.Errorf("record emission: %w", err)
	}
	hash, err := ir.RecordHash(em.Record)
	if err != nil {
		return fmt.Errorf("record emission: %w", err)
	}
	id, err := ir.EmissionID(em.SubscriptionID, em.Seq, hash)
	if err != nil {
		return fmt.Errorf("record emission: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emissions (id, subscription_id, seq, invalid, record_hash, record)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, id, em.SubscriptionID, em.Seq, boolToInt(ir.IsInvalid(em.Record)), hash, recordJSON)
	if err != nil {
		return fmt.Errorf("record emission: %w", err)
	}
	return nil
}

// marshalRecord converts a record to canonical JSON TEXT for storage.
func marshalRecord(r *ir.Record) (string, error) {
	data, err := ir.MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
