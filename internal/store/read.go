package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Subscription is a stored subscription row.
type Subscription struct {
	ID         string `json:"id"`
	RecordName string `json:"record_name"`
	RecordHash string `json:"record_hash"`
	StartedSeq int64  `json:"started_seq"`
}

// Emission is a stored emission row. Record holds the canonical JSON.
type Emission struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	Seq            int64  `json:"seq"`
	Invalid        bool   `json:"invalid"`
	RecordHash     string `json:"record_hash"`
	Record         string `json:"record"`
}

// ListSubscriptions returns every subscription ordered by start.
//
// Returns an empty slice (not nil) if the log is empty.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_name, record_hash, started_seq
		FROM subscriptions
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []Subscription{}
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.RecordName, &sub.RecordHash, &sub.StartedSeq); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// ReadSubscription retrieves a single subscription by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSubscription(ctx context.Context, id string) (Subscription, error) {
	var sub Subscription
	err := s.db.QueryRowContext(ctx, `
		SELECT id, record_name, record_hash, started_seq
		FROM subscriptions
		WHERE id = ?
	`, id).Scan(&sub.ID, &sub.RecordName, &sub.RecordHash, &sub.StartedSeq)
	if err != nil {
		if err == sql.ErrNoRows {
			return Subscription{}, err
		}
		return Subscription{}, fmt.Errorf("read subscription: %w", err)
	}
	return sub, nil
}

// ReadEmissions returns the emissions of one subscription in seq order.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadEmissions(ctx context.Context, subscriptionID string) ([]Emission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, seq, invalid, record_hash, record
		FROM emissions
		WHERE subscription_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("query emissions: %w", err)
	}
	defer rows.Close()

	ems := []Emission{}
	for rows.Next() {
		var em Emission
		var invalid int
		if err := rows.Scan(&em.ID, &em.SubscriptionID, &em.Seq, &invalid, &em.RecordHash, &em.Record); err != nil {
			return nil, fmt.Errorf("scan emission: %w", err)
		}
		em.Invalid = invalid == 1
		ems = append(ems, em)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emissions: %w", err)
	}
	return ems, nil
}

// LastSeq returns the highest sequence number in the log, or 0 when empty.
// Used to resume the engine clock across runs.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(seq) FROM emissions), 0),
			COALESCE((SELECT MAX(started_seq) FROM subscriptions), 0)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
