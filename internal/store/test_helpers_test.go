package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/dyneval/internal/engine"
	"github.com/roach88/dyneval/internal/ir"
)

// createTestStore creates a new temporary store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSubscription creates a subscription for a short text record.
func createTestSubscription(id, name string, seq int64) engine.TraceSubscription {
	return engine.TraceSubscription{
		ID:         id,
		RecordName: name,
		RecordHash: ir.MustRecordHash(&ir.Record{Kind: ir.KindShortText, ShortText: ir.PlainText(name)}),
		StartedSeq: seq,
	}
}

func shortText(s string) *ir.Record {
	return &ir.Record{Kind: ir.KindShortText, ShortText: ir.PlainText(s)}
}
