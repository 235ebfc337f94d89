package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyneval/internal/engine"
	"github.com/roach88/dyneval/internal/ir"
)

func TestSequentialIDGenerator(t *testing.T) {
	g := NewSequentialIDGenerator("")

	assert.Equal(t, "sub-1", g.Generate())
	assert.Equal(t, "sub-2", g.Generate())

	g.Reset()
	assert.Equal(t, "sub-1", g.Generate())
}

func TestSequentialIDGenerator_ThreadSafe(t *testing.T) {
	g := NewSequentialIDGenerator("id")
	const numGoroutines = 50

	var wg sync.WaitGroup
	ids := make(chan string, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, numGoroutines)
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()

	require.NoError(t, s.BeginSubscription(ctx, engine.TraceSubscription{ID: "sub-1"}))
	require.NoError(t, s.RecordEmission(ctx, engine.TraceEmission{SubscriptionID: "sub-1", Seq: 2, Record: ir.InvalidRecord}))

	assert.Len(t, s.Subscriptions(), 1)
	require.Len(t, s.Emissions(), 1)
	assert.True(t, ir.IsInvalid(s.Emissions()[0].Record))

	boom := errors.New("disk full")
	s.FailWith(boom)
	assert.ErrorIs(t, s.RecordEmission(ctx, engine.TraceEmission{}), boom)
	assert.ErrorIs(t, s.BeginSubscription(ctx, engine.TraceSubscription{}), boom)
	assert.Len(t, s.Emissions(), 1)
}
