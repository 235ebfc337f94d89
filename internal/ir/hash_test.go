package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHash_StableAndStructural(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()

	ha, err := RecordHash(a)
	require.NoError(t, err)
	hb, err := RecordHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64, "hex encoded SHA-256")
}

func TestRecordHash_DiffersOnContent(t *testing.T) {
	a := sampleRecord()
	b := a.WithRangedValue(2)
	assert.NotEqual(t, MustRecordHash(a), MustRecordHash(b))
}

func TestRecordHash_DomainSeparated(t *testing.T) {
	rec := &Record{Kind: KindEmpty}
	canonical, err := MarshalCanonical(rec)
	require.NoError(t, err)
	assert.NotEqual(t, hashWithDomain(DomainEmission, canonical), MustRecordHash(rec))
}

func TestEmissionID(t *testing.T) {
	h := MustRecordHash(&Record{Kind: KindEmpty})
	id1, err := EmissionID("sub-1", 1, h)
	require.NoError(t, err)
	id2, err := EmissionID("sub-1", 2, h)
	require.NoError(t, err)
	id1again, err := EmissionID("sub-1", 1, h)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, id1again)
}
