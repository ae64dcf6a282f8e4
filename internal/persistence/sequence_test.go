package persistence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwapLedger/internal/persistence"
)

func TestTxSequence_InOrder(t *testing.T) {
	seq := persistence.NewTxSequence(0)
	assert.Equal(t, uint64(3), seq.Commit([]uint64{1, 2, 3}))
	assert.Equal(t, 0, seq.Ahead())
	assert.Equal(t, int64(0), seq.OutOfOrder())
}

func TestTxSequence_HoldsAheadOfGap(t *testing.T) {
	seq := persistence.NewTxSequence(10)

	assert.Equal(t, uint64(10), seq.Peek([]uint64{12, 13}))
	assert.Equal(t, uint64(10), seq.Commit([]uint64{12, 13}))
	assert.Equal(t, 2, seq.Ahead())

	// The missing id closes the gap and releases the held ones.
	assert.Equal(t, uint64(13), seq.Peek([]uint64{11}))
	assert.Equal(t, uint64(10), seq.Contiguous(), "peek must not record")
	assert.Equal(t, uint64(13), seq.Commit([]uint64{11}))
	assert.Equal(t, 0, seq.Ahead())
	assert.Equal(t, int64(2), seq.OutOfOrder())
}

func TestTxSequence_IgnoresReplays(t *testing.T) {
	seq := persistence.NewTxSequence(5)
	require.Equal(t, uint64(5), seq.Commit([]uint64{3, 4, 5}))
	assert.Equal(t, 0, seq.Ahead())

	seq.Reset(20)
	assert.Equal(t, uint64(21), seq.Commit([]uint64{21}))
}

func TestTxSequence_RewrittenAheadCountedOnce(t *testing.T) {
	seq := persistence.NewTxSequence(0)
	seq.Commit([]uint64{3})
	seq.Commit([]uint64{3, 4})
	assert.Equal(t, 2, seq.Ahead())
	assert.Equal(t, int64(2), seq.OutOfOrder())

	assert.Equal(t, uint64(4), seq.Commit([]uint64{1, 2}))
}
