package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "data", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndListFills(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	require.NoError(t, j.RecordFill(ctx, Fill{RunID: "r1", CycleID: "c1", OrderID: 1, Direction: "buy", Qty: 10, Price: 5000}))
	require.NoError(t, j.RecordFill(ctx, Fill{RunID: "r1", CycleID: "c2", OrderID: 2, Direction: "sell", Qty: 10, Price: 5020}))
	require.NoError(t, j.RecordFill(ctx, Fill{RunID: "r2", CycleID: "c3", OrderID: 3, Direction: "buy", Qty: 1, Price: 1}))

	fills, err := j.Fills(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, int64(1), fills[0].OrderID)
	assert.Equal(t, "sell", fills[1].Direction)
	assert.False(t, fills[0].CreatedAt.IsZero())

	all, err := j.Fills(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCycleIDUnique(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	require.NoError(t, j.RecordCycle(ctx, Cycle{RunID: "r1", CycleID: "c1", Bid: 100, Ask: 110, Cash: -500, Position: 5, NAV: 50}))
	assert.Error(t, j.RecordCycle(ctx, Cycle{RunID: "r1", CycleID: "c1"}))

	cycles, err := j.Cycles(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, int64(-500), cycles[0].Cash)
}
