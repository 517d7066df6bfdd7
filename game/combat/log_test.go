package combat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-companion/server/model"
	"github.com/jianghu-companion/server/testutil"
)

func newTestLogStore(t *testing.T, historyCap int) *LogStore {
	t.Helper()
	c, _ := testutil.SetupTestCache(t)
	return NewLogStore(c, historyCap)
}

func entry(id int64, msg string) *model.LogEntry {
	return &model.LogEntry{ID: id, Message: msg, Type: "info"}
}

func TestAppendGMKeepsOrder(t *testing.T) {
	ls := newTestLogStore(t, 10)
	ctx := context.Background()

	require.NoError(t, ls.AppendGM(ctx, "c1", entry(1, "first")))
	require.NoError(t, ls.AppendGM(ctx, "c1", entry(2, "second")))
	require.NoError(t, ls.AppendGM(ctx, "c1", entry(3, "third")))

	log, err := ls.GMLog(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "first", log[0].Message)
	assert.Equal(t, "third", log[2].Message)
}

func TestAppendGMDeduplicatesByID(t *testing.T) {
	ls := newTestLogStore(t, 10)
	ctx := context.Background()

	require.NoError(t, ls.AppendGM(ctx, "c1", entry(42, "once")))
	// The realtime echo of the same entry must not duplicate it.
	require.NoError(t, ls.AppendGM(ctx, "c1", entry(42, "echo")))

	log, err := ls.GMLog(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "once", log[0].Message)
}

func TestGMLogIsolatedPerCombat(t *testing.T) {
	ls := newTestLogStore(t, 10)
	ctx := context.Background()

	require.NoError(t, ls.AppendGM(ctx, "c1", entry(1, "mine")))

	log, err := ls.GMLog(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestClearGM(t *testing.T) {
	ls := newTestLogStore(t, 10)
	ctx := context.Background()

	require.NoError(t, ls.AppendGM(ctx, "c1", entry(1, "first")))
	require.NoError(t, ls.ClearGM(ctx, "c1"))

	log, err := ls.GMLog(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestHistoryMostRecentFirst(t *testing.T) {
	ls := newTestLogStore(t, 10)
	ctx := context.Background()

	require.NoError(t, ls.AppendHistory(ctx, 7, entry(1, "oldest")))
	require.NoError(t, ls.AppendHistory(ctx, 7, entry(2, "middle")))
	require.NoError(t, ls.AppendHistory(ctx, 7, entry(3, "newest")))

	hist, err := ls.History(ctx, 7)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "newest", hist[0].Message)
	assert.Equal(t, "oldest", hist[2].Message)
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	ls := newTestLogStore(t, 5)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		require.NoError(t, ls.AppendHistory(ctx, 7, entry(int64(i), fmt.Sprintf("roll-%d", i))))
	}

	hist, err := ls.History(ctx, 7)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	assert.Equal(t, "roll-8", hist[0].Message)
	assert.Equal(t, "roll-4", hist[4].Message)
}

func TestHistoryDeduplicatesByID(t *testing.T) {
	ls := newTestLogStore(t, 10)
	ctx := context.Background()

	require.NoError(t, ls.AppendHistory(ctx, 7, entry(9, "once")))
	require.NoError(t, ls.AppendHistory(ctx, 7, entry(9, "again")))

	hist, err := ls.History(ctx, 7)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestHistoryIsolatedPerCharacter(t *testing.T) {
	ls := newTestLogStore(t, 10)
	ctx := context.Background()

	require.NoError(t, ls.AppendHistory(ctx, 7, entry(1, "mine")))

	hist, err := ls.History(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, hist)
}
