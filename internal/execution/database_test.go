package execution

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/exec-engine/internal/database"
	"github.com/ksred/exec-engine/internal/splitter"
	"github.com/ksred/exec-engine/internal/types"
)

func newTestStore(t *testing.T) *Database {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return NewDatabase(db)
}

func TestDatabase_GroupRoundTrip(t *testing.T) {
	store := newTestStore(t)

	group := NewGroup("ACME", types.SideBuy, 300, 50_000, splitter.PolicyLiquidityAdaptive,
		[]splitter.ChildOrder{
			{Quantity: 150},
			{Quantity: 150, PriceOffsetRatio: 0.001, Delay: 30 * time.Second},
		})
	require.NoError(t, store.CreateGroup(group))

	loaded, err := store.GetGroup(group.GroupID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, group.GroupID, loaded.GroupID)
	assert.Equal(t, int64(300), loaded.TotalQuantity)
	require.Len(t, loaded.Entries, 2)
	assert.Equal(t, 30, loaded.Entries[1].DelaySeconds)
}

func TestDatabase_GetGroupNotFound(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.GetGroup("no-such-group")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDatabase_UpdateEntryPersistsTransition(t *testing.T) {
	store := newTestStore(t)

	group := NewGroup("ACME", types.SideBuy, 100, 50_000, splitter.PolicyImmediate,
		[]splitter.ChildOrder{{Quantity: 100}})
	require.NoError(t, store.CreateGroup(group))

	entry := &group.Entries[0]
	entry.Status = types.EntryFilled
	entry.FilledQuantity = 100
	entry.FilledPrice = 50_150
	entry.GatewayOrderID = "gw-1"
	require.NoError(t, store.UpdateEntry(entry))

	loaded, err := store.GetGroup(group.GroupID)
	require.NoError(t, err)
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, types.EntryFilled, loaded.Entries[0].Status)
	assert.Equal(t, int64(100), loaded.Entries[0].FilledQuantity)
	assert.Equal(t, "gw-1", loaded.Entries[0].GatewayOrderID)
}

func TestDatabase_IncompleteGroupsAndCloseOut(t *testing.T) {
	store := newTestStore(t)

	// One finished group, one cut off mid-schedule with a recorded fill.
	done := NewGroup("ACME", types.SideBuy, 100, 50_000, splitter.PolicyImmediate,
		[]splitter.ChildOrder{{Quantity: 100}})
	now := time.Now()
	done.CompletedAt = &now
	require.NoError(t, store.CreateGroup(done))

	open := NewGroup("GLOBEX", types.SideBuy, 200, 12_000, splitter.PolicyLiquidityAdaptive,
		[]splitter.ChildOrder{
			{Quantity: 100},
			{Quantity: 100, Delay: time.Minute},
		})
	open.Entries[0].Status = types.EntryFilled
	open.Entries[0].FilledQuantity = 100
	require.NoError(t, store.CreateGroup(open))

	incomplete, err := store.IncompleteGroups()
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, open.GroupID, incomplete[0].GroupID)

	require.NoError(t, store.CloseOutGroup(&incomplete[0]))

	closed, err := store.GetGroup(open.GroupID)
	require.NoError(t, err)
	require.NotNil(t, closed.CompletedAt)
	// The recorded fill stands; only the pending remainder is cancelled.
	assert.Equal(t, types.EntryFilled, closed.Entries[0].Status)
	assert.Equal(t, types.EntryCancelled, closed.Entries[1].Status)

	incomplete, err = store.IncompleteGroups()
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}
