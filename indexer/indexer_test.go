package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"datamarket/core/events"
	"datamarket/core/types"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestRecordAndList(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	ix.Emit(events.Wrap(&types.Event{Type: "market.dataset.registered", Attributes: map[string]string{"datasetId": "1"}}))
	ix.Emit(events.Wrap(&types.Event{Type: "market.dataset.purchased", Attributes: map[string]string{"datasetId": "1", "tokenId": "1"}}))
	ix.Emit(events.Wrap(&types.Event{Type: "market.dataset.purchased", Attributes: map[string]string{"datasetId": "1", "tokenId": "2"}}))

	all, err := ix.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, rec := range all {
		require.Equal(t, uint64(i+1), rec.Sequence)
		require.NoError(t, ix.Verify(rec))
	}

	purchases, err := ix.List(ctx, Query{Type: "market.dataset.purchased"})
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	evt, err := purchases[1].Event()
	require.NoError(t, err)
	require.Equal(t, "2", evt.Attributes["tokenId"])

	page, err := ix.List(ctx, Query{After: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint64(2), page[0].Sequence)

	got, err := ix.Get(ctx, all[0].ID)
	require.NoError(t, err)
	require.Equal(t, all[0].Digest, got.Digest)
}

func TestDigestIgnoresAttributeOrder(t *testing.T) {
	a := &types.Event{Type: "x", Attributes: map[string]string{"a": "1", "b": "2"}}
	b := &types.Event{Type: "x", Attributes: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, Digest(a), Digest(b))
	c := &types.Event{Type: "x", Attributes: map[string]string{"a": "1", "b": "3"}}
	require.NotEqual(t, Digest(a), Digest(c))
}

func TestVerifyDetectsTampering(t *testing.T) {
	ix := openTestIndex(t)
	rec, err := ix.Record(context.Background(), &types.Event{Type: "market.fee.updated", Attributes: map[string]string{"feePct": "5"}})
	require.NoError(t, err)
	rec.Attributes = `{"feePct":"50"}`
	require.ErrorIs(t, ix.Verify(*rec), ErrDigestMismatch)
}

func TestRecordRejectsUntypedEvents(t *testing.T) {
	ix := openTestIndex(t)
	_, err := ix.Record(context.Background(), &types.Event{})
	require.Error(t, err)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	ix, err := Open(path, nil)
	require.NoError(t, err)
	_, err = ix.Record(ctx, &types.Event{Type: "market.pause.changed", Attributes: map[string]string{"paused": "true"}})
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	rec, err := reopened.Record(ctx, &types.Event{Type: "market.pause.changed", Attributes: map[string]string{"paused": "false"}})
	require.NoError(t, err)
	require.Equal(t, uint64(2), rec.Sequence)

	_, err = reopened.Get(ctx, uuid.Nil)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDriverSelection(t *testing.T) {
	require.Equal(t, DriverPostgres, Driver("postgres://market@db:5432/events"))
	require.Equal(t, DriverPostgres, Driver(" postgresql://market@db/events"))
	require.Equal(t, DriverSQLite, Driver(""))
	require.Equal(t, DriverSQLite, Driver("/var/lib/market/events.db"))
}
