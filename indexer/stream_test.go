package indexer

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"datamarket/core/types"
)

func recordN(t *testing.T, ix *Index, typ string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := ix.Record(context.Background(), &types.Event{
			Type:       typ,
			Attributes: map[string]string{"n": strconv.Itoa(i)},
		})
		require.NoError(t, err)
	}
}

func TestSubscribeReceivesNewRecords(t *testing.T) {
	ix := openTestIndex(t)
	recordN(t, ix, "market.dataset.registered", 1)

	feed, cancel := ix.Subscribe(4)
	defer cancel()
	recordN(t, ix, "market.dataset.purchased", 2)

	first := <-feed
	second := <-feed
	require.Equal(t, uint64(2), first.Sequence)
	require.Equal(t, uint64(3), second.Sequence)
	require.Equal(t, "market.dataset.purchased", second.Type)
}

func TestSubscribeDropsLaggingSubscriber(t *testing.T) {
	ix := openTestIndex(t)
	feed, cancel := ix.Subscribe(1)
	defer cancel()

	recordN(t, ix, "market.dataset.purchased", 3)

	rec, ok := <-feed
	require.True(t, ok)
	require.Equal(t, uint64(1), rec.Sequence)
	_, ok = <-feed
	require.False(t, ok, "lagging subscriber should be closed")
	require.Equal(t, 0, ix.live.count())
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	ix := openTestIndex(t)
	_, cancel := ix.Subscribe(0)
	require.Equal(t, 1, ix.live.count())
	cancel()
	cancel()
	require.Equal(t, 0, ix.live.count())
}

func TestExportParquet(t *testing.T) {
	ix := openTestIndex(t)
	recordN(t, ix, "market.dataset.registered", 2)
	recordN(t, ix, "market.dataset.purchased", 3)

	var buf bytes.Buffer
	n, err := ix.Export(context.Background(), &buf, Query{Type: "market.dataset.purchased"})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	data := buf.Bytes()
	require.Equal(t, "PAR1", string(data[:4]))
	require.Equal(t, "PAR1", string(data[len(data)-4:]))

	pf := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(pf, new(parquetRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(3), pr.GetNumRows())

	rows := make([]parquetRecord, 3)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, int64(3), rows[0].Sequence)
	require.Equal(t, int64(5), rows[2].Sequence)
	require.Equal(t, "market.dataset.purchased", rows[1].Type)
	require.JSONEq(t, `{"n":"1"}`, rows[1].Attributes)
}

func TestExportHonoursLimitAndCursor(t *testing.T) {
	ix := openTestIndex(t)
	recordN(t, ix, "market.dataset.purchased", 5)

	var buf bytes.Buffer
	n, err := ix.Export(context.Background(), &buf, Query{After: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
