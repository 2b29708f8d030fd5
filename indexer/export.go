package indexer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRecord struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest     string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Export writes every record matching q.Type after q.After to w as a snappy
// compressed parquet file. q.Limit caps the number of rows; zero exports
// everything. The number of rows written is returned.
func (ix *Index) Export(ctx context.Context, w io.Writer, q Query) (int, error) {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(parquetRecord), 1)
	if err != nil {
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	remaining := q.Limit
	cursor := q.After
	written := 0
	for {
		page := maxLimit
		if q.Limit > 0 && remaining < page {
			page = remaining
		}
		if page == 0 {
			break
		}
		records, err := ix.List(ctx, Query{Type: q.Type, After: cursor, Limit: page})
		if err != nil {
			pw.WriteStop()
			return written, err
		}
		for _, rec := range records {
			row := &parquetRecord{
				ID:         rec.ID.String(),
				Sequence:   int64(rec.Sequence),
				Type:       rec.Type,
				Attributes: rec.Attributes,
				Digest:     rec.Digest,
				CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
			cursor = rec.Sequence
		}
		if q.Limit > 0 {
			remaining -= len(records)
		}
		if len(records) < page {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	return written, nil
}
