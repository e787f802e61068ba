package indexer

import (
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Height     int64  `parquet:"name=height, type=INT64"`
	Seq        int32  `parquet:"name=seq, type=INT32"`
	TxHash     string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	LockboxID  string `parquet:"name=lockbox_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RequestID  string `parquet:"name=request_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Node       string `parquet:"name=node, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every event matching filter to path, paging through
// the table so large histories do not load at once. Filter.Limit is ignored.
// It returns the number of rows written.
func (i *Indexer) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	if i == nil || i.db == nil {
		return 0, errNilDB
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	var lastID uint64
	for {
		var page []EventRecord
		q := i.scope(ctx, Filter{
			Type:       filter.Type,
			LockboxID:  filter.LockboxID,
			RequestID:  filter.RequestID,
			Node:       filter.Node,
			FromHeight: filter.FromHeight,
			ToHeight:   filter.ToHeight,
			Limit:      maxQueryLimit,
		}).Where("id > ?", lastID)
		if err := q.Find(&page).Error; err != nil {
			pw.WriteStop()
			file.Close()
			return written, fmt.Errorf("indexer: export query: %w", err)
		}
		for _, rec := range page {
			row := &parquetRow{
				Height:     int64(rec.Height),
				Seq:        int32(rec.Seq),
				TxHash:     rec.TxHash,
				Type:       rec.Type,
				LockboxID:  rec.LockboxID,
				RequestID:  rec.RequestID,
				Node:       rec.Node,
				Attributes: rec.Attributes,
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
			if rec.ID > lastID {
				lastID = rec.ID
			}
		}
		if len(page) < maxQueryLimit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}
