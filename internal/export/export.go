// Package export writes query results to the object store as CSV or
// Parquet archives.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querybuddy/querybuddy/internal/observability"
	"github.com/querybuddy/querybuddy/internal/storage"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

type Input struct {
	ConversationID string
	SQL            string
	Columns        []string
	Rows           [][]any
	Format         string
}

type Exporter struct {
	store storage.ObjectStore
	now   func() time.Time
}

func NewExporter(store storage.ObjectStore) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// Export encodes the rows and uploads the archive, returning the stored
// object metadata.
func (e *Exporter) Export(ctx context.Context, in Input) (storage.ObjectInfo, error) {
	if len(in.Columns) == 0 {
		return storage.ObjectInfo{}, fmt.Errorf("columns are required")
	}

	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" {
		format = FormatCSV
	}

	var data []byte
	var contentType string
	var err error
	switch format {
	case FormatCSV:
		data, err = EncodeCSV(in.Columns, in.Rows)
		contentType = "text/csv"
	case FormatParquet:
		data, err = EncodeParquet(in.Columns, in.Rows)
		contentType = "application/octet-stream"
	default:
		return storage.ObjectInfo{}, fmt.Errorf("unsupported export format %q", in.Format)
	}
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	info, err := e.store.Put(ctx, e.objectKey(in.ConversationID, format), bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	observability.ObserveExport(format)
	return info, nil
}

func (e *Exporter) objectKey(conversationID, format string) string {
	scope := strings.TrimSpace(conversationID)
	if scope == "" {
		scope = "adhoc"
	}
	stamp := e.now().UTC().Format("20060102T150405.000000000")
	return fmt.Sprintf("exports/%s/%s.%s", scope, stamp, format)
}

// EncodeCSV renders a header row followed by stringified values.
func EncodeCSV(columns []string, rows [][]any) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buf)

	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, value := range row {
			if value == nil {
				continue
			}
			record[i] = fmt.Sprintf("%v", value)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

type parquetRow struct {
	RowIndex    int64  `parquet:"row_index"`
	PayloadJSON string `parquet:"payload_json"`
}

// EncodeParquet stores each row as a JSON object keyed by column name.
// Result shapes vary per query, so the payload column carries the
// structure instead of a per-query parquet schema.
func EncodeParquet(columns []string, rows [][]any) ([]byte, error) {
	records := make([]parquetRow, 0, len(rows))
	for i, row := range rows {
		payload := make(map[string]any, len(columns))
		for j, column := range columns {
			if j < len(row) {
				payload[column] = row[j]
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal row %d: %w", i, err)
		}
		records = append(records, parquetRow{RowIndex: int64(i), PayloadJSON: string(encoded)})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
