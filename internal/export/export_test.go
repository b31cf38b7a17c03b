package export

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querybuddy/querybuddy/internal/storage"
)

type fakeStore struct {
	lastKey         string
	lastContentType string
	lastBody        []byte
	putErr          error
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if f.putErr != nil {
		return storage.ObjectInfo{}, f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.lastKey = key
	f.lastContentType = opts.ContentType
	f.lastBody = data
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (f *fakeStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func (f *fakeStore) Delete(context.Context, string) error { return nil }

func TestExportCSVKeyAndContent(t *testing.T) {
	store := &fakeStore{}
	exporter := NewExporter(store)
	exporter.now = func() time.Time {
		return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	}

	info, err := exporter.Export(context.Background(), Input{
		ConversationID: "conv-1",
		Columns:        []string{"id", "name"},
		Rows:           [][]any{{int64(1), "alice"}, {int64(2), nil}},
		Format:         FormatCSV,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasPrefix(info.Key, "exports/conv-1/20260830T100000") || !strings.HasSuffix(info.Key, ".csv") {
		t.Fatalf("key = %q", info.Key)
	}
	if store.lastContentType != "text/csv" {
		t.Fatalf("content type = %q", store.lastContentType)
	}
	body := string(store.lastBody)
	if !strings.HasPrefix(body, "id,name\n") || !strings.Contains(body, "1,alice\n") || !strings.Contains(body, "2,\n") {
		t.Fatalf("csv body:\n%s", body)
	}
}

func TestExportParquetRoundTrips(t *testing.T) {
	store := &fakeStore{}
	exporter := NewExporter(store)

	_, err := exporter.Export(context.Background(), Input{
		Columns: []string{"name", "total"},
		Rows:    [][]any{{"alice", 10}, {"bob", 20}},
		Format:  FormatParquet,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasPrefix(store.lastKey, "exports/adhoc/") {
		t.Fatalf("key = %q", store.lastKey)
	}

	rows, err := parquet.Read[parquetRow](bytes.NewReader(store.lastBody), int64(len(store.lastBody)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].RowIndex != 0 || !strings.Contains(rows[0].PayloadJSON, `"name":"alice"`) {
		t.Fatalf("row 0 = %#v", rows[0])
	}
}

func TestExportDefaultsToCSV(t *testing.T) {
	store := &fakeStore{}
	exporter := NewExporter(store)
	if _, err := exporter.Export(context.Background(), Input{Columns: []string{"a"}}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasSuffix(store.lastKey, ".csv") {
		t.Fatalf("key = %q", store.lastKey)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	exporter := NewExporter(&fakeStore{})
	if _, err := exporter.Export(context.Background(), Input{Columns: []string{"a"}, Format: "xlsx"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestExportRequiresColumns(t *testing.T) {
	exporter := NewExporter(&fakeStore{})
	if _, err := exporter.Export(context.Background(), Input{Format: FormatCSV}); err == nil {
		t.Fatal("expected error for missing columns")
	}
}
