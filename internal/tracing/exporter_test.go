package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func readRecords(t *testing.T, path string) []SpanRecord {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []SpanRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec SpanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "each line is a JSON object")
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestNewFileExporter_CreatesParentDirectories(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "nested", "dir", "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	_, err = os.Stat(tracePath)
	require.NoError(t, err, "trace file should be created with parent dirs")
	require.NoError(t, exporter.Shutdown(context.Background()))
	require.NoError(t, exporter.Shutdown(context.Background()), "shutdown is idempotent")
}

func TestFileExporter_LiftsDomainAttributes(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	stub := tracetest.SpanStub{
		Name:      SpanFeed,
		StartTime: time.Now(),
		EndTime:   time.Now().Add(100 * time.Millisecond),
		Status:    sdktrace.Status{Code: codes.Error, Description: "feed unavailable"},
		Attributes: []attribute.KeyValue{
			attribute.String(AttrRequestID, "req-1"),
			attribute.String(AttrPackage, "npm:left-pad@1.3.0"),
			attribute.String(AttrFeedName, "npm:public"),
			attribute.Int(AttrDBVersion, 7),
		},
		Events: []sdktrace.Event{{Name: EventMismatch, Time: time.Now()}},
	}
	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
	require.NoError(t, exporter.Shutdown(context.Background()))

	records := readRecords(t, tracePath)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, SpanFeed, rec.Name)
	require.Equal(t, "ERROR", rec.Status)
	require.Equal(t, "feed unavailable", rec.StatusMsg)
	require.Equal(t, "req-1", rec.RequestID)
	require.Equal(t, "npm:left-pad@1.3.0", rec.Package)
	require.Equal(t, "npm:public", rec.Feed)
	require.EqualValues(t, 7, rec.Attributes[AttrDBVersion])
	require.NotContains(t, rec.Attributes, AttrPackage)
	require.Equal(t, []string{EventMismatch}, rec.Events)
	require.Greater(t, rec.DurationMs, 0.0)
}

func TestFileExporter_AppendsAndIsThreadSafe(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	require.NoError(t, os.WriteFile(tracePath, []byte(`{"name":"existing"}`+"\n"), 0600))

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				stub := tracetest.SpanStub{
					Name:       SpanEnsure,
					StartTime:  time.Now(),
					EndTime:    time.Now().Add(time.Millisecond),
					Attributes: []attribute.KeyValue{attribute.Int("worker", worker)},
				}
				require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, exporter.Shutdown(context.Background()))

	records := readRecords(t, tracePath)
	require.Len(t, records, 1+8*25)
	require.Equal(t, "existing", records[0].Name)

	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{tracetest.SpanStub{Name: "late"}.Snapshot()})
	require.Error(t, err, "exporting after shutdown fails")
}
