package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"redactor/internal/pii"
	"redactor/internal/pipeline"
)

var processedAt = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{Statistics: pipeline.Statistics{
		EntityCount:     3,
		CountsByType:    map[pii.EntityType]int{pii.TypeDate: 1, pii.TypeEmail: 2},
		EntityTypes:     []pii.EntityType{pii.TypeDate, pii.TypeEmail},
		OCRScore:        0.91,
		EnginesUsed:     []string{"tesseract", "google-vision"},
		DetectionMethod: pii.MethodFallback,
		TotalDuration:   1500 * time.Millisecond,
	}}
}

func TestNewRow(t *testing.T) {
	row := NewRow("scan.png", sampleResult(), "scan_masked.png", nil, processedAt)
	if row.Status != StatusRedacted || row.Entities != 3 {
		t.Errorf("row = %+v", row)
	}
	if row.Types != "date:1, email:2" {
		t.Errorf("Types = %q", row.Types)
	}
	if row.Engines != "tesseract, google-vision" || row.Method != "fallback" || row.Duration != 1.5 {
		t.Errorf("row = %+v", row)
	}
	if row.ProcessedAt != "2024-03-01 09:30:00" {
		t.Errorf("ProcessedAt = %q", row.ProcessedAt)
	}

	clean := NewRow("blank.png", &pipeline.Result{}, "", nil, processedAt)
	if clean.Status != StatusClean {
		t.Errorf("clean status = %q", clean.Status)
	}

	failed := NewRow("broken.png", nil, "", errors.New("could not read file as an image"), processedAt)
	if failed.Status != StatusFailed || failed.Error == "" {
		t.Errorf("failed row = %+v", failed)
	}
}

func TestWriteXLSX(t *testing.T) {
	rows := []Row{
		NewRow("scan.png", sampleResult(), "scan_masked.png", nil, processedAt),
		NewRow("broken.png", nil, "", errors.New("boom"), processedAt),
	}

	data, err := WriteXLSX(rows)
	if err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(got))
	}
	if strings.Join(got[0], "|") != strings.Join(Headers, "|") {
		t.Errorf("header = %v", got[0])
	}
	if got[1][0] != "scan.png" || got[1][1] != StatusRedacted || got[1][2] != "3" {
		t.Errorf("first row = %v", got[1])
	}
	if got[2][1] != StatusFailed || got[2][10] != "boom" {
		t.Errorf("failed row = %v", got[2])
	}
	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Errorf("sheets = %v", sheets)
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := ExtractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	if err != nil || id != "1AbC-d_9" {
		t.Errorf("ExtractSpreadsheetID() = %q, %v", id, err)
	}
	if _, err := ExtractSpreadsheetID("https://example.com/sheet"); !errors.Is(err, ErrInvalidSheetURL) {
		t.Errorf("error = %v, want ErrInvalidSheetURL", err)
	}
}

// fakeSheets serves the subset of the Sheets API used by SheetsWriter.
type fakeSheets struct {
	mu         sync.Mutex
	batchCalls int
	headerPuts int
	appended   [][]interface{}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		f.batchCalls++
		_, _ = w.Write([]byte(`{"replies":[{"addSheet":{"properties":{"sheetId":7,"title":"Redactions"}}}]}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var body sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.appended = append(f.appended, body.Values...)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		f.headerPuts++
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		_, _ = w.Write([]byte(`{"values":[]}`))
	case r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"sheetId":0,"title":"Sheet1"}}]}`))
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func TestSheetsWriterAppend(t *testing.T) {
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	service, err := sheets.NewService(ctx,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	writer := NewSheetsWriterWithService(service, "sheet123")

	rows := []Row{NewRow("scan.png", sampleResult(), "scan_masked.png", nil, processedAt)}
	if err := writer.Append(ctx, SheetName, rows); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// One call creates the sheet, one formats the new header row.
	if fake.batchCalls != 2 || fake.headerPuts != 1 {
		t.Errorf("batchUpdate calls = %d, header writes = %d", fake.batchCalls, fake.headerPuts)
	}
	if len(fake.appended) != 1 || fake.appended[0][0] != "scan.png" {
		t.Errorf("appended = %v", fake.appended)
	}
}
