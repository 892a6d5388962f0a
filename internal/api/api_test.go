package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"redactor/internal/jobs"
	"redactor/internal/mask"
	"redactor/internal/ocr"
	"redactor/internal/pii"
	"redactor/internal/pipeline"
	"redactor/internal/queue"
	"redactor/internal/storage"
)

type stubEngine struct {
	blocks []ocr.TextBlock
}

func (s stubEngine) Name() string { return ocr.EngineTesseract }

func (s stubEngine) Recognize(ctx context.Context, img image.Image) ([]ocr.TextBlock, error) {
	return s.blocks, nil
}

type fakeQueue struct {
	payloads []queue.Payload
	err      error
}

func (f *fakeQueue) Enqueue(ctx context.Context, payload queue.Payload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return "task-1", nil
}

func (f *fakeQueue) Ping() error { return f.err }

func whitePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 120))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	engine := stubEngine{blocks: []ocr.TextBlock{
		{X: 10, Y: 10, Width: 200, Height: 20, Text: "jane@example.com", Confidence: 0.95},
	}}
	extractor := ocr.NewExtractor(ocr.NewRegistryWithEngines(engine), ocr.NewFuser(ocr.DefaultFusionConfig()))
	detector := pii.NewDetector(pii.DefaultLibrary(), nil, pii.DefaultConfig())
	opts.Pipeline = pipeline.New(extractor, detector, mask.NewMasker(color.RGBA{}), pipeline.Options{Preview: true, Comparison: true})

	if opts.Store == nil {
		store, err := storage.NewLocalStore(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		opts.Store = store
	}
	return NewServer(opts)
}

func uploadRequest(t *testing.T, path, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := serve(s, uploadRequest(t, "/upload-image", "card.png", whitePNG(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ProcessImageResponse
	decode(t, rec, &resp)
	if !resp.Success || len(resp.DetectedEntities) != 1 || resp.DetectedEntities[0].Type != pii.TypeEmail {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.HasPrefix(resp.FilePath, "/uploads/") || !strings.HasSuffix(resp.MaskedImagePath, "_masked.png") {
		t.Errorf("paths = %q, %q", resp.FilePath, resp.MaskedImagePath)
	}
	if resp.PreviewImagePath == "" || resp.ComparisonImagePath == "" {
		t.Errorf("preview and comparison paths missing: %+v", resp)
	}
	if resp.Statistics.EntityCount != 1 {
		t.Errorf("statistics = %+v", resp.Statistics)
	}

	file := serve(s, httptest.NewRequest(http.MethodGet, resp.MaskedImagePath, nil))
	if file.Code != http.StatusOK || file.Header().Get("Content-Type") != "image/png" {
		t.Errorf("GET masked: status %d, type %q", file.Code, file.Header().Get("Content-Type"))
	}
}

func TestUploadImageRejectsBadInput(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name     string
		fileName string
		data     []byte
		wantErr  string
	}{
		{"not an image type", "notes.txt", []byte("hello"), "file must be an image"},
		{"undecodable", "scan.png", []byte("not really a png"), "could not read file as an image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, uploadRequest(t, "/upload-image", tt.fileName, tt.data))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body map[string]any
			decode(t, rec, &body)
			if body["error"] != tt.wantErr {
				t.Errorf("error = %v, want %q", body["error"], tt.wantErr)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/upload-image", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	if rec := serve(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: status = %d, want 400", rec.Code)
	}
}

func TestUploadImageTooLarge(t *testing.T) {
	s := newTestServer(t, Options{MaxUploadBytes: 64})

	rec := serve(s, uploadRequest(t, "/upload-image", "card.png", whitePNG(t)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestPreviewDetection(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := serve(s, uploadRequest(t, "/preview-detection", "card.png", whitePNG(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ProcessImageResponse
	decode(t, rec, &resp)
	if resp.MaskedImagePath != "" || !strings.HasSuffix(resp.PreviewImagePath, "_preview.png") {
		t.Errorf("response = %+v", resp)
	}
}

func TestServeFile(t *testing.T) {
	s := newTestServer(t, Options{})

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("missing file: status = %d, want 404", rec.Code)
	}
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/uploads/..hidden", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid name: status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{Version: "test", Queue: &fakeQueue{err: errors.New("connection refused")}})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "healthy" || resp.Version != "test" {
		t.Errorf("status = %q, version = %q", resp.Status, resp.Version)
	}
	if !resp.Engines[ocr.EngineTesseract].Available {
		t.Errorf("engines = %+v", resp.Engines)
	}
	if resp.Recognizer != "patterns only" || resp.Storage.Backend != "local" {
		t.Errorf("recognizer = %q, storage = %+v", resp.Recognizer, resp.Storage)
	}
	if !resp.Queue.Configured || resp.Queue.Available || resp.Database.Configured {
		t.Errorf("queue = %+v, database = %+v", resp.Queue, resp.Database)
	}
}

func TestStatisticsAndCleanup(t *testing.T) {
	s := newTestServer(t, Options{})
	if rec := serve(s, uploadRequest(t, "/upload-image", "card.png", whitePNG(t))); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	var stats storage.Stats
	decode(t, rec, &stats)
	if stats.TotalFiles != 4 || stats.ByKind[storage.KindMasked] != 1 {
		t.Errorf("stats = %+v, want original plus three outputs", stats)
	}

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/cleanup", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rec.Code)
	}
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	stats = storage.Stats{}
	decode(t, rec, &stats)
	if stats.TotalFiles != 0 {
		t.Errorf("after cleanup TotalFiles = %d", stats.TotalFiles)
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, Options{JWTSecret: "secret"})

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health without token: status = %d, want 200", rec.Code)
	}
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/statistics", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	forged, err := IssueToken("other", "tester", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	if rec := serve(s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want 401", rec.Code)
	}

	expired, err := IssueToken("secret", "tester", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := serve(s, req)
	var body map[string]any
	decode(t, rec, &body)
	if rec.Code != http.StatusUnauthorized || body["error"] != "token expired" {
		t.Errorf("expired token: status = %d, body = %v", rec.Code, body)
	}

	valid, err := IssueToken("secret", "tester", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	if rec := serve(s, req); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}
}

func TestJobs(t *testing.T) {
	q := &fakeQueue{}
	store := jobs.NewMemoryStore()
	s := newTestServer(t, Options{Jobs: store, Queue: q})

	rec := serve(s, uploadRequest(t, "/api/jobs", "card.png", whitePNG(t)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created JobResponse
	decode(t, rec, &created)
	if created.Status != jobs.StatusQueued || created.TaskID != "task-1" {
		t.Errorf("response = %+v", created)
	}
	if len(q.payloads) != 1 || q.payloads[0].Object != created.Object {
		t.Fatalf("payloads = %+v", q.payloads)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.JobID, nil))
	var job jobs.Job
	decode(t, rec, &job)
	if rec.Code != http.StatusOK || job.FileName != "card.png" {
		t.Errorf("GET job: status = %d, job = %+v", rec.Code, job)
	}

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/00000000-0000-0000-0000-000000000001", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestJobsNotConfigured(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := serve(s, uploadRequest(t, "/api/jobs", "card.png", whitePNG(t)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
