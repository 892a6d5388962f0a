package queue

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/hibiken/asynq"

	"redactor/internal/jobs"
	"redactor/internal/mask"
	"redactor/internal/ocr"
	"redactor/internal/pii"
	"redactor/internal/pipeline"
	"redactor/internal/storage"
)

type stubEngine struct{ blocks []ocr.TextBlock }

func (stubEngine) Name() string { return ocr.EngineTesseract }

func (s stubEngine) Recognize(ctx context.Context, img image.Image) ([]ocr.TextBlock, error) {
	return s.blocks, nil
}

func setup(t *testing.T) (*Handler, *storage.LocalStore, *jobs.MemoryStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	jobStore := jobs.NewMemoryStore()

	engine := stubEngine{blocks: []ocr.TextBlock{
		{X: 10, Y: 10, Width: 120, Height: 20, Text: "ABCDE1234F", Confidence: 0.9},
	}}
	p := pipeline.New(
		ocr.NewExtractor(ocr.NewRegistryWithEngines(engine), ocr.NewFuser(ocr.DefaultFusionConfig())),
		pii.NewDetector(pii.DefaultLibrary(), nil, pii.DefaultConfig()),
		mask.NewMasker(color.RGBA{}),
		pipeline.Options{},
	)
	return NewHandler(p, store, jobStore), store, jobStore
}

func task(t *testing.T, p Payload) *asynq.Task {
	t.Helper()
	tk, err := NewRedactTask(p)
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

func TestHandleRedactCompletesJob(t *testing.T) {
	ctx := context.Background()
	h, store, jobStore := setup(t)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 200, 60))); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "1_pan.png", buf.Bytes(), "image/png"); err != nil {
		t.Fatal(err)
	}
	job, _ := jobStore.Create(ctx, "pan.png", "1_pan.png")

	if err := h.HandleRedact(ctx, task(t, Payload{JobID: job.ID, Object: "1_pan.png"})); err != nil {
		t.Fatalf("HandleRedact() error = %v", err)
	}

	got, _ := jobStore.Get(ctx, job.ID)
	if got.Status != jobs.StatusCompleted || got.EntityCount != 1 || got.MaskedName != "1_pan_masked.png" {
		t.Errorf("job = %+v", got)
	}
	if _, err := store.Get(ctx, "1_pan_masked.png"); err != nil {
		t.Errorf("masked file not stored: %v", err)
	}
}

func TestHandleRedactSkipsRetryForBadInput(t *testing.T) {
	ctx := context.Background()
	h, store, jobStore := setup(t)

	if err := store.Put(ctx, "1_notes.png", []byte("not an image"), "image/png"); err != nil {
		t.Fatal(err)
	}
	job, _ := jobStore.Create(ctx, "notes.png", "1_notes.png")

	err := h.HandleRedact(ctx, task(t, Payload{JobID: job.ID, Object: "1_notes.png"}))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("HandleRedact() error = %v, want SkipRetry", err)
	}
	if got, _ := jobStore.Get(ctx, job.ID); got.Status != jobs.StatusFailed || got.Error == "" {
		t.Errorf("job = %+v, want failed with a reason", got)
	}

	missing, _ := jobStore.Create(ctx, "gone.png", "1_gone.png")
	if err := h.HandleRedact(ctx, task(t, Payload{JobID: missing.ID, Object: "1_gone.png"})); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("HandleRedact(missing object) error = %v, want SkipRetry", err)
	}

	if err := h.HandleRedact(ctx, asynq.NewTask(TypeRedactImage, []byte("{"))); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("HandleRedact(bad payload) error = %v, want SkipRetry", err)
	}
}
