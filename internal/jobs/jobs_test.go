package jobs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	job, err := store.Create(ctx, "card.png", "1700000000_card.png")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.Status != StatusQueued || job.ID == uuid.Nil {
		t.Fatalf("Create() = %+v", job)
	}

	if err := store.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	err = store.Complete(ctx, job.ID, Outcome{
		EntityCount: 3,
		Method:      "fallback",
		Engines:     []string{"tesseract"},
		OCRScore:    0.72,
		Duration:    1500 * time.Millisecond,
		MaskedName:  "1700000000_card_masked.png",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCompleted || got.EntityCount != 3 || got.DurationMS != 1500 ||
		len(got.Engines) != 1 || got.MaskedName != "1700000000_card_masked.png" {
		t.Errorf("Get() = %+v", got)
	}

	if err := store.Fail(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if got, _ := store.Get(ctx, job.ID); got.Status != StatusFailed || got.Error != "boom" {
		t.Errorf("after Fail() = %+v", got)
	}

	missing := uuid.New()
	if _, err := store.Get(ctx, missing); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrJobNotFound", err)
	}
	if err := store.MarkProcessing(ctx, missing); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("MarkProcessing(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := OpenPostgres(context.Background(), url)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)
}
