package ocr

import (
	"context"
	"errors"
	"image"
	"testing"
)

type fakeEngine struct {
	name   string
	blocks []TextBlock
	err    error
	panics bool
	calls  int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) ([]TextBlock, error) {
	f.calls++
	if f.panics {
		panic("native library crashed")
	}
	return f.blocks, f.err
}

func blankImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 200, 100))
}

func TestExtractAbsorbsEngineFailures(t *testing.T) {
	good := &fakeEngine{name: EngineTesseract, blocks: []TextBlock{
		{X: 10, Y: 10, Width: 50, Height: 10, Text: "Name: Asha Rao", Confidence: 0.9},
	}}
	failing := &fakeEngine{name: EngineGoogleVision, err: errors.New("PERMISSION_DENIED")}
	panicking := &fakeEngine{name: EngineDocumentAI, panics: true}

	extractor := NewExtractor(NewRegistryWithEngines(panicking, failing, good), NewFuser(DefaultFusionConfig()))
	result := extractor.Extract(context.Background(), blankImage())

	if !result.Success || len(result.Blocks) != 1 {
		t.Fatalf("result = %+v, want one block", result)
	}
	if result.Blocks[0].SourceEngine != EngineTesseract {
		t.Errorf("SourceEngine = %q, want stamped engine name", result.Blocks[0].SourceEngine)
	}
	if len(result.EngineErrors) != 2 {
		t.Errorf("EngineErrors = %v, want entries for the failing and panicking engines", result.EngineErrors)
	}
	if _, ok := result.EngineErrors[EngineDocumentAI]; !ok {
		t.Errorf("panic not recorded: %v", result.EngineErrors)
	}
	for _, e := range []*fakeEngine{good, failing, panicking} {
		if e.calls != 1 {
			t.Errorf("%s called %d times, want 1", e.name, e.calls)
		}
	}
}

func TestExtractNoTextIsUnsuccessful(t *testing.T) {
	extractor := NewExtractor(
		NewRegistryWithEngines(&fakeEngine{name: EngineTesseract}),
		NewFuser(DefaultFusionConfig()),
	)
	result := extractor.Extract(context.Background(), blankImage())
	if result.Success || result.QualityScore != 0 || len(result.Blocks) != 0 {
		t.Errorf("result = %+v, want empty unsuccessful result", result)
	}
}

func TestExtractNormalizesBlocks(t *testing.T) {
	engine := &fakeEngine{name: EngineOpenAIVision, blocks: []TextBlock{
		{X: 5, Y: 5, Width: -4, Height: 8, Text: "PAN", Confidence: 1.7},
		{X: 50, Y: 50, Width: 4, Height: 4, Text: " ", Confidence: 0.9},
	}}
	extractor := NewExtractor(NewRegistryWithEngines(engine), NewFuser(DefaultFusionConfig()))
	result := extractor.Extract(context.Background(), blankImage())

	if len(result.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(result.Blocks))
	}
	b := result.Blocks[0]
	if b.Width != 0 || b.Confidence != 1 {
		t.Errorf("block = %+v, want width clamped to 0 and confidence to 1", b)
	}
}

func TestRegistryRecordsUnavailableEngines(t *testing.T) {
	specs := []EngineSpec{
		{Name: EngineDocumentAI, Enabled: false},
		{Name: EngineGoogleVision, Enabled: true, New: func(ctx context.Context) (Engine, error) {
			return nil, NewOCRError("NewGoogleVisionEngine", ErrMissingCredentials, "no credentials found in environment")
		}},
		{Name: EngineTesseract, Enabled: true, New: func(ctx context.Context) (Engine, error) {
			panic("cgo init failed")
		}},
		{Name: EngineOpenAIVision, Enabled: true, New: func(ctx context.Context) (Engine, error) {
			return &fakeEngine{name: EngineOpenAIVision}, nil
		}},
	}

	registry := NewRegistry(context.Background(), specs)
	if registry.Available() != 1 {
		t.Fatalf("Available() = %d, want 1", registry.Available())
	}
	if _, ok := registry.Get(EngineGoogleVision); ok {
		t.Error("Get(google-vision) found an engine that failed to initialize")
	}
	if _, ok := registry.Get(EngineOpenAIVision); !ok {
		t.Error("Get(openai-vision) missing")
	}

	statuses := registry.Statuses()
	if len(statuses) != 4 {
		t.Fatalf("len(Statuses()) = %d, want 4", len(statuses))
	}
	for _, s := range statuses[:3] {
		if s.Available || s.Error == "" {
			t.Errorf("status %+v, want unavailable with error", s)
		}
	}
	if !statuses[3].Available {
		t.Errorf("status %+v, want available", statuses[3])
	}
	if err := registry.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestTesseractStubUnavailable(t *testing.T) {
	if _, err := NewTesseractEngine("eng"); err == nil {
		t.Skip("built with the tesseract tag")
	} else if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("NewTesseractEngine() error = %v, want ErrEngineUnavailable", err)
	}
}
