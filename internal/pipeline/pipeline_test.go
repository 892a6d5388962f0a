package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"redactor/internal/imageio"
	"redactor/internal/mask"
	"redactor/internal/ocr"
	"redactor/internal/pii"
)

type stubEngine struct {
	name   string
	blocks []ocr.TextBlock
	err    error
}

func (s stubEngine) Name() string { return s.name }

func (s stubEngine) Recognize(ctx context.Context, img image.Image) ([]ocr.TextBlock, error) {
	return s.blocks, s.err
}

func whitePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newPipeline(options Options, engines ...ocr.Engine) *Pipeline {
	extractor := ocr.NewExtractor(ocr.NewRegistryWithEngines(engines...), ocr.NewFuser(ocr.DefaultFusionConfig()))
	detector := pii.NewDetector(pii.DefaultLibrary(), nil, pii.DefaultConfig())
	return New(extractor, detector, mask.NewMasker(color.RGBA{}), options)
}

func TestProcessRedactsDetectedEntities(t *testing.T) {
	engine := stubEngine{name: ocr.EngineTesseract, blocks: []ocr.TextBlock{
		{X: 20, Y: 20, Width: 200, Height: 20, Text: "john.doe@example.com", Confidence: 0.95},
		{X: 20, Y: 60, Width: 150, Height: 20, Text: "DOB: 12/08/1990", Confidence: 0.92},
	}}
	failing := stubEngine{name: ocr.EngineGoogleVision, err: errors.New("UNAUTHENTICATED")}
	p := newPipeline(Options{Preview: true, Comparison: true}, failing, engine)

	result, err := p.Process(context.Background(), Input{Name: "card.png", Data: whitePNG(t, 400, 200)})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	stats := result.Statistics
	if stats.EntityCount != 2 || stats.CountsByType[pii.TypeEmail] != 1 || stats.CountsByType[pii.TypeDate] != 1 {
		t.Errorf("statistics = %+v", stats)
	}
	if stats.DetectionMethod != pii.MethodFallback {
		t.Errorf("DetectionMethod = %s, want fallback", stats.DetectionMethod)
	}
	if _, ok := stats.EngineErrors[ocr.EngineGoogleVision]; !ok {
		t.Errorf("EngineErrors = %v, want the failing engine recorded", stats.EngineErrors)
	}
	if len(stats.EntityTypes) != 2 || stats.EntityTypes[0] != pii.TypeDate {
		t.Errorf("EntityTypes = %v, want sorted [date email]", stats.EntityTypes)
	}

	masked, format, err := imageio.Decode(result.Masked)
	if err != nil || format != "png" {
		t.Fatalf("masked output: format %q, error %v", format, err)
	}
	if r, g, b, _ := masked.At(25, 25).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Error("email region is not masked")
	}
	if r, _, _, _ := masked.At(30, 65).RGBA(); r == 0 {
		t.Error("DOB caption was masked")
	}
	if r, _, _, _ := masked.At(100, 65).RGBA(); r != 0 {
		t.Error("date value is not masked")
	}
	if len(result.Preview) == 0 || len(result.Comparison) == 0 {
		t.Error("preview or comparison missing")
	}
}

func TestProcessWithoutEntitiesReturnsInputBytes(t *testing.T) {
	data := whitePNG(t, 64, 32)
	p := newPipeline(Options{}, stubEngine{name: ocr.EngineTesseract})

	result, err := p.Process(context.Background(), Input{Name: "blank.png", Data: data})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !bytes.Equal(result.Masked, data) {
		t.Error("masked bytes differ from input")
	}
	if result.Extraction.Success || result.Extraction.QualityScore != 0 {
		t.Errorf("extraction = %+v, want unsuccessful with score 0", result.Extraction)
	}
	if len(result.Detection.Entities) != 0 {
		t.Errorf("entities = %+v", result.Detection.Entities)
	}
}

func TestProcessRejectsUnreadableImages(t *testing.T) {
	p := newPipeline(Options{})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not an image", []byte("%PDF-1.7 not an image"), ocr.ErrUndecodableImage},
		{"empty", nil, ocr.ErrEmptyImage},
		{"too large", make([]byte, imageio.MaxImageBytes+1), ocr.ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), Input{Name: "x", Data: tt.data})
			if !errors.Is(err, tt.want) {
				t.Errorf("Process() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPreviewDetection(t *testing.T) {
	engine := stubEngine{name: ocr.EngineTesseract, blocks: []ocr.TextBlock{
		{X: 10, Y: 30, Width: 100, Height: 20, Text: "ABCDE1234F", Confidence: 0.9},
	}}
	p := newPipeline(Options{}, engine)

	result, err := p.PreviewDetection(context.Background(), Input{Name: "pan.png", Data: whitePNG(t, 200, 80)})
	if err != nil {
		t.Fatalf("PreviewDetection() error = %v", err)
	}
	if len(result.Preview) == 0 || result.Masked != nil {
		t.Error("want only a preview image")
	}
	if result.Statistics.CountsByType[pii.TypeTaxID] != 1 {
		t.Errorf("statistics = %+v", result.Statistics)
	}
}
