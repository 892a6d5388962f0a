package ocr

import (
	"testing"
)

func TestFuseMergesNearbyBlocksByPreference(t *testing.T) {
	fuser := NewFuser(DefaultFusionConfig())

	blocks := []TextBlock{
		{X: 105, Y: 53, Width: 80, Height: 12, Text: "Jonh Doe", Confidence: 0.99, SourceEngine: EngineTesseract},
		{X: 100, Y: 50, Width: 82, Height: 14, Text: "John Doe", Confidence: 0.90, SourceEngine: EngineGoogleVision},
	}

	result := fuser.Fuse(blocks)
	if len(result.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(result.Blocks))
	}
	if got := result.Blocks[0].SourceEngine; got != EngineGoogleVision {
		t.Errorf("surviving engine = %q, want %q", got, EngineGoogleVision)
	}
	if result.FullText != "John Doe" {
		t.Errorf("FullText = %q", result.FullText)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if len(result.EnginesUsed) != 2 || result.EnginesUsed[0] != EngineGoogleVision || result.EnginesUsed[1] != EngineTesseract {
		t.Errorf("EnginesUsed = %v", result.EnginesUsed)
	}
}

func TestFuseToleranceBoundary(t *testing.T) {
	tests := []struct {
		name       string
		dx, dy     int
		wantGroups int
	}{
		{"within", 5, 3, 1},
		{"on the boundary", 20, 20, 1},
		{"x outside", 21, 0, 2},
		{"y outside", 0, 21, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fuser := NewFuser(DefaultFusionConfig())
			result := fuser.Fuse([]TextBlock{
				{X: 10, Y: 10, Width: 5, Height: 5, Text: "alpha", Confidence: 0.9, SourceEngine: EngineTesseract},
				{X: 10 + tt.dx, Y: 10 + tt.dy, Width: 5, Height: 5, Text: "beta", Confidence: 0.9, SourceEngine: EngineTesseract},
			})
			if len(result.Blocks) != tt.wantGroups {
				t.Errorf("groups = %d, want %d", len(result.Blocks), tt.wantGroups)
			}
		})
	}
}

func TestFuseGreedyFirstGroupWins(t *testing.T) {
	fuser := NewFuser(DefaultFusionConfig())
	// The third block is within tolerance of both groups and joins the first.
	result := fuser.Fuse([]TextBlock{
		{X: 0, Y: 0, Text: "first", Confidence: 0.5, SourceEngine: EngineTesseract},
		{X: 30, Y: 0, Text: "second", Confidence: 0.5, SourceEngine: EngineTesseract},
		{X: 15, Y: 0, Text: "third", Confidence: 0.99, SourceEngine: EngineTesseract},
	})
	if len(result.Blocks) != 2 {
		t.Fatalf("groups = %d, want 2", len(result.Blocks))
	}
	if result.Blocks[0].Text != "third" {
		t.Errorf("first group representative = %q, want the higher confidence block", result.Blocks[0].Text)
	}
	if result.FullText != "third second" {
		t.Errorf("FullText = %q", result.FullText)
	}
}

func TestFuseFallsBackToConfidenceForUnrankedEngines(t *testing.T) {
	fuser := NewFuser(FusionConfig{Tolerance: 20, Preference: []string{EngineDocumentAI}, Quality: DefaultQualityConfig()})
	result := fuser.Fuse([]TextBlock{
		{X: 0, Y: 0, Text: "low", Confidence: 0.4, SourceEngine: EngineTesseract},
		{X: 2, Y: 2, Text: "high", Confidence: 0.8, SourceEngine: EngineGoogleVision},
	})
	if len(result.Blocks) != 1 || result.Blocks[0].Text != "high" {
		t.Errorf("Blocks = %+v, want the high confidence block", result.Blocks)
	}
}

func TestFuseEmptyInput(t *testing.T) {
	fuser := NewFuser(DefaultFusionConfig())

	for name, input := range map[string][]TextBlock{
		"nil":   nil,
		"blank": {{X: 1, Y: 1, Text: "   ", Confidence: 0.9, SourceEngine: EngineTesseract}},
	} {
		t.Run(name, func(t *testing.T) {
			result := fuser.Fuse(input)
			if result.Success {
				t.Error("Success = true, want false")
			}
			if result.QualityScore != 0 {
				t.Errorf("QualityScore = %v, want 0", result.QualityScore)
			}
			if len(result.Blocks) != 0 || result.FullText != "" {
				t.Errorf("expected empty result, got %+v", result)
			}
		})
	}
}
