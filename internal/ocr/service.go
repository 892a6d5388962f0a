// Package ocr runs one or more text-recognition engines over a document image
// and fuses their output into a single set of located text blocks.
//
// Engines:
//   - document-ai: Google Document AI layout analysis (GOOGLE_CLOUD_PROJECT, DOCUMENT_AI_PROCESSOR_ID)
//   - google-vision: Google Cloud Vision document text detection
//   - tesseract: local Tesseract through gosseract (built with -tags tesseract)
//   - openai-vision: OpenAI vision model returning JSON blocks (OPENAI_API_KEY)
//   - gemini-vision: Gemini vision model returning JSON blocks (GEMINI_API_KEY)
//
// Google engines read credentials from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to application
// default credentials.
//
// Engine availability is decided once when the Registry is built. A failing
// engine never fails an extraction: it contributes no blocks and the failure
// is logged and reported in ExtractionResult.EngineErrors.
package ocr

import (
	"context"
	"image"
	"time"
)

// Engine identifiers.
const (
	EngineDocumentAI   = "document-ai"
	EngineGoogleVision = "google-vision"
	EngineTesseract    = "tesseract"
	EngineOpenAIVision = "openai-vision"
	EngineGeminiVision = "gemini-vision"
)

// AllEngines lists every engine the registry knows about, in default preference order.
var AllEngines = []string{
	EngineDocumentAI,
	EngineGoogleVision,
	EngineTesseract,
	EngineOpenAIVision,
	EngineGeminiVision,
}

// Engine recognizes text regions in a decoded image.
type Engine interface {
	// Name returns the engine identifier used for preference ranking.
	Name() string

	// Recognize returns the text blocks found in img. Coordinates are in
	// img's pixel space with a top-left origin.
	Recognize(ctx context.Context, img image.Image) ([]TextBlock, error)
}

// TextBlock is one engine's recognition of a contiguous text region.
type TextBlock struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`

	// SourceEngine is the identifier of the engine that produced the block.
	SourceEngine string `json:"source_engine"`

	// RawPoints is the engine's original polygon, when it returned one.
	RawPoints []image.Point `json:"raw_points,omitempty"`
}

// Rect returns the block's axis-aligned bounding box.
func (b TextBlock) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// NewPolygonBlock collapses a polygon to its axis-aligned bounding box and
// keeps the original points on the block.
func NewPolygonBlock(text string, confidence float64, engine string, points []image.Point) TextBlock {
	block := TextBlock{
		Text:         text,
		Confidence:   clampConfidence(confidence),
		SourceEngine: engine,
	}
	if len(points) == 0 {
		return block
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}

	block.X, block.Y = minX, minY
	block.Width, block.Height = maxX-minX, maxY-minY
	block.RawPoints = append([]image.Point(nil), points...)
	return block
}

// ExtractionResult is the fused output of every active engine for one image.
type ExtractionResult struct {
	// Blocks are the deduplicated blocks in discovery order.
	Blocks []TextBlock `json:"blocks"`

	// FullText is the space-joined text of Blocks.
	FullText string `json:"full_text"`

	// QualityScore estimates extraction reliability (0.0 to 1.0).
	QualityScore float64 `json:"quality_score"`

	// EnginesUsed names the engines that contributed at least one block.
	EnginesUsed []string `json:"engines_used"`

	// Success is false when no engine produced any text.
	Success bool `json:"success"`

	// EngineErrors records absorbed per-engine failures keyed by engine name.
	EngineErrors map[string]string `json:"engine_errors,omitempty"`

	Duration time.Duration `json:"duration"`
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
