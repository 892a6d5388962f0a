//go:build !tesseract

package ocr

import (
	"context"
	"image"
)

// TesseractEngine is unavailable in builds without the tesseract tag.
type TesseractEngine struct{}

// NewTesseractEngine always fails without the tesseract build tag:
//
//	go build -tags tesseract
func NewTesseractEngine(language string) (*TesseractEngine, error) {
	return nil, WrapOCRError("NewTesseractEngine", ErrEngineUnavailable, "binary built without the tesseract tag")
}

func (t *TesseractEngine) Name() string { return EngineTesseract }

func (t *TesseractEngine) Recognize(ctx context.Context, img image.Image) ([]TextBlock, error) {
	return nil, ErrEngineUnavailable
}
