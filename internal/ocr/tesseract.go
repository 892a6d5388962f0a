//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"image"
	"slices"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"redactor/internal/imageio"
	"redactor/internal/logger"
)

// TesseractEngine recognizes text locally with Tesseract. Each text line
// becomes one block. A fresh client is used per call since gosseract clients
// are not safe for concurrent use.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
	log           zerolog.Logger
}

// NewTesseractEngine verifies that Tesseract and the requested language
// data are installed.
func NewTesseractEngine(language string) (*TesseractEngine, error) {
	const op = "NewTesseractEngine"

	languages := strings.Split(language, "+")
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return nil, WrapOCRError(op, ErrEngineUnavailable, fmt.Sprintf("failed to set language %q: %v", language, err))
	}
	if installed, err := gosseract.GetAvailableLanguages(); err == nil {
		for _, lang := range languages {
			if !slices.Contains(installed, lang) {
				return nil, WrapOCRError(op, ErrEngineUnavailable, fmt.Sprintf("tessdata for %q not installed", lang))
			}
		}
	}

	return &TesseractEngine{
		languages:     languages,
		clientFactory: gosseract.NewClient,
		log:           logger.WithComponent("tesseract"),
	}, nil
}

func (t *TesseractEngine) Name() string { return EngineTesseract }

// Recognize runs Tesseract line segmentation over img.
func (t *TesseractEngine) Recognize(ctx context.Context, img image.Image) ([]TextBlock, error) {
	const op = "Tesseract.Recognize"

	if err := ctx.Err(); err != nil {
		return nil, WrapOCRError(op, ErrContextCanceled, err.Error())
	}

	content, err := imageio.EncodePNG(img)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode image")
	}

	client := t.clientFactory()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, WrapOCRError(op, ErrRecognitionFailed, fmt.Sprintf("set languages: %v", err))
	}
	if err := client.SetImageFromBytes(content); err != nil {
		return nil, WrapOCRError(op, ErrRecognitionFailed, fmt.Sprintf("set image: %v", err))
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, WrapOCRError(op, ErrRecognitionFailed, fmt.Sprintf("bounding boxes: %v", err))
	}

	offset := img.Bounds().Min
	blocks := make([]TextBlock, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		box := b.Box.Add(offset)
		blocks = append(blocks, TextBlock{
			X:            box.Min.X,
			Y:            box.Min.Y,
			Width:        box.Dx(),
			Height:       box.Dy(),
			Text:         text,
			Confidence:   clampConfidence(b.Confidence / 100.0),
			SourceEngine: EngineTesseract,
		})
	}

	t.log.Debug().Int("blocks", len(blocks)).Msg("Tesseract recognition finished")
	return blocks, nil
}
