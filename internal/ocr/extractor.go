package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"redactor/internal/logger"
)

// Extractor runs every registered engine over an image and fuses the results.
type Extractor struct {
	registry *Registry
	fuser    *Fuser
	log      zerolog.Logger
}

// NewExtractor creates an Extractor over a built registry.
func NewExtractor(registry *Registry, fuser *Fuser) *Extractor {
	return &Extractor{
		registry: registry,
		fuser:    fuser,
		log:      logger.WithComponent("ocr-extractor"),
	}
}

// Registry returns the engine registry the extractor reads from.
func (e *Extractor) Registry() *Registry {
	return e.registry
}

// Extract runs the engines sequentially and fuses their blocks. Engine
// failures are absorbed: the engine contributes nothing and the failure is
// recorded in EngineErrors. An image without text yields Success=false.
func (e *Extractor) Extract(ctx context.Context, img image.Image) *ExtractionResult {
	start := time.Now()

	var all []TextBlock
	engineErrors := make(map[string]string)
	for _, engine := range e.registry.Engines() {
		blocks, err := e.runEngine(ctx, engine, img)
		if err != nil {
			engineErrors[engine.Name()] = err.Error()
			e.log.Warn().
				Err(err).
				Str("engine", engine.Name()).
				Msg("OCR engine failed, continuing without it")
			continue
		}
		e.log.Debug().
			Str("engine", engine.Name()).
			Int("blocks", len(blocks)).
			Msg("OCR engine finished")
		all = append(all, blocks...)
	}

	result := e.fuser.Fuse(all)
	if len(engineErrors) > 0 {
		result.EngineErrors = engineErrors
	}
	result.Duration = time.Since(start)

	e.log.Info().
		Int("blocks", len(result.Blocks)).
		Strs("engines_used", result.EnginesUsed).
		Float64("quality", result.QualityScore).
		Bool("success", result.Success).
		Dur("duration", result.Duration).
		Msg("OCR extraction completed")

	return result
}

// runEngine calls one engine and normalizes its blocks. A panic inside the
// engine is converted to an error.
func (e *Extractor) runEngine(ctx context.Context, engine Engine, img image.Image) (blocks []TextBlock, err error) {
	const op = "runEngine"

	defer func() {
		if p := recover(); p != nil {
			blocks = nil
			err = NewOCRError(op, ErrRecognitionFailed, fmt.Sprintf("%s panicked: %v", engine.Name(), p))
		}
	}()

	raw, err := engine.Recognize(ctx, img)
	if err != nil {
		return nil, WrapOCRError(op, err, engine.Name())
	}

	blocks = make([]TextBlock, 0, len(raw))
	for _, b := range raw {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		if b.SourceEngine == "" {
			b.SourceEngine = engine.Name()
		}
		b.Confidence = clampConfidence(b.Confidence)
		b.Width = max(b.Width, 0)
		b.Height = max(b.Height, 0)
		blocks = append(blocks, b)
	}
	return blocks, nil
}
