// Package pipeline sequences extraction, detection and masking for one image
// and reports per-stage statistics.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"redactor/internal/imageio"
	"redactor/internal/logger"
	"redactor/internal/mask"
	"redactor/internal/ocr"
	"redactor/internal/pii"
)

// Options selects the optional outputs of Process.
type Options struct {
	Preview    bool
	Comparison bool
}

// Input is one encoded image.
type Input struct {
	Name string
	Data []byte
}

// Timings records how long each stage took.
type Timings struct {
	Decode  time.Duration `json:"decode"`
	Extract time.Duration `json:"extract"`
	Detect  time.Duration `json:"detect"`
	Mask    time.Duration `json:"mask"`
	Encode  time.Duration `json:"encode"`
}

// Statistics summarizes one run.
type Statistics struct {
	TotalBlocks     int                    `json:"total_text_blocks"`
	EntityCount     int                    `json:"pii_entities_found"`
	CountsByType    map[pii.EntityType]int `json:"entities_by_type"`
	EntityTypes     []pii.EntityType       `json:"entity_types"`
	OCRScore        float64                `json:"ocr_score"`
	EnginesUsed     []string               `json:"engines_used"`
	EngineErrors    map[string]string      `json:"engine_errors,omitempty"`
	DetectionMethod pii.Method             `json:"detection_method"`
	Degradation     string                 `json:"degradation,omitempty"`
	Timings         Timings                `json:"timings"`
	TotalDuration   time.Duration          `json:"total_duration"`
}

// Result is the output of Process. Masked holds the input bytes unchanged
// when no entity was found.
type Result struct {
	Name       string                `json:"name"`
	Format     string                `json:"format"`
	Masked     []byte                `json:"-"`
	Preview    []byte                `json:"-"`
	Comparison []byte                `json:"-"`
	Extraction *ocr.ExtractionResult `json:"extraction"`
	Detection  pii.Detection         `json:"detection"`
	Statistics Statistics            `json:"statistics"`
}

// Pipeline composes an extractor, a detector and a masker. It is safe for
// concurrent use; each call owns its image and entity list.
type Pipeline struct {
	extractor *ocr.Extractor
	detector  *pii.Detector
	masker    *mask.Masker
	options   Options
	log       zerolog.Logger
}

// New creates a pipeline.
func New(extractor *ocr.Extractor, detector *pii.Detector, masker *mask.Masker, options Options) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		detector:  detector,
		masker:    masker,
		options:   options,
		log:       logger.WithComponent("pipeline"),
	}
}

// Extractor returns the pipeline's extractor.
func (p *Pipeline) Extractor() *ocr.Extractor {
	return p.extractor
}

// Detector returns the pipeline's detector.
func (p *Pipeline) Detector() *pii.Detector {
	return p.detector
}

// Extract runs every enabled engine on img and fuses the result.
func (p *Pipeline) Extract(ctx context.Context, img image.Image) *ocr.ExtractionResult {
	return p.extractor.Extract(ctx, img)
}

// Detect classifies the PII in an extraction of img.
func (p *Pipeline) Detect(ctx context.Context, img image.Image, extraction *ocr.ExtractionResult) pii.Detection {
	return p.detector.Detect(ctx, img, extraction)
}

// Mask returns img with every entity box filled.
func (p *Pipeline) Mask(img image.Image, entities []pii.Entity) image.Image {
	return p.masker.Apply(img, entities)
}

// Process runs decode, extract, detect, mask and encode. The only errors are
// an unreadable, empty or oversized image and an encoder failure; engine and
// recognizer failures are absorbed into the statistics.
func (p *Pipeline) Process(ctx context.Context, in Input) (*Result, error) {
	const op = "Pipeline.Process"
	start := time.Now()
	var timings Timings

	t := time.Now()
	img, format, err := imageio.Decode(in.Data)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("file", in.Name).
			Msg("Rejected unreadable image")
		return nil, ocr.WrapOCRError(op, err, in.Name)
	}
	timings.Decode = time.Since(t)

	t = time.Now()
	extraction := p.Extract(ctx, img)
	timings.Extract = time.Since(t)

	t = time.Now()
	detection := p.Detect(ctx, img, extraction)
	timings.Detect = time.Since(t)

	t = time.Now()
	masked := p.Mask(img, detection.Entities)
	timings.Mask = time.Since(t)

	result := &Result{
		Name:       in.Name,
		Format:     imageio.OutputFormat(format),
		Extraction: extraction,
		Detection:  detection,
	}

	t = time.Now()
	if len(detection.Entities) == 0 {
		result.Masked = in.Data
		result.Format = format
	} else if result.Masked, result.Format, err = imageio.EncodeBytes(masked, format); err != nil {
		return nil, ocr.WrapOCRError(op, err, "encode masked image")
	}
	if p.options.Preview {
		if result.Preview, _, err = imageio.EncodeBytes(mask.Preview(img, detection.Entities), format); err != nil {
			return nil, ocr.WrapOCRError(op, err, "encode preview")
		}
	}
	if p.options.Comparison {
		if result.Comparison, _, err = imageio.EncodeBytes(mask.Compare(img, masked), format); err != nil {
			return nil, ocr.WrapOCRError(op, err, "encode comparison")
		}
	}
	timings.Encode = time.Since(t)

	result.Statistics = newStatistics(extraction, detection, timings, time.Since(start))

	p.log.Info().
		Str("file", in.Name).
		Int("blocks", result.Statistics.TotalBlocks).
		Int("entities", result.Statistics.EntityCount).
		Str("method", string(detection.Method)).
		Strs("engines_used", extraction.EnginesUsed).
		Dur("duration", result.Statistics.TotalDuration).
		Msg("Image processed")

	return result, nil
}

// PreviewDetection runs extraction and detection only and returns the
// detection preview image encoded like the input.
func (p *Pipeline) PreviewDetection(ctx context.Context, in Input) (*Result, error) {
	const op = "Pipeline.PreviewDetection"
	start := time.Now()
	var timings Timings

	t := time.Now()
	img, format, err := imageio.Decode(in.Data)
	if err != nil {
		return nil, ocr.WrapOCRError(op, err, in.Name)
	}
	timings.Decode = time.Since(t)

	t = time.Now()
	extraction := p.Extract(ctx, img)
	timings.Extract = time.Since(t)

	t = time.Now()
	detection := p.Detect(ctx, img, extraction)
	timings.Detect = time.Since(t)

	t = time.Now()
	preview, outFormat, err := imageio.EncodeBytes(mask.Preview(img, detection.Entities), format)
	if err != nil {
		return nil, ocr.WrapOCRError(op, err, "encode preview")
	}
	timings.Encode = time.Since(t)

	return &Result{
		Name:       in.Name,
		Format:     outFormat,
		Preview:    preview,
		Extraction: extraction,
		Detection:  detection,
		Statistics: newStatistics(extraction, detection, timings, time.Since(start)),
	}, nil
}

func newStatistics(extraction *ocr.ExtractionResult, detection pii.Detection, timings Timings, total time.Duration) Statistics {
	counts := pii.CountByType(detection.Entities)
	types := make([]pii.EntityType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	slices.Sort(types)

	return Statistics{
		TotalBlocks:     len(extraction.Blocks),
		EntityCount:     len(detection.Entities),
		CountsByType:    counts,
		EntityTypes:     types,
		OCRScore:        extraction.QualityScore,
		EnginesUsed:     extraction.EnginesUsed,
		EngineErrors:    extraction.EngineErrors,
		DetectionMethod: detection.Method,
		Degradation:     detection.Degradation,
		Timings:         timings,
		TotalDuration:   total,
	}
}

// String summarizes statistics for CLI output.
func (s Statistics) String() string {
	return fmt.Sprintf("%d blocks, %d entities (%s), ocr score %.2f, %s",
		s.TotalBlocks, s.EntityCount, s.DetectionMethod, s.OCRScore, s.TotalDuration.Round(time.Millisecond))
}
