package pii

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"redactor/internal/logger"
	"redactor/internal/ocr"
)

// Method names the detection tier that produced a result.
type Method string

const (
	MethodPrimary  Method = "primary"
	MethodFallback Method = "fallback"
)

// Confidence assigned to a value identified only by its caption.
var captionConfidence = map[EntityType]float64{
	TypePerson:    0.85,
	TypeAddress:   0.80,
	TypeSignature: 0.70,
}

// Config holds detector thresholds.
type Config struct {
	// Floors drops entities of a type below the given confidence.
	Floors map[EntityType]float64

	// DefaultFloor applies to types without an entry in Floors.
	DefaultFloor float64

	// Tolerance is the top-left proximity, in pixels, under which two
	// entities are duplicates.
	Tolerance int
}

// DefaultConfig returns the detector thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		Floors:       map[EntityType]float64{TypePerson: 0.6},
		DefaultFloor: 0.5,
		Tolerance:    ocr.DefaultTolerance,
	}
}

// Detection is the tagged result of Detect.
type Detection struct {
	Method   Method   `json:"method"`
	Entities []Entity `json:"entities"`

	// Degradation explains why the fallback tier was used.
	Degradation string `json:"degradation,omitempty"`
}

// Detector classifies fused OCR blocks as PII. It holds no per-call state and
// is safe for concurrent use.
type Detector struct {
	library    *Library
	recognizer Recognizer
	config     Config
	log        zerolog.Logger
}

// NewDetector creates a detector. recognizer may be nil, in which case every
// call uses the pattern fallback.
func NewDetector(library *Library, recognizer Recognizer, config Config) *Detector {
	if library == nil {
		library = DefaultLibrary()
	}
	return &Detector{
		library:    library,
		recognizer: recognizer,
		config:     config,
		log:        logger.WithComponent("pii-detector"),
	}
}

// RecognizerName returns the configured recognizer's name, or "" when none is set.
func (d *Detector) RecognizerName() string {
	if d.recognizer == nil {
		return ""
	}
	return d.recognizer.Name()
}

// Detect classifies the blocks of an extraction of img. Boxes are clipped to
// img's bounds. Recognizer failures fall back to pattern matching and are
// reported in the Detection, never returned.
func (d *Detector) Detect(ctx context.Context, img image.Image, extraction *ocr.ExtractionResult) Detection {
	if extraction == nil || len(extraction.Blocks) == 0 {
		method := MethodFallback
		if d.recognizer != nil {
			method = MethodPrimary
		}
		return Detection{Method: method, Entities: []Entity{}}
	}
	bounds := img.Bounds()

	if d.recognizer == nil {
		return d.fallback(bounds, extraction.Blocks, "no recognizer configured")
	}

	entities, err := d.primary(ctx, bounds, extraction.Blocks)
	if err != nil {
		d.log.Warn().
			Err(err).
			Str("recognizer", d.recognizer.Name()).
			Str("method", string(MethodFallback)).
			Msg("Recognizer failed, using pattern detection")
		return d.fallback(bounds, extraction.Blocks, err.Error())
	}

	entities = d.applyFloors(entities)
	d.log.Info().
		Str("method", string(MethodPrimary)).
		Int("entities", len(entities)).
		Msg("PII detection completed")
	return Detection{Method: MethodPrimary, Entities: entities}
}

// DetectBlocks runs the pattern tier only.
func (d *Detector) DetectBlocks(bounds image.Rectangle, blocks []ocr.TextBlock) []Entity {
	var entities []Entity
	for _, block := range blocks {
		entities = append(entities, d.blockEntities(bounds, block)...)
	}
	return d.applyFloors(entities)
}

func (d *Detector) fallback(bounds image.Rectangle, blocks []ocr.TextBlock, reason string) Detection {
	entities := d.DetectBlocks(bounds, blocks)
	d.log.Info().
		Str("method", string(MethodFallback)).
		Str("reason", reason).
		Int("entities", len(entities)).
		Msg("PII detection completed")
	return Detection{Method: MethodFallback, Entities: entities, Degradation: reason}
}

// blockEntities matches one block: caption split, exclusion, then patterns.
func (d *Detector) blockEntities(bounds image.Rectangle, block ocr.TextBlock) []Entity {
	text := block.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	exclusions := d.library.Exclusions()
	if exclusions.HasOrgPhrase(text) {
		return nil
	}

	value, offset := text, 0
	hint, captioned, captionOffset, ok := exclusions.SplitCaption(text)
	if ok {
		if captioned == "" {
			return nil
		}
		value, offset = captioned, captionOffset
	} else if exclusions.Excluded(text) {
		return nil
	}

	var entities []Entity
	for _, m := range d.library.FindAll(value) {
		box := spanRect(block, text, offset+m.Start, offset+m.End)
		if e, ok := NewEntity(m.Text, m.Type, m.Confidence*blockTrust(block), box, bounds); ok {
			entities = append(entities, e)
		}
	}

	if len(entities) == 0 && ok {
		if conf, hinted := captionConfidence[hint]; hinted {
			box := spanRect(block, text, offset, offset+len(value))
			if e, ok := NewEntity(value, hint, conf*blockTrust(block), box, bounds); ok {
				entities = append(entities, e)
			}
		}
	}
	return entities
}

// primary runs the recognizer over the joined block text, anchors its spans
// to block boxes and merges pattern findings.
func (d *Detector) primary(ctx context.Context, bounds image.Rectangle, blocks []ocr.TextBlock) ([]Entity, error) {
	const op = "Detector.primary"

	text, ranges := joinBlocks(blocks)
	spans, err := d.recognizer.Analyze(ctx, text)
	if err != nil {
		return nil, WrapDetectionError(op, err, d.recognizer.Name())
	}

	var entities []Entity
	exclusions := d.library.Exclusions()
	for _, span := range spans {
		entityType, ok := MapRecognizerType(span.Type)
		if !ok || span.Start < 0 || span.End > len(text) || span.Start >= span.End {
			continue
		}
		spanText := strings.TrimSpace(text[span.Start:span.End])
		if spanText == "" || exclusions.Excluded(spanText) {
			continue
		}

		var box image.Rectangle
		excluded := false
		trust := 1.0
		for i, r := range ranges {
			if span.Start >= r.end || span.End <= r.start {
				continue
			}
			if exclusions.HasOrgPhrase(blocks[i].Text) {
				excluded = true
				break
			}
			local := spanRect(blocks[i], strings.TrimSpace(blocks[i].Text), max(span.Start, r.start)-r.start, min(span.End, r.end)-r.start)
			box = box.Union(local)
			trust = min(trust, blockTrust(blocks[i]))
		}
		if excluded || box.Empty() {
			continue
		}
		if e, ok := NewEntity(spanText, entityType, span.Score*trust, box, bounds); ok {
			entities = append(entities, e)
		}
	}

	for _, block := range blocks {
		entities = append(entities, d.blockEntities(bounds, block)...)
	}

	d.log.Debug().
		Int("recognizer_spans", len(spans)).
		Int("entities", len(entities)).
		Msg("Recognizer spans anchored")

	return dedupeByProximity(entities, d.config.Tolerance), nil
}

type textRange struct{ start, end int }

// joinBlocks joins trimmed block texts with single spaces and records each
// block's byte range in the result.
func joinBlocks(blocks []ocr.TextBlock) (string, []textRange) {
	var sb strings.Builder
	ranges := make([]textRange, len(blocks))
	for i, b := range blocks {
		if i > 0 {
			sb.WriteByte(' ')
		}
		t := strings.TrimSpace(b.Text)
		ranges[i].start = sb.Len()
		sb.WriteString(t)
		ranges[i].end = sb.Len()
	}
	return sb.String(), ranges
}

// dedupeByProximity keeps, for each group of same-type entities whose top-left
// corners lie within tolerance of the group's first entity, the most confident
// one. Groups keep first-seen order.
func dedupeByProximity(entities []Entity, tolerance int) []Entity {
	var kept []Entity
	for _, e := range entities {
		merged := false
		for i, k := range kept {
			if e.Type == k.Type &&
				absInt(e.BBox[0]-k.BBox[0]) <= tolerance && absInt(e.BBox[1]-k.BBox[1]) <= tolerance {
				if e.Confidence > k.Confidence {
					kept[i] = e
				}
				merged = true
				break
			}
		}
		if !merged {
			kept = append(kept, e)
		}
	}
	return kept
}

func (d *Detector) applyFloors(entities []Entity) []Entity {
	filtered := make([]Entity, 0, len(entities))
	for _, e := range entities {
		floor, ok := d.config.Floors[e.Type]
		if !ok {
			floor = d.config.DefaultFloor
		}
		if e.Confidence >= floor {
			filtered = append(filtered, e)
			continue
		}
		d.log.Debug().
			Str("entity_type", string(e.Type)).
			Float64("confidence", e.Confidence).
			Float64("floor", floor).
			Msg("Entity below confidence floor dropped")
	}
	return filtered
}

// blockTrust scales pattern confidence by very low OCR confidence only;
// blocks read with at least 0.5 confidence keep the rule confidence.
func blockTrust(block ocr.TextBlock) float64 {
	if block.Confidence <= 0 || block.Confidence >= 0.5 {
		return 1
	}
	return 0.5 + block.Confidence
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// String summarizes a detection for logs and CLI output.
func (d Detection) String() string {
	return fmt.Sprintf("%s: %d entities", d.Method, len(d.Entities))
}
