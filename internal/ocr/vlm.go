package ocr

import (
	"fmt"
	"image"
	"strings"

	"redactor/internal/llmjson"
)

// DefaultVLMConfidence is assigned to blocks from vision-language models,
// which report no confidence of their own.
const DefaultVLMConfidence = 0.8

const vlmSystemPrompt = `You are an OCR engine. You read every piece of printed or handwritten text
in a document image and report where it is. Respond with JSON only.`

const vlmUserPromptFormat = `The image is %d pixels wide and %d pixels high.
List every line of text you can read. For each line give its exact text and the
axis-aligned pixel box around it (x and y of the top-left corner, width, height).
Respond with a JSON object of the form:
{"blocks":[{"text":"...","x":0,"y":0,"width":0,"height":0}]}
Return {"blocks":[]} when the image contains no text.`

var vlmValidator = llmjson.MustValidator(map[string]any{
	"type":     "object",
	"required": []string{"blocks"},
	"properties": map[string]any{
		"blocks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"text", "x", "y", "width", "height"},
				"properties": map[string]any{
					"text":       map[string]any{"type": "string"},
					"x":          map[string]any{"type": "number"},
					"y":          map[string]any{"type": "number"},
					"width":      map[string]any{"type": "number", "minimum": 0},
					"height":     map[string]any{"type": "number", "minimum": 0},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
	},
})

type vlmResponse struct {
	Blocks []struct {
		Text       string   `json:"text"`
		X          float64  `json:"x"`
		Y          float64  `json:"y"`
		Width      float64  `json:"width"`
		Height     float64  `json:"height"`
		Confidence *float64 `json:"confidence"`
	} `json:"blocks"`
}

func vlmUserPrompt(bounds image.Rectangle) string {
	return fmt.Sprintf(vlmUserPromptFormat, bounds.Dx(), bounds.Dy())
}

// parseVLMBlocks validates a model reply and converts it to text blocks
// clipped to bounds. defaultConfidence applies when the model gives none.
func parseVLMBlocks(content, engine string, defaultConfidence float64, bounds image.Rectangle) ([]TextBlock, error) {
	var resp vlmResponse
	if err := vlmValidator.Decode(content, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEngineOutput, err)
	}

	blocks := make([]TextBlock, 0, len(resp.Blocks))
	for _, b := range resp.Blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height)).
			Add(bounds.Min).
			Intersect(bounds)
		if rect.Empty() {
			continue
		}
		confidence := defaultConfidence
		if b.Confidence != nil {
			confidence = *b.Confidence
		}
		blocks = append(blocks, TextBlock{
			X:            rect.Min.X,
			Y:            rect.Min.Y,
			Width:        rect.Dx(),
			Height:       rect.Dy(),
			Text:         text,
			Confidence:   clampConfidence(confidence),
			SourceEngine: engine,
		})
	}
	return blocks, nil
}
