package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"redactor/internal/imageio"
	"redactor/internal/logger"
)

// GeminiVisionConfig configures the Gemini vision engine.
type GeminiVisionConfig struct {
	APIKey            string
	Model             string
	DefaultConfidence float64
	Timeout           time.Duration
}

// GeminiVisionEngine asks a Gemini model to transcribe and locate text.
type GeminiVisionEngine struct {
	client *genai.Client
	model  *genai.GenerativeModel
	config GeminiVisionConfig
	log    zerolog.Logger
}

// NewGeminiVisionEngine creates the engine. An empty API key makes the engine unavailable.
func NewGeminiVisionEngine(ctx context.Context, config GeminiVisionConfig) (*GeminiVisionEngine, error) {
	const op = "NewGeminiVisionEngine"

	if config.APIKey == "" {
		return nil, WrapOCRError(op, ErrMissingCredentials, "GEMINI_API_KEY is not set")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	if config.DefaultConfidence == 0 {
		config.DefaultConfidence = DefaultVLMConfidence
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, WrapOCRError(op, ErrEngineUnavailable, fmt.Sprintf("failed to create Gemini client: %v", err))
	}

	model := client.GenerativeModel(config.Model)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(vlmSystemPrompt)}}

	return &GeminiVisionEngine{
		client: client,
		model:  model,
		config: config,
		log:    logger.WithComponent("gemini-vision"),
	}, nil
}

func (g *GeminiVisionEngine) Name() string { return EngineGeminiVision }

// Recognize sends img inline with the block-list prompt.
func (g *GeminiVisionEngine) Recognize(ctx context.Context, img image.Image) ([]TextBlock, error) {
	const op = "GeminiVision.Recognize"

	content, err := imageio.EncodePNG(img)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode image")
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", content), genai.Text(vlmUserPrompt(img.Bounds())))
	if err != nil {
		return nil, classifyCloudError(op, err, "Gemini")
	}

	reply := geminiText(resp)
	if reply == "" {
		return nil, WrapOCRError(op, ErrInvalidEngineOutput, "empty response")
	}

	blocks, err := parseVLMBlocks(reply, EngineGeminiVision, g.config.DefaultConfidence, img.Bounds())
	if err != nil {
		return nil, WrapOCRError(op, err, "unusable model reply")
	}

	g.log.Debug().
		Str("model", g.config.Model).
		Int("blocks", len(blocks)).
		Msg("Gemini response processed")
	return blocks, nil
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// Close closes the underlying Gemini client.
func (g *GeminiVisionEngine) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
