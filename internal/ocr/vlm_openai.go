package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"redactor/internal/imageio"
	"redactor/internal/logger"
)

// OpenAIVisionConfig configures the OpenAI vision engine.
type OpenAIVisionConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint (proxies, compatible servers, tests).
	BaseURL           string
	Model             string
	DefaultConfidence float64
	Timeout           time.Duration
}

// OpenAIVisionEngine asks an OpenAI vision model to transcribe and locate text.
type OpenAIVisionEngine struct {
	client *openai.Client
	config OpenAIVisionConfig
	log    zerolog.Logger
}

// NewOpenAIVisionEngine creates the engine. An empty API key makes the engine unavailable.
func NewOpenAIVisionEngine(config OpenAIVisionConfig) (*OpenAIVisionEngine, error) {
	const op = "NewOpenAIVisionEngine"

	if config.APIKey == "" {
		return nil, WrapOCRError(op, ErrMissingCredentials, "OPENAI_API_KEY is not set")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return NewOpenAIVisionEngineWithClient(openai.NewClientWithConfig(clientConfig), config), nil
}

// NewOpenAIVisionEngineWithClient creates the engine with an explicit client (for testing).
func NewOpenAIVisionEngineWithClient(client *openai.Client, config OpenAIVisionConfig) *OpenAIVisionEngine {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.DefaultConfidence == 0 {
		config.DefaultConfidence = DefaultVLMConfidence
	}
	return &OpenAIVisionEngine{
		client: client,
		config: config,
		log:    logger.WithComponent("openai-vision"),
	}
}

func (o *OpenAIVisionEngine) Name() string { return EngineOpenAIVision }

// Recognize sends img as a data URI and parses the JSON block list from the reply.
func (o *OpenAIVisionEngine) Recognize(ctx context.Context, img image.Image) ([]TextBlock, error) {
	const op = "OpenAIVision.Recognize"

	content, err := imageio.EncodePNG(img)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode image")
	}
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(content)

	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.config.Model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: vlmSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: vlmUserPrompt(img.Bounds())},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		MaxTokens: 4000,
	})
	if err != nil {
		return nil, WrapOCRError(op, ErrRecognitionFailed, fmt.Sprintf("chat completion: %v", err))
	}
	if len(resp.Choices) == 0 {
		return nil, WrapOCRError(op, ErrInvalidEngineOutput, "no response choices")
	}

	blocks, err := parseVLMBlocks(resp.Choices[0].Message.Content, EngineOpenAIVision, o.config.DefaultConfidence, img.Bounds())
	if err != nil {
		return nil, WrapOCRError(op, err, "unusable model reply")
	}

	o.log.Debug().
		Str("model", o.config.Model).
		Int("blocks", len(blocks)).
		Msg("OpenAI vision response processed")
	return blocks, nil
}
