package pii

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"redactor/internal/llmjson"
	"redactor/internal/logger"
)

// OpenAIRecognizerConfig configures the chat-model recognizer.
type OpenAIRecognizerConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
	// RetryDelay is the wait before the second attempt. It doubles per
	// attempt up to maxRetryDelay.
	RetryDelay time.Duration
}

const (
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 8 * time.Second
)

// OpenAIRecognizer extracts entities by asking a chat model to list them.
type OpenAIRecognizer struct {
	client *openai.Client
	config OpenAIRecognizerConfig
	log    zerolog.Logger
}

const recognizerSystemPrompt = `You find personal data in text read from identity documents.
Return JSON: {"entities":[{"text":"...","type":"...","confidence":0.0}]}.
"text" must be copied exactly from the input. "type" is one of: person, national_id, tax_id, phone_number, email, date, address, signature.
Do not report field captions such as "Name" or "DOB", or organisation names and document titles.`

var recognizerValidator = llmjson.MustValidator(map[string]any{
	"type":     "object",
	"required": []any{"entities"},
	"properties": map[string]any{
		"entities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"text", "type"},
				"properties": map[string]any{
					"text":       map[string]any{"type": "string"},
					"type":       map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
	},
})

type recognizerReply struct {
	Entities []struct {
		Text       string   `json:"text"`
		Type       string   `json:"type"`
		Confidence *float64 `json:"confidence"`
	} `json:"entities"`
}

// NewOpenAIRecognizer creates the recognizer from an API key.
func NewOpenAIRecognizer(config OpenAIRecognizerConfig) (*OpenAIRecognizer, error) {
	const op = "NewOpenAIRecognizer"

	if config.APIKey == "" {
		return nil, WrapDetectionError(op, ErrRecognizerUnavailable, "OPENAI_API_KEY is not set")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return NewOpenAIRecognizerWithClient(openai.NewClientWithConfig(clientConfig), config), nil
}

// NewOpenAIRecognizerWithClient creates the recognizer with an explicit client (for testing).
func NewOpenAIRecognizerWithClient(client *openai.Client, config OpenAIRecognizerConfig) *OpenAIRecognizer {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaultRetryDelay
	}
	return &OpenAIRecognizer{
		client: client,
		config: config,
		log:    logger.WithComponent("openai-recognizer"),
	}
}

func (r *OpenAIRecognizer) Name() string { return "openai" }

// Analyze asks the model for entities and locates each returned text in the
// input. Texts that cannot be found are dropped.
func (r *OpenAIRecognizer) Analyze(ctx context.Context, text string) ([]Span, error) {
	const op = "OpenAIRecognizer.Analyze"

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := r.wait(ctx, attempt); err != nil {
				lastErr = fmt.Errorf("%w: %v", ErrRecognizerFailed, err)
				break
			}
		}
		resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       r.config.Model,
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: recognizerSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			MaxTokens: 2000,
		})
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrRecognizerFailed, err)
			r.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", r.config.MaxRetries).
				Msg("Recognizer request failed, retrying")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("%w: no response choices", ErrInvalidRecognizerOutput)
			continue
		}

		var reply recognizerReply
		if err := recognizerValidator.Decode(resp.Choices[0].Message.Content, &reply); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrInvalidRecognizerOutput, err)
			r.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Msg("Failed to parse recognizer response, retrying")
			continue
		}

		spans := make([]Span, 0, len(reply.Entities))
		cursor := 0
		for _, e := range reply.Entities {
			start, end, ok := locate(text, e.Text, cursor)
			if !ok {
				r.log.Debug().Str("text", e.Text).Msg("Recognizer entity not found in input")
				continue
			}
			cursor = end
			score := 0.85
			if e.Confidence != nil {
				score = *e.Confidence
			}
			spans = append(spans, Span{Start: start, End: end, Type: e.Type, Score: score})
		}

		r.log.Debug().
			Str("model", r.config.Model).
			Int("spans", len(spans)).
			Int("attempt", attempt).
			Msg("Recognizer response processed")
		return spans, nil
	}

	return nil, NewDetectionError(op, lastErr, fmt.Sprintf("all %d attempts failed", r.config.MaxRetries))
}

// locate finds needle in text, preferring an occurrence at or after from,
// then any exact occurrence, then a case-insensitive one.
func locate(text, needle string, from int) (int, int, bool) {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return 0, 0, false
	}
	if from < len(text) {
		if i := strings.Index(text[from:], needle); i >= 0 {
			return from + i, from + i + len(needle), true
		}
	}
	if i := strings.Index(text, needle); i >= 0 {
		return i, i + len(needle), true
	}
	lowerText, lowerNeedle := strings.ToLower(text), strings.ToLower(needle)
	if len(lowerText) == len(text) && len(lowerNeedle) == len(needle) {
		if i := strings.Index(lowerText, lowerNeedle); i >= 0 {
			return i, i + len(needle), true
		}
	}
	return 0, 0, false
}

// wait sleeps before the given attempt, returning early when ctx is done.
func (r *OpenAIRecognizer) wait(ctx context.Context, attempt int) error {
	delay := r.config.RetryDelay << (attempt - 2)
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
