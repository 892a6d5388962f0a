package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"redactor/internal/logger"
)

// PresidioRecognizer calls a Presidio analyzer service.
type PresidioRecognizer struct {
	baseURL  string
	language string
	client   *http.Client
	log      zerolog.Logger
}

type presidioRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// NewPresidioRecognizer creates a recognizer for the analyzer at baseURL.
func NewPresidioRecognizer(baseURL, language string, timeout time.Duration) (*PresidioRecognizer, error) {
	const op = "NewPresidioRecognizer"

	if baseURL == "" {
		return nil, WrapDetectionError(op, ErrRecognizerUnavailable, "PRESIDIO_URL is not set")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewPresidioRecognizerWithClient(baseURL, language, &http.Client{Timeout: timeout}), nil
}

// NewPresidioRecognizerWithClient creates the recognizer with an explicit HTTP client (for testing).
func NewPresidioRecognizerWithClient(baseURL, language string, client *http.Client) *PresidioRecognizer {
	if language == "" {
		language = "en"
	}
	return &PresidioRecognizer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		client:   client,
		log:      logger.WithComponent("presidio-recognizer"),
	}
}

func (p *PresidioRecognizer) Name() string { return "presidio" }

// Analyze posts text to /analyze. Presidio reports character offsets, which
// are converted to byte offsets.
func (p *PresidioRecognizer) Analyze(ctx context.Context, text string) ([]Span, error) {
	const op = "PresidioRecognizer.Analyze"

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	body, err := json.Marshal(presidioRequest{Text: text, Language: p.language})
	if err != nil {
		return nil, NewDetectionError(op, err, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, NewDetectionError(op, ErrRecognizerFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewDetectionError(op, ErrRecognizerFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewDetectionError(op, ErrRecognizerFailed,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var results []presidioResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, NewDetectionError(op, ErrInvalidRecognizerOutput, err.Error())
	}

	offsets := runeOffsets(text)
	spans := make([]Span, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End > len(offsets)-1 || r.Start >= r.End {
			continue
		}
		spans = append(spans, Span{
			Start: offsets[r.Start],
			End:   offsets[r.End],
			Type:  r.EntityType,
			Score: r.Score,
		})
	}

	p.log.Debug().
		Int("results", len(results)).
		Int("spans", len(spans)).
		Msg("Presidio response processed")
	return spans, nil
}

// runeOffsets maps each rune index (and the end index) to its byte offset.
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
