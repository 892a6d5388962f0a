package pii

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPresidioRecognizerConvertsRuneOffsets(t *testing.T) {
	text := "नाम Ramesh"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req presidioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != text || req.Language != "en" {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"entity_type":"PERSON","start":4,"end":10,"score":0.85},{"entity_type":"PERSON","start":8,"end":99,"score":0.5}]`))
	}))
	defer server.Close()

	rec, err := NewPresidioRecognizer(server.URL+"/", "", 0)
	if err != nil {
		t.Fatalf("NewPresidioRecognizer() error = %v", err)
	}
	spans, err := rec.Analyze(context.Background(), text)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("spans = %+v, want 1", spans)
	}
	if got := text[spans[0].Start:spans[0].End]; got != "Ramesh" {
		t.Errorf("span text = %q, want Ramesh", got)
	}
}

func TestPresidioRecognizerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "analyzer overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rec := NewPresidioRecognizerWithClient(server.URL, "en", server.Client())
	_, err := rec.Analyze(context.Background(), "Asha Rao")
	if !errors.Is(err, ErrRecognizerFailed) {
		t.Errorf("Analyze() error = %v, want ErrRecognizerFailed", err)
	}

	if _, err := NewPresidioRecognizer("", "en", 0); !errors.Is(err, ErrRecognizerUnavailable) {
		t.Errorf("NewPresidioRecognizer(\"\") error = %v, want ErrRecognizerUnavailable", err)
	}
}

func chatServer(t *testing.T, replies ...string) *httptest.Server {
	t.Helper()
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		content := replies[min(calls, len(replies)-1)]
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestOpenAIRecognizerLocatesEntities(t *testing.T) {
	server := chatServer(t,
		"not json at all",
		`{"entities":[
			{"text":"Asha Rao","type":"person","confidence":0.93},
			{"text":"asha@example.com","type":"email"},
			{"text":"Bengaluru","type":"address","confidence":0.7}
		]}`,
	)
	defer server.Close()

	rec, err := NewOpenAIRecognizer(OpenAIRecognizerConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", MaxRetries: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewOpenAIRecognizer() error = %v", err)
	}

	text := "ASHA RAO Asha Rao asha@example.com"
	spans, err := rec.Analyze(context.Background(), text)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("spans = %+v, want 2 (unknown text dropped)", spans)
	}
	if spans[0].Start != 9 || text[spans[0].Start:spans[0].End] != "Asha Rao" || spans[0].Score != 0.93 {
		t.Errorf("spans[0] = %+v", spans[0])
	}
	if text[spans[1].Start:spans[1].End] != "asha@example.com" || spans[1].Score != 0.85 {
		t.Errorf("spans[1] = %+v", spans[1])
	}
}

func TestOpenAIRecognizerGivesUpAfterRetries(t *testing.T) {
	server := chatServer(t, `{"people":[]}`)
	defer server.Close()

	rec, err := NewOpenAIRecognizer(OpenAIRecognizerConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", MaxRetries: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Analyze(context.Background(), "Asha Rao"); !errors.Is(err, ErrInvalidRecognizerOutput) {
		t.Errorf("Analyze() error = %v, want ErrInvalidRecognizerOutput", err)
	}

	if _, err := NewOpenAIRecognizer(OpenAIRecognizerConfig{}); !errors.Is(err, ErrRecognizerUnavailable) {
		t.Errorf("NewOpenAIRecognizer without key error = %v", err)
	}
}

func TestOpenAIRecognizerBacksOffBetweenAttempts(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rec, err := NewOpenAIRecognizer(OpenAIRecognizerConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL + "/v1",
		MaxRetries: 3,
		RetryDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Analyze(context.Background(), "Asha Rao"); !errors.Is(err, ErrRecognizerFailed) {
		t.Fatalf("Analyze() error = %v, want ErrRecognizerFailed", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}
	if gap := calls[1].Sub(calls[0]); gap < 20*time.Millisecond {
		t.Errorf("first retry after %v, want at least 20ms", gap)
	}
	if gap := calls[2].Sub(calls[1]); gap < 40*time.Millisecond {
		t.Errorf("second retry after %v, want at least 40ms", gap)
	}
}

func TestOpenAIRecognizerStopsWaitingWhenCancelled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rec, err := NewOpenAIRecognizer(OpenAIRecognizerConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL + "/v1",
		MaxRetries: 5,
		RetryDelay: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := rec.Analyze(ctx, "Asha Rao"); !errors.Is(err, ErrRecognizerFailed) {
		t.Errorf("Analyze() error = %v, want ErrRecognizerFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Analyze() took %v, want it to stop when the context ends", elapsed)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestLocate(t *testing.T) {
	text := "Rao and rao"
	if s, e, ok := locate(text, "rao", 0); !ok || s != 8 || e != 11 {
		t.Errorf("locate exact = (%d, %d, %v)", s, e, ok)
	}
	if s, _, ok := locate(text, "Rao", 4); !ok || s != 0 {
		t.Errorf("locate before cursor = (%d, %v), want first occurrence", s, ok)
	}
	if s, _, ok := locate(text, "AND", 0); !ok || s != 4 {
		t.Errorf("locate case-insensitive = (%d, %v)", s, ok)
	}
	if _, _, ok := locate(text, "Kumar", 0); ok {
		t.Error("locate found missing text")
	}
}
