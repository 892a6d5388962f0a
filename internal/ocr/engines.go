package ocr

import (
	"context"
	"time"
)

// EngineOptions selects and configures the built-in engines.
type EngineOptions struct {
	DocumentAI   bool
	GoogleVision bool
	Tesseract    bool
	OpenAIVision bool
	GeminiVision bool

	DocumentAIConfig  DocumentAIConfig
	TesseractLanguage string
	OpenAI            OpenAIVisionConfig
	Gemini            GeminiVisionConfig

	// Timeout bounds each cloud engine call.
	Timeout time.Duration
}

// StandardEngineSpecs returns a spec for every built-in engine, in default
// preference order, for use with NewRegistry.
func StandardEngineSpecs(opts EngineOptions) []EngineSpec {
	return []EngineSpec{
		{Name: EngineDocumentAI, Enabled: opts.DocumentAI, New: func(ctx context.Context) (Engine, error) {
			cfg := opts.DocumentAIConfig
			if cfg.Timeout == 0 {
				cfg.Timeout = opts.Timeout
			}
			return engineOrNil(NewDocumentAIEngine(ctx, cfg))
		}},
		{Name: EngineGoogleVision, Enabled: opts.GoogleVision, New: func(ctx context.Context) (Engine, error) {
			return engineOrNil(NewGoogleVisionEngine(ctx, opts.Timeout))
		}},
		{Name: EngineTesseract, Enabled: opts.Tesseract, New: func(ctx context.Context) (Engine, error) {
			lang := opts.TesseractLanguage
			if lang == "" {
				lang = "eng"
			}
			return engineOrNil(NewTesseractEngine(lang))
		}},
		{Name: EngineOpenAIVision, Enabled: opts.OpenAIVision, New: func(ctx context.Context) (Engine, error) {
			cfg := opts.OpenAI
			if cfg.Timeout == 0 {
				cfg.Timeout = opts.Timeout
			}
			return engineOrNil(NewOpenAIVisionEngine(cfg))
		}},
		{Name: EngineGeminiVision, Enabled: opts.GeminiVision, New: func(ctx context.Context) (Engine, error) {
			cfg := opts.Gemini
			if cfg.Timeout == 0 {
				cfg.Timeout = opts.Timeout
			}
			return engineOrNil(NewGeminiVisionEngine(ctx, cfg))
		}},
	}
}

// engineOrNil keeps a failed constructor's typed nil pointer out of the
// Engine interface.
func engineOrNil[E Engine](engine E, err error) (Engine, error) {
	if err != nil {
		return nil, err
	}
	return engine, nil
}
