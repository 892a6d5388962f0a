package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"redactor/internal/config"
	"redactor/internal/imageio"
	"redactor/internal/mask"
	"redactor/internal/ocr"
	"redactor/internal/pii"
	"redactor/internal/pipeline"
)

// createContextWithTimeout creates a context with timeout and signal handling.
// A non-positive timeout only cancels on a signal.
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeoutSecs > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// validateImageFile checks that path is a readable, non-empty regular file
// within the size limit.
func validateImageFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", path)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if !imageio.IsImageExtension(path) {
		log.Warn().Str("file", path).Msg("File does not have an image extension")
	}
	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("image file is empty: %s", path)
	}
	if fileInfo.Size() > imageio.MaxImageBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", imageio.MaxImageBytes).
			Msg("Image file exceeds maximum size limit")
		return nil, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), imageio.MaxImageBytes)
	}
	return fileInfo, nil
}

// loadConfig reads the configuration; main has already loaded .env.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildRegistry initializes every enabled engine.
func buildRegistry(ctx context.Context, cfg *config.Config) *ocr.Registry {
	e := cfg.Engines
	return ocr.NewRegistry(ctx, ocr.StandardEngineSpecs(ocr.EngineOptions{
		DocumentAI:   e.DocumentAI,
		GoogleVision: e.GoogleVision,
		Tesseract:    e.Tesseract,
		OpenAIVision: e.OpenAIVision,
		GeminiVision: e.GeminiVision,
		DocumentAIConfig: ocr.DocumentAIConfig{
			ProjectID:        e.GoogleCloudProject,
			Location:         e.GoogleCloudLocation,
			ProcessorID:      e.ProcessorID,
			ProcessorVersion: e.ProcessorVersion,
		},
		TesseractLanguage: e.TesseractLanguage,
		OpenAI: ocr.OpenAIVisionConfig{
			APIKey:            e.OpenAIAPIKey,
			BaseURL:           e.OpenAIBaseURL,
			Model:             e.OpenAIVisionModel,
			DefaultConfidence: e.VLMConfidence,
		},
		Gemini: ocr.GeminiVisionConfig{
			APIKey:            e.GeminiAPIKey,
			Model:             e.GeminiModel,
			DefaultConfidence: e.VLMConfidence,
		},
		Timeout: e.EngineTimeout,
	}))
}

func fusionConfig(cfg *config.Config) ocr.FusionConfig {
	fc := ocr.DefaultFusionConfig()
	fc.Tolerance = cfg.Fusion.Tolerance
	fc.Preference = cfg.Fusion.EnginePreference
	fc.Quality.MinTextLength = cfg.Fusion.MinTextLength
	fc.Quality.MinUniqueRunes = cfg.Fusion.MinUniqueRunes
	fc.Quality.MaxSpaceRatio = cfg.Fusion.MaxSpaceRatio
	fc.Quality.MaxPunctRatio = cfg.Fusion.MaxPunctRatio
	return fc
}

// buildRecognizer returns nil when no recognizer is configured or the
// configured one cannot start; detection then uses patterns only.
func buildRecognizer(cfg *config.Config, log zerolog.Logger) pii.Recognizer {
	d := cfg.Detection
	var (
		recognizer pii.Recognizer
		err        error
	)
	switch d.Recognizer {
	case "openai":
		recognizer, err = pii.NewOpenAIRecognizer(pii.OpenAIRecognizerConfig{
			APIKey:     cfg.Engines.OpenAIAPIKey,
			BaseURL:    cfg.Engines.OpenAIBaseURL,
			Model:      d.RecognizerModel,
			MaxRetries: d.MaxRetries,
			Timeout:    cfg.Engines.EngineTimeout,
		})
	case "presidio":
		recognizer, err = pii.NewPresidioRecognizer(d.PresidioURL, d.Language, cfg.Engines.EngineTimeout)
	default:
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Str("recognizer", d.Recognizer).Msg("Recognizer unavailable, using pattern detection only")
		return nil
	}
	return recognizer
}

func detectionConfig(cfg *config.Config, log zerolog.Logger) pii.Config {
	dc := pii.DefaultConfig()
	dc.DefaultFloor = cfg.Detection.DefaultFloor
	dc.Tolerance = cfg.Fusion.Tolerance
	dc.Floors = make(map[pii.EntityType]float64, len(cfg.Detection.Floors))
	for name, floor := range cfg.Detection.Floors {
		t, ok := pii.ParseEntityType(name)
		if !ok {
			log.Warn().Str("type", name).Msg("Ignoring confidence floor for unknown entity type")
			continue
		}
		dc.Floors[t] = floor
	}
	return dc
}

// buildPipeline wires the configured engines, detector and masker.
func buildPipeline(ctx context.Context, cfg *config.Config, options pipeline.Options, log zerolog.Logger) (*pipeline.Pipeline, error) {
	fill, err := mask.ParseColor(cfg.Masking.Color)
	if err != nil {
		return nil, err
	}

	registry := buildRegistry(ctx, cfg)
	if registry.Available() == 0 {
		log.Warn().Msg("No OCR engine is available; every image will yield no text")
	}

	extractor := ocr.NewExtractor(registry, ocr.NewFuser(fusionConfig(cfg)))
	detector := pii.NewDetector(
		pii.DefaultLibrary(cfg.Detection.ExtraLabels...),
		buildRecognizer(cfg, log),
		detectionConfig(cfg, log),
	)
	return pipeline.New(extractor, detector, mask.NewMasker(fill), options), nil
}
