package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"redactor/internal/logger"
)

// Known engine identifiers accepted in the preference order.
var knownEngines = map[string]bool{
	"document-ai":   true,
	"google-vision": true,
	"tesseract":     true,
	"openai-vision": true,
	"gemini-vision": true,
}

type Config struct {
	Engines   EnginesConfig   `yaml:"engines"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Detection DetectionConfig `yaml:"detection"`
	Masking   MaskingConfig   `yaml:"masking"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`

	// Optional persistence and async processing
	DatabaseURL       string `yaml:"database_url"`
	RedisURL          string `yaml:"redis_url"`
	QueueName         string `yaml:"queue_name"`
	WorkerConcurrency int    `yaml:"worker_concurrency"`

	// Batch reporting
	BatchWorkers         int    `yaml:"batch_workers"`
	GoogleSheetURL       string `yaml:"google_sheet_url"`
	GoogleSheetWorksheet string `yaml:"google_sheet_worksheet"`

	// Logging Configuration
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogTimeFormat string `yaml:"log_time_format"`
	LogOutput     string `yaml:"log_output"`
}

// EnginesConfig selects which recognition backends are attempted at startup.
// An enabled engine without credentials is recorded as unavailable, not an error.
type EnginesConfig struct {
	DocumentAI          bool          `yaml:"document_ai"`
	GoogleVision        bool          `yaml:"google_vision"`
	Tesseract           bool          `yaml:"tesseract"`
	OpenAIVision        bool          `yaml:"openai_vision"`
	GeminiVision        bool          `yaml:"gemini_vision"`
	TesseractLanguage   string        `yaml:"tesseract_language"`
	OpenAIAPIKey        string        `yaml:"-"`
	OpenAIBaseURL       string        `yaml:"openai_base_url"`
	OpenAIVisionModel   string        `yaml:"openai_vision_model"`
	GeminiAPIKey        string        `yaml:"-"`
	GeminiModel         string        `yaml:"gemini_model"`
	VLMConfidence       float64       `yaml:"vlm_confidence"`
	GoogleCloudProject  string        `yaml:"google_cloud_project"`
	GoogleCloudLocation string        `yaml:"google_cloud_location"`
	ProcessorID         string        `yaml:"document_ai_processor_id"`
	ProcessorVersion    string        `yaml:"document_ai_processor_version"`
	EngineTimeout       time.Duration `yaml:"engine_timeout"`
}

// FusionConfig carries the tunable constants of the merge step and the
// text-quality heuristic.
type FusionConfig struct {
	Tolerance        int      `yaml:"tolerance"`
	EnginePreference []string `yaml:"engine_preference"`
	MinTextLength    int      `yaml:"min_text_length"`
	MinUniqueRunes   int      `yaml:"min_unique_runes"`
	MaxSpaceRatio    float64  `yaml:"max_space_ratio"`
	MaxPunctRatio    float64  `yaml:"max_punct_ratio"`
}

type DetectionConfig struct {
	// Recognizer is one of "openai", "presidio" or "none".
	Recognizer      string             `yaml:"recognizer"`
	RecognizerModel string             `yaml:"recognizer_model"`
	PresidioURL     string             `yaml:"presidio_url"`
	Language        string             `yaml:"language"`
	DefaultFloor    float64            `yaml:"default_floor"`
	Floors          map[string]float64 `yaml:"floors"`
	ExtraLabels     []string           `yaml:"extra_labels"`
	MaxRetries      int                `yaml:"max_retries"`
}

type MaskingConfig struct {
	Color      string `yaml:"color"`
	Preview    bool   `yaml:"preview"`
	Comparison bool   `yaml:"comparison"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	JWTSecret      string `yaml:"-"`
}

type StorageConfig struct {
	// Backend is "local" or "minio".
	Backend        string `yaml:"backend"`
	UploadDir      string `yaml:"upload_dir"`
	MinIOEndpoint  string `yaml:"minio_endpoint"`
	MinIOAccessKey string `yaml:"-"`
	MinIOSecretKey string `yaml:"-"`
	MinIOBucket    string `yaml:"minio_bucket"`
	MinIOUseSSL    bool   `yaml:"minio_use_ssl"`
}

// Default returns the configuration used before the YAML file and the
// environment are applied.
func Default() *Config {
	return &Config{
		Engines: EnginesConfig{
			DocumentAI:          true,
			GoogleVision:        true,
			Tesseract:           true,
			OpenAIVision:        false,
			GeminiVision:        false,
			TesseractLanguage:   "eng",
			OpenAIVisionModel:   "gpt-4o-mini",
			GeminiModel:         "gemini-1.5-flash",
			VLMConfidence:       0.8,
			GoogleCloudLocation: "us",
			EngineTimeout:       60 * time.Second,
		},
		Fusion: FusionConfig{
			Tolerance:        20,
			EnginePreference: []string{"document-ai", "google-vision", "tesseract", "openai-vision", "gemini-vision"},
			MinTextLength:    3,
			MinUniqueRunes:   3,
			MaxSpaceRatio:    0.3,
			MaxPunctRatio:    0.2,
		},
		Detection: DetectionConfig{
			Recognizer:      "none",
			RecognizerModel: "gpt-4o-mini",
			Language:        "en",
			DefaultFloor:    0.5,
			Floors:          map[string]float64{"person": 0.6},
			MaxRetries:      2,
		},
		Masking: MaskingConfig{
			Color: "black",
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			MaxUploadBytes: 20 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Backend:     "local",
			UploadDir:   "uploads",
			MinIOBucket: "redactor",
		},
		QueueName:            "redaction",
		WorkerConcurrency:    2,
		BatchWorkers:         4,
		GoogleSheetWorksheet: "Redactions",
		LogLevel:             "info",
		LogFormat:            "console",
		LogTimeFormat:        "2006-01-02T15:04:05Z07:00",
		LogOutput:            "stderr",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// REDACTOR_CONFIG and the environment, in that order of precedence (lowest first).
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv("REDACTOR_CONFIG"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	e := &c.Engines
	e.DocumentAI = getEnvBool("ENGINE_DOCUMENT_AI", e.DocumentAI)
	e.GoogleVision = getEnvBool("ENGINE_GOOGLE_VISION", e.GoogleVision)
	e.Tesseract = getEnvBool("ENGINE_TESSERACT", e.Tesseract)
	e.OpenAIVision = getEnvBool("ENGINE_OPENAI_VISION", e.OpenAIVision)
	e.GeminiVision = getEnvBool("ENGINE_GEMINI_VISION", e.GeminiVision)
	e.TesseractLanguage = getEnv("TESSERACT_LANGUAGE", e.TesseractLanguage)
	e.OpenAIAPIKey = getEnv("OPENAI_API_KEY", e.OpenAIAPIKey)
	e.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", e.OpenAIBaseURL)
	e.OpenAIVisionModel = getEnv("OPENAI_VISION_MODEL", e.OpenAIVisionModel)
	e.GeminiAPIKey = getEnv("GEMINI_API_KEY", e.GeminiAPIKey)
	e.GeminiModel = getEnv("GEMINI_MODEL", e.GeminiModel)
	e.VLMConfidence = getEnvFloat("VLM_DEFAULT_CONFIDENCE", e.VLMConfidence)
	e.GoogleCloudProject = getEnv("GOOGLE_CLOUD_PROJECT", e.GoogleCloudProject)
	e.GoogleCloudLocation = getEnv("GOOGLE_CLOUD_LOCATION", e.GoogleCloudLocation)
	e.ProcessorID = getEnv("DOCUMENT_AI_PROCESSOR_ID", e.ProcessorID)
	e.ProcessorVersion = getEnv("DOCUMENT_AI_PROCESSOR_VERSION", e.ProcessorVersion)
	e.EngineTimeout = getEnvDuration("ENGINE_TIMEOUT", e.EngineTimeout)

	f := &c.Fusion
	f.Tolerance = getEnvInt("FUSION_TOLERANCE", f.Tolerance)
	f.EnginePreference = getEnvList("FUSION_ENGINE_PREFERENCE", f.EnginePreference)

	d := &c.Detection
	d.Recognizer = strings.ToLower(getEnv("PII_RECOGNIZER", d.Recognizer))
	d.RecognizerModel = getEnv("PII_RECOGNIZER_MODEL", d.RecognizerModel)
	d.PresidioURL = getEnv("PRESIDIO_URL", d.PresidioURL)
	d.Language = getEnv("PII_LANGUAGE", d.Language)
	d.DefaultFloor = getEnvFloat("PII_MIN_CONFIDENCE", d.DefaultFloor)
	d.ExtraLabels = getEnvList("PII_EXTRA_LABELS", d.ExtraLabels)

	c.Masking.Color = getEnv("MASK_COLOR", c.Masking.Color)
	c.Masking.Preview = getEnvBool("MASK_PREVIEW", c.Masking.Preview)
	c.Masking.Comparison = getEnvBool("MASK_COMPARISON", c.Masking.Comparison)

	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.Server.MaxUploadBytes)))
	c.Server.JWTSecret = getEnv("API_JWT_SECRET", c.Server.JWTSecret)

	s := &c.Storage
	s.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", s.Backend))
	s.UploadDir = getEnv("UPLOAD_DIR", s.UploadDir)
	s.MinIOEndpoint = getEnv("MINIO_ENDPOINT", s.MinIOEndpoint)
	s.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", s.MinIOAccessKey)
	s.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", s.MinIOSecretKey)
	s.MinIOBucket = getEnv("MINIO_BUCKET", s.MinIOBucket)
	s.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", s.MinIOUseSSL)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.QueueName = getEnv("QUEUE_NAME", c.QueueName)
	c.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.BatchWorkers = getEnvInt("BATCH_WORKERS", c.BatchWorkers)
	c.GoogleSheetURL = getEnv("GOOGLE_SHEET_URL", c.GoogleSheetURL)
	c.GoogleSheetWorksheet = getEnv("GOOGLE_SHEET_WORKSHEET", c.GoogleSheetWorksheet)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogTimeFormat = getEnv("LOG_TIME_FORMAT", c.LogTimeFormat)
	c.LogOutput = getEnv("LOG_OUTPUT", c.LogOutput)
}

func (c *Config) validate() error {
	if c.Fusion.Tolerance < 0 {
		return fmt.Errorf("FUSION_TOLERANCE must not be negative, got %d", c.Fusion.Tolerance)
	}
	if len(c.Fusion.EnginePreference) == 0 {
		return fmt.Errorf("FUSION_ENGINE_PREFERENCE must name at least one engine")
	}
	for _, name := range c.Fusion.EnginePreference {
		if !knownEngines[name] {
			return fmt.Errorf("unknown engine %q in FUSION_ENGINE_PREFERENCE", name)
		}
	}
	if c.Detection.DefaultFloor < 0 || c.Detection.DefaultFloor > 1 {
		return fmt.Errorf("PII_MIN_CONFIDENCE must be within [0,1], got %.2f", c.Detection.DefaultFloor)
	}
	for entityType, floor := range c.Detection.Floors {
		if floor < 0 || floor > 1 {
			return fmt.Errorf("confidence floor for %s must be within [0,1], got %.2f", entityType, floor)
		}
	}
	switch c.Detection.Recognizer {
	case "none", "openai", "presidio":
	default:
		return fmt.Errorf("PII_RECOGNIZER must be one of none, openai, presidio; got %q", c.Detection.Recognizer)
	}
	if c.Engines.VLMConfidence < 0 || c.Engines.VLMConfidence > 1 {
		return fmt.Errorf("VLM_DEFAULT_CONFIDENCE must be within [0,1], got %.2f", c.Engines.VLMConfidence)
	}
	if !validMaskColor(c.Masking.Color) {
		return fmt.Errorf("MASK_COLOR must be black, white, gray or #rrggbb; got %q", c.Masking.Color)
	}
	switch c.Storage.Backend {
	case "local", "minio":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or minio; got %q", c.Storage.Backend)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func validMaskColor(color string) bool {
	switch strings.ToLower(color) {
	case "black", "white", "gray", "grey":
		return true
	}
	return hexColor.MatchString(color)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
