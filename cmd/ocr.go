package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"redactor/internal/imageio"
	"redactor/internal/logger"
	"redactor/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Extract located text from an image with every available OCR engine",
	Long: `Run every available OCR engine on an image and fuse their results into one
set of text blocks. No detection or masking is performed.

Blocks whose top-left corners lie within FUSION_TOLERANCE pixels of each other
are treated as the same region; the block from the most preferred engine
(FUSION_ENGINE_PREFERENCE) is kept.

Google engines require:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID`,
	Example: `  # Print the fused text
  redactor ocr scan.png

  # Print blocks with coordinates as JSON
  redactor ocr scan.png --json -o blocks.json

  # Include per-engine metadata
  redactor ocr scan.png --metadata`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	FileName     string            `json:"file_name"`
	FileSize     int64             `json:"file_size"`
	Text         string            `json:"text"`
	Blocks       []ocr.TextBlock   `json:"blocks"`
	QualityScore float64           `json:"quality_score"`
	EnginesUsed  []string          `json:"engines_used"`
	EngineErrors map[string]string `json:"engine_errors,omitempty"`
	Success      bool              `json:"success"`
	Duration     string            `json:"processing_duration"`
	ProcessedAt  time.Time         `json:"processed_at"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	log.Info().
		Str("file", imagePath).
		Str("output", outputPath).
		Bool("metadata", includeMetadata).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	fileInfo, err := validateImageFile(imagePath, log)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	registry := buildRegistry(ctx, cfg)
	defer registry.Close()
	if registry.Available() == 0 {
		return fmt.Errorf("no OCR engine is available. Run 'redactor engines' to see why")
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}
	img, _, err := imageio.Decode(data)
	if err != nil {
		return handleRedactError(err, log)
	}

	extractor := ocr.NewExtractor(registry, ocr.NewFuser(fusionConfig(cfg)))
	result := extractor.Extract(ctx, img)
	if ctx.Err() != nil {
		return handleRedactError(ctx.Err(), log)
	}

	log.Info().
		Int("blocks", len(result.Blocks)).
		Float64("quality", result.QualityScore).
		Strs("engines_used", result.EnginesUsed).
		Dur("duration", result.Duration).
		Msg("OCR processing completed")

	return outputResults(result, fileInfo, outputPath, jsonOutput, includeMetadata, log)
}

// outputResults formats and outputs the OCR results
func outputResults(result *ocr.ExtractionResult, fileInfo os.FileInfo, outputPath string, jsonOutput, includeMetadata bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		encoded, err := json.MarshalIndent(OCROutput{
			FileName:     filepath.Base(fileInfo.Name()),
			FileSize:     fileInfo.Size(),
			Text:         result.FullText,
			Blocks:       result.Blocks,
			QualityScore: result.QualityScore,
			EnginesUsed:  result.EnginesUsed,
			EngineErrors: result.EngineErrors,
			Success:      result.Success,
			Duration:     result.Duration.String(),
			ProcessedAt:  time.Now(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		outputData = encoded
	} else {
		var output strings.Builder
		if includeMetadata {
			fmt.Fprintf(&output, "=== OCR Results for %s ===\n", filepath.Base(fileInfo.Name()))
			fmt.Fprintf(&output, "File size: %d bytes\n", fileInfo.Size())
			fmt.Fprintf(&output, "Text blocks: %d\n", len(result.Blocks))
			fmt.Fprintf(&output, "Quality score: %.2f\n", result.QualityScore)
			fmt.Fprintf(&output, "Engines used: %s\n", strings.Join(result.EnginesUsed, ", "))
			for name, msg := range result.EngineErrors {
				fmt.Fprintf(&output, "Engine %s failed: %s\n", name, msg)
			}
			fmt.Fprintf(&output, "Processing time: %v\n", result.Duration)
			output.WriteString("\n=== Extracted Text ===\n\n")
		}
		output.WriteString(result.FullText)
		output.WriteString("\n")
		outputData = []byte(output.String())
	}

	if outputPath == "" {
		if _, err := os.Stdout.Write(outputData); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	return writeOutputFile(outputPath, outputData, log)
}
