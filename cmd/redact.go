package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"redactor/internal/imageio"
	"redactor/internal/logger"
	"redactor/internal/ocr"
	"redactor/internal/pii"
	"redactor/internal/pipeline"
	"redactor/internal/storage"
)

var redactCmd = &cobra.Command{
	Use:   "redact [image-file]",
	Short: "Detect personal data in an image and write a masked copy",
	Long: `Run the full redaction pipeline on one image: text extraction with every
available OCR engine, fusion of their results, PII detection and masking.

The masked image is written next to the input as <name>_masked.<ext> unless
--output is given. An image without any detected PII is copied unchanged.

Engines are selected with ENGINE_* variables; see 'redactor engines' for the
status of each one. Detection uses PII_RECOGNIZER (openai, presidio or none)
and falls back to pattern matching when the recognizer is unavailable.`,
	Example: `  # Mask an ID card scan
  redactor redact pan_card.jpg

  # Write the result elsewhere and keep a detection preview
  redactor redact pan_card.jpg -o out/pan.jpg --preview

  # Print the detection summary as JSON
  redactor redact pan_card.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRedact,
}

// RedactOutput is the --json summary of one redaction.
type RedactOutput struct {
	FileName       string              `json:"file_name"`
	MaskedFile     string              `json:"masked_file"`
	PreviewFile    string              `json:"preview_file,omitempty"`
	ComparisonFile string              `json:"comparison_file,omitempty"`
	Entities       []pii.Entity        `json:"detected_entities"`
	ExtractedText  string              `json:"extracted_text"`
	Statistics     pipeline.Statistics `json:"statistics"`
}

func init() {
	rootCmd.AddCommand(redactCmd)

	redactCmd.Flags().StringP("output", "o", "", "Masked image path (default: <name>_masked.<ext>)")
	redactCmd.Flags().Bool("preview", false, "Also write a preview with detected regions outlined")
	redactCmd.Flags().Bool("compare", false, "Also write a side-by-side original/masked comparison")
	redactCmd.Flags().Bool("json", false, "Print the detection summary as JSON")
	redactCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runRedact(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("redact")

	outputPath, _ := cmd.Flags().GetString("output")
	withPreview, _ := cmd.Flags().GetBool("preview")
	withComparison, _ := cmd.Flags().GetBool("compare")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]
	if _, err := validateImageFile(imagePath, log); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	p, err := buildPipeline(ctx, cfg, pipeline.Options{Preview: withPreview, Comparison: withComparison}, log)
	if err != nil {
		return err
	}
	defer p.Extractor().Registry().Close()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	result, err := p.Process(ctx, pipeline.Input{Name: filepath.Base(imagePath), Data: data})
	if err != nil {
		return handleRedactError(err, log)
	}

	out := RedactOutput{
		FileName:      filepath.Base(imagePath),
		Entities:      result.Detection.Entities,
		ExtractedText: result.Extraction.FullText,
		Statistics:    result.Statistics,
	}

	if outputPath == "" {
		outputPath = storage.VariantName(imagePath, storage.KindMasked, imageio.Extension(result.Format))
	}
	if err := writeOutputFile(outputPath, result.Masked, log); err != nil {
		return err
	}
	out.MaskedFile = outputPath

	rendered := imageio.Extension(imageio.OutputFormat(result.Format))
	if result.Preview != nil {
		out.PreviewFile = storage.VariantName(outputPath, storage.KindPreview, rendered)
		if err := writeOutputFile(out.PreviewFile, result.Preview, log); err != nil {
			return err
		}
	}
	if result.Comparison != nil {
		out.ComparisonFile = storage.VariantName(outputPath, storage.KindComparison, rendered)
		if err := writeOutputFile(out.ComparisonFile, result.Comparison, log); err != nil {
			return err
		}
	}

	if jsonOutput {
		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(encoded))
		return nil
	}

	printRedactSummary(out)
	return nil
}

func printRedactSummary(out RedactOutput) {
	stats := out.Statistics
	fmt.Printf("File: %s\n", out.FileName)
	fmt.Printf("Text blocks: %d (OCR quality %.2f, engines: %v)\n", stats.TotalBlocks, stats.OCRScore, stats.EnginesUsed)
	fmt.Printf("Detection: %s", stats.DetectionMethod)
	if stats.Degradation != "" {
		fmt.Printf(" (%s)", stats.Degradation)
	}
	fmt.Println()
	fmt.Printf("PII entities: %d\n", stats.EntityCount)
	for _, e := range out.Entities {
		fmt.Printf("  %-12s %.2f  %v  %q\n", e.Type, e.Confidence, e.BBox, e.Text)
	}
	fmt.Printf("Masked image: %s\n", out.MaskedFile)
	if out.PreviewFile != "" {
		fmt.Printf("Preview: %s\n", out.PreviewFile)
	}
	if out.ComparisonFile != "" {
		fmt.Printf("Comparison: %s\n", out.ComparisonFile)
	}
}

func writeOutputFile(path string, data []byte, log zerolog.Logger) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().Err(err).Str("output_file", path).Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().Str("output_file", path).Int("bytes", len(data)).Msg("Output written")
	return nil
}

// handleRedactError provides user-friendly error messages for pipeline failures
func handleRedactError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Redaction failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large (maximum 20MB)")
	case errors.Is(err, ocr.ErrEmptyImage):
		return fmt.Errorf("image is empty")
	case errors.Is(err, ocr.ErrUndecodableImage):
		return fmt.Errorf("could not read file as an image. Supported formats: PNG, JPEG, GIF, BMP, TIFF, WEBP")
	default:
		return fmt.Errorf("redaction failed: %w", err)
	}
}
