package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"redactor/internal/imageio"
	"redactor/internal/logger"
	"redactor/internal/pipeline"
	"redactor/internal/report"
	"redactor/internal/storage"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Redact every image in a folder",
	Long: `Run the redaction pipeline on every image in a folder using a pool of
parallel workers and write the masked copies to an output folder.

A summary row per file can be written to an XLSX workbook (--xlsx) and
appended to a Google Sheet (--sheet).

Optional environment variables:
  BATCH_WORKERS - Number of parallel workers (default: 4)
  GOOGLE_SHEET_URL - Google Sheets URL used with --sheet
  GOOGLE_SHEET_WORKSHEET - Worksheet name (default: Redactions)`,
	Example: `  # Redact a folder of scans
  redactor batch ./scans --out ./masked

  # Also write an XLSX report
  redactor batch ./scans --out ./masked --xlsx report.xlsx

  # Append the report to a Google Sheet
  redactor batch ./scans --sheet`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// BatchResult represents the result of processing a single image
type BatchResult struct {
	Path       string
	Filename   string
	Result     *pipeline.Result
	MaskedFile string
	Error      error
	Index      int
}

// WorkerJob represents an image processing job
type WorkerJob struct {
	FilePath string
	Index    int
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("out", "masked", "Output folder for masked images")
	batchCmd.Flags().String("xlsx", "", "Write an XLSX report to this path")
	batchCmd.Flags().Bool("sheet", false, "Append the report to GOOGLE_SHEET_URL")
	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (default: BATCH_WORKERS)")
	batchCmd.Flags().Int("timeout", 1800, "Overall timeout in seconds")
	batchCmd.Flags().Bool("verbose", false, "Show detailed processing information")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	outDir, _ := cmd.Flags().GetString("out")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	toSheet, _ := cmd.Flags().GetBool("sheet")
	numWorkers, _ := cmd.Flags().GetInt("workers")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if numWorkers <= 0 {
		numWorkers = cfg.BatchWorkers
	}
	if toSheet && cfg.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required with --sheet")
	}

	images, err := findImageFiles(folderPath, outDir)
	if err != nil {
		return fmt.Errorf("failed to find image files: %w", err)
	}
	if len(images) == 0 {
		fmt.Println("No image files found in folder.")
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	log.Info().
		Str("folder", folderPath).
		Str("out", outDir).
		Int("files", len(images)).
		Int("workers", numWorkers).
		Msg("Starting batch redaction")

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	p, err := buildPipeline(ctx, cfg, pipeline.Options{}, log)
	if err != nil {
		return err
	}
	defer p.Extractor().Registry().Close()

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         BATCH REDACTION")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder: %s\n", folderPath)
	fmt.Printf("Processing %d images with %d parallel workers...\n\n", len(images), numWorkers)

	results := processImagesInParallel(ctx, p, images, outDir, numWorkers, log, verbose)

	processedAt := time.Now()
	rows := make([]report.Row, len(results))
	var redacted, clean, failed, entities int
	for i, r := range results {
		rows[i] = report.NewRow(r.Filename, r.Result, r.MaskedFile, r.Error, processedAt)
		switch rows[i].Status {
		case report.StatusRedacted:
			redacted++
		case report.StatusClean:
			clean++
		default:
			failed++
		}
		entities += rows[i].Entities
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 SUMMARY")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Redacted: %d (%d entities)\n", redacted, entities)
	fmt.Printf("No PII found: %d\n", clean)
	if failed > 0 {
		fmt.Printf("Failed: %d\n", failed)
	}

	if xlsxPath != "" {
		if err := report.SaveXLSX(xlsxPath, rows); err != nil {
			return fmt.Errorf("failed to write XLSX report: %w", err)
		}
		fmt.Printf("XLSX report: %s\n", xlsxPath)
	}

	if toSheet {
		writer, err := report.NewSheetsWriter(ctx, cfg.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets writer: %w", err)
		}
		if err := writer.Append(ctx, cfg.GoogleSheetWorksheet, rows); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
		fmt.Printf("Sheet: %s (%d rows)\n", cfg.GoogleSheetWorksheet, len(rows))
	}
	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("total", len(images)).
		Int("redacted", redacted).
		Int("clean", clean).
		Int("failed", failed).
		Msg("Batch redaction completed")

	return nil
}

// findImageFiles returns the images under folderPath in lexical order,
// skipping the output folder.
func findImageFiles(folderPath, outDir string) ([]string, error) {
	absOut, _ := filepath.Abs(outDir)
	var images []string
	err := filepath.WalkDir(folderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(path); abs == absOut {
				return filepath.SkipDir
			}
			return nil
		}
		if imageio.IsImageExtension(d.Name()) {
			images = append(images, path)
		}
		return nil
	})
	sort.Strings(images)
	return images, err
}

func processSingleImage(ctx context.Context, p *pipeline.Pipeline, path, outDir string) BatchResult {
	result := BatchResult{Path: path, Filename: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = fmt.Errorf("failed to read file: %w", err)
		return result
	}

	res, err := p.Process(ctx, pipeline.Input{Name: result.Filename, Data: data})
	if err != nil {
		result.Error = err
		return result
	}
	result.Result = res

	masked := filepath.Join(outDir, storage.VariantName(result.Filename, storage.KindMasked, imageio.Extension(res.Format)))
	if err := os.WriteFile(masked, res.Masked, 0o644); err != nil {
		result.Error = fmt.Errorf("failed to write masked image: %w", err)
		return result
	}
	result.MaskedFile = masked
	return result
}

// processImagesInParallel processes images using a worker pool pattern
func processImagesInParallel(ctx context.Context, p *pipeline.Pipeline, images []string, outDir string, numWorkers int, log zerolog.Logger, verbose bool) []BatchResult {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	jobs := make(chan WorkerJob, len(images))
	results := make([]BatchResult, len(images))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				log.Debug().
					Int("worker", workerID).
					Str("file", job.FilePath).
					Int("index", job.Index+1).
					Msg("Worker processing image")

				result := processSingleImage(ctx, p, job.FilePath, outDir)
				result.Index = job.Index
				results[job.Index] = result

				mu.Lock()
				processedCount++
				fmt.Printf("[%d/%d] %s - ", processedCount, len(images), result.Filename)
				switch {
				case result.Error != nil:
					fmt.Printf("failed (%s)", result.Error.Error())
				case result.Result.Statistics.EntityCount == 0:
					fmt.Print("no PII found")
				default:
					fmt.Printf("%d entities masked", result.Result.Statistics.EntityCount)
				}
				fmt.Println()
				mu.Unlock()

				if verbose && result.Result != nil {
					log.Info().
						Str("file", result.Filename).
						Str("summary", result.Result.Statistics.String()).
						Msg("Image processed")
				}
			}
		}(w)
	}

	for i, path := range images {
		jobs <- WorkerJob{FilePath: path, Index: i}
	}
	close(jobs)

	wg.Wait()
	return results
}
