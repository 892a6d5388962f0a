package ocr

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"redactor/internal/imageio"
	"redactor/internal/logger"
)

// DocumentAIConfig holds Document AI processor configuration.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

// DocumentAIEngine runs a Document AI OCR processor and returns one text block
// per layout line.
type DocumentAIEngine struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIEngine creates the engine with credentials from environment.
// Requires a project and processor ID; the location defaults to "us".
func NewDocumentAIEngine(ctx context.Context, config DocumentAIConfig) (*DocumentAIEngine, error) {
	const op = "NewDocumentAIEngine"

	if config.ProjectID == "" {
		config.ProjectID = getEnvVar("GOOGLE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	}
	if config.ProcessorID == "" {
		config.ProcessorID = getEnvVar("GOOGLE_PROCESSOR_ID", "DOCUMENT_AI_PROCESSOR_ID")
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrEngineUnavailable, "GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID are required")
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	credentials := googleClientOptions()
	clientOptions = append(clientOptions, credentials...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(credentials) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, ErrEngineUnavailable, fmt.Sprintf("failed to create Document AI client for location %s: %v", config.Location, err))
	}

	return NewDocumentAIEngineWithClient(config, client), nil
}

// NewDocumentAIEngineWithClient creates the engine with explicit config and client (for testing).
func NewDocumentAIEngineWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIEngine {
	return &DocumentAIEngine{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

func (d *DocumentAIEngine) Name() string { return EngineDocumentAI }

// Recognize sends img as a PNG raw document to the processor.
func (d *DocumentAIEngine) Recognize(ctx context.Context, img image.Image) ([]TextBlock, error) {
	const op = "DocumentAI.Recognize"

	content, err := imageio.EncodePNG(img)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode image")
	}

	processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: "image/png",
			},
		},
	}

	resp, err := d.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, classifyCloudError(op, err, "Document AI")
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrInvalidEngineOutput, "no document in response")
	}

	blocks := documentLineBlocks(resp.Document)
	d.log.Debug().
		Int("pages", len(resp.Document.Pages)).
		Int("blocks", len(blocks)).
		Msg("Document AI response processed")
	return blocks, nil
}

// processorName constructs the full processor resource name.
func (d *DocumentAIEngine) processorName() string {
	if d.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			d.config.ProjectID, d.config.Location, d.config.ProcessorID, d.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// documentLineBlocks converts the lines of every page into text blocks.
// Normalized vertices are scaled by the page dimension.
func documentLineBlocks(doc *documentaipb.Document) []TextBlock {
	var blocks []TextBlock
	for _, page := range doc.Pages {
		var width, height float32
		if page.Dimension != nil {
			width, height = page.Dimension.Width, page.Dimension.Height
		}
		for _, line := range page.Lines {
			layout := line.GetLayout()
			if layout == nil {
				continue
			}
			text := strings.TrimSpace(anchorText(doc.Text, layout.TextAnchor))
			if text == "" {
				continue
			}
			points := layoutPoints(layout.BoundingPoly, width, height)
			blocks = append(blocks, NewPolygonBlock(text, float64(layout.Confidence), EngineDocumentAI, points))
		}
	}
	return blocks
}

// anchorText resolves a text anchor against the document text.
func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range anchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		sb.WriteString(text[start:end])
	}
	return sb.String()
}

func layoutPoints(poly *documentaipb.BoundingPoly, width, height float32) []image.Point {
	if poly == nil {
		return nil
	}
	if len(poly.Vertices) > 0 {
		points := make([]image.Point, 0, len(poly.Vertices))
		for _, v := range poly.Vertices {
			points = append(points, image.Pt(int(v.X), int(v.Y)))
		}
		return points
	}
	if width == 0 || height == 0 {
		return nil
	}
	points := make([]image.Point, 0, len(poly.NormalizedVertices))
	for _, v := range poly.NormalizedVertices {
		x := int(math.Round(float64(v.X * width)))
		y := int(math.Round(float64(v.Y * height)))
		points = append(points, image.Pt(x, y))
	}
	return points
}

// Close closes the underlying Document AI client.
func (d *DocumentAIEngine) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
