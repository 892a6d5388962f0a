package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"

	"redactor/internal/imageio"
	"redactor/internal/logger"
)

// GoogleVisionEngine recognizes text with Google Cloud Vision document text
// detection. Each paragraph becomes one text block.
type GoogleVisionEngine struct {
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
	log     zerolog.Logger
}

// NewGoogleVisionEngine creates the engine with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionEngine(ctx context.Context, timeout time.Duration) (*GoogleVisionEngine, error) {
	const op = "NewGoogleVisionEngine"

	opts := googleClientOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, ErrEngineUnavailable, fmt.Sprintf("failed to create Vision client: %v", err))
	}

	return NewGoogleVisionEngineWithClient(client, timeout), nil
}

// NewGoogleVisionEngineWithClient creates the engine with an explicit client (for testing).
func NewGoogleVisionEngineWithClient(client *vision.ImageAnnotatorClient, timeout time.Duration) *GoogleVisionEngine {
	return &GoogleVisionEngine{
		client:  client,
		timeout: timeout,
		log:     logger.WithComponent("google-vision"),
	}
}

func (g *GoogleVisionEngine) Name() string { return EngineGoogleVision }

// Recognize sends img to the Vision API and converts paragraphs to text blocks.
func (g *GoogleVisionEngine) Recognize(ctx context.Context, img image.Image) ([]TextBlock, error) {
	const op = "GoogleVision.Recognize"

	content, err := imageio.EncodePNG(img)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode image")
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, classifyCloudError(op, err, "Vision API")
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrInvalidEngineOutput, "no response from Vision API")
	}

	imgResp := resp.Responses[0]
	if imgResp.Error != nil && imgResp.Error.Message != "" {
		return nil, WrapOCRError(op, ErrRecognitionFailed, fmt.Sprintf("Vision API error: %s", imgResp.Error.Message))
	}

	blocks := visionParagraphBlocks(imgResp.FullTextAnnotation)
	g.log.Debug().Int("blocks", len(blocks)).Msg("Vision API response processed")
	return blocks, nil
}

// visionParagraphBlocks converts a full text annotation into one block per paragraph.
func visionParagraphBlocks(annotation *visionpb.TextAnnotation) []TextBlock {
	if annotation == nil {
		return nil
	}

	var blocks []TextBlock
	for _, page := range annotation.Pages {
		for _, block := range page.Blocks {
			for _, paragraph := range block.Paragraphs {
				text := paragraphText(paragraph)
				if text == "" {
					continue
				}
				points := polygonPoints(paragraph.BoundingBox)
				blocks = append(blocks, NewPolygonBlock(text, float64(paragraph.Confidence), EngineGoogleVision, points))
			}
		}
	}
	return blocks
}

// paragraphText joins symbols into words and words with the detected breaks.
func paragraphText(paragraph *visionpb.Paragraph) string {
	var sb strings.Builder
	for _, word := range paragraph.Words {
		for _, symbol := range word.Symbols {
			sb.WriteString(symbol.Text)
			if symbol.Property == nil || symbol.Property.DetectedBreak == nil {
				continue
			}
			switch symbol.Property.DetectedBreak.Type {
			case visionpb.TextAnnotation_DetectedBreak_SPACE,
				visionpb.TextAnnotation_DetectedBreak_SURE_SPACE,
				visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE,
				visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
				sb.WriteByte(' ')
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func polygonPoints(poly *visionpb.BoundingPoly) []image.Point {
	if poly == nil {
		return nil
	}
	points := make([]image.Point, 0, len(poly.Vertices))
	for _, v := range poly.Vertices {
		points = append(points, image.Pt(int(v.X), int(v.Y)))
	}
	return points
}

// Close closes the underlying Vision client.
func (g *GoogleVisionEngine) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
