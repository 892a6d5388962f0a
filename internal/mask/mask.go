// Package mask draws redactions, detection previews and comparison views.
package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"redactor/internal/logger"
	"redactor/internal/pii"
)

// ErrInvalidColor is returned for a mask colour that is neither a known name nor #rrggbb.
var ErrInvalidColor = errors.New("invalid mask color")

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ParseColor accepts black, white, gray (or grey) and #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); {
	case v == "" || v == "black":
		return color.RGBA{A: 0xff}, nil
	case v == "white":
		return color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, nil
	case v == "gray" || v == "grey":
		return color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}, nil
	case hexColor.MatchString(v):
		n, err := strconv.ParseUint(v[1:], 16, 32)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("%w: %s", ErrInvalidColor, s)
		}
		return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
	default:
		return color.RGBA{}, fmt.Errorf("%w: %s", ErrInvalidColor, s)
	}
}

// Masker fills entity boxes with an opaque colour. It is safe for concurrent use.
type Masker struct {
	fill color.RGBA
	log  zerolog.Logger
}

// NewMasker creates a masker filling with fill.
func NewMasker(fill color.RGBA) *Masker {
	fill.A = 0xff
	return &Masker{
		fill: fill,
		log:  logger.WithComponent("masker"),
	}
}

// Apply returns a copy of img with every entity box filled. Boxes are clipped
// to the image. With no entities img itself is returned.
func (m *Masker) Apply(img image.Image, entities []pii.Entity) image.Image {
	if len(entities) == 0 {
		return img
	}

	out := Clone(img)
	src := image.NewUniform(m.fill)
	masked := 0
	for _, e := range entities {
		r := e.BBox.Rect().Canon().Intersect(out.Bounds())
		if r.Empty() {
			m.log.Debug().
				Str("entity_type", string(e.Type)).
				Ints("bbox", e.BBox[:]).
				Msg("Entity box outside image, skipped")
			continue
		}
		draw.Draw(out, r, src, image.Point{}, draw.Src)
		masked++
	}

	m.log.Debug().
		Int("entities", len(entities)).
		Int("masked", masked).
		Msg("Masking applied")
	return out
}

// Clone copies img into a new RGBA image with the same bounds.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
