package mask

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"redactor/internal/pii"
)

// Sensitivity tiers used for preview outlines.
var (
	colorHigh    = color.RGBA{R: 0xdc, G: 0x26, B: 0x26, A: 0xff}
	colorMedium  = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}
	colorLow     = color.RGBA{R: 0x16, G: 0xa3, B: 0x4a, A: 0xff}
	colorSpecial = color.RGBA{R: 0x06, G: 0xb6, B: 0xd4, A: 0xff}
	colorUnknown = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

const (
	outlineWidth = 3
	captionPad   = 3
)

// TypeColor returns the preview colour for an entity type.
func TypeColor(t pii.EntityType) color.RGBA {
	switch t {
	case pii.TypeNationalID, pii.TypeTaxID:
		return colorHigh
	case pii.TypePhone, pii.TypeEmail, pii.TypeDate:
		return colorMedium
	case pii.TypePerson, pii.TypeAddress:
		return colorLow
	case pii.TypeSignature:
		return colorSpecial
	default:
		return colorUnknown
	}
}

// Preview returns a copy of img with each entity outlined in its tier colour
// and captioned "type: confidence".
func Preview(img image.Image, entities []pii.Entity) *image.RGBA {
	out := Clone(img)
	bounds := out.Bounds()
	face := basicfont.Face7x13

	for _, e := range entities {
		r := e.BBox.Rect().Canon().Intersect(bounds)
		if r.Empty() {
			continue
		}
		c := TypeColor(e.Type)
		outline(out, r, c, outlineWidth)

		label := fmt.Sprintf("%s: %.2f", e.Type, e.Confidence)
		labelWidth := font.MeasureString(face, label).Ceil()
		lineHeight := face.Height

		top := r.Min.Y - lineHeight - 2*captionPad
		if top < bounds.Min.Y {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+labelWidth+2*captionPad, top+lineHeight+2*captionPad).Intersect(bounds)
		draw.Draw(out, bg, image.NewUniform(c), image.Point{}, draw.Src)
		drawText(out, label, r.Min.X+captionPad, top+captionPad+face.Ascent, color.White)
	}
	return out
}

// Compare places original and masked side by side at the smaller of their
// heights, captioned ORIGINAL and MASKED.
func Compare(original, masked image.Image) *image.RGBA {
	height := min(original.Bounds().Dy(), masked.Bounds().Dy())
	left := scaleToHeight(original, height)
	right := scaleToHeight(masked, height)

	out := image.NewRGBA(image.Rect(0, 0, left.Bounds().Dx()+right.Bounds().Dx(), height))
	draw.Draw(out, left.Bounds(), left, image.Point{}, draw.Src)
	draw.Draw(out, right.Bounds().Add(image.Pt(left.Bounds().Dx(), 0)), right, image.Point{}, draw.Src)

	caption(out, "ORIGINAL", 10, 10)
	caption(out, "MASKED", left.Bounds().Dx()+10, 10)
	return out
}

func scaleToHeight(img image.Image, height int) *image.RGBA {
	b := img.Bounds()
	if b.Dy() == height {
		out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
		return out
	}
	width := max(1, b.Dx()*height/max(1, b.Dy()))
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

func outline(dst draw.Image, r image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	width = min(width, r.Dx(), r.Dy())
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(dst, edge, src, image.Point{}, draw.Src)
	}
}

// caption draws white text on a dark band so it reads on any background.
func caption(dst *image.RGBA, text string, x, y int) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	band := image.Rect(x, y, x+w+2*captionPad, y+face.Height+2*captionPad).Intersect(dst.Bounds())
	draw.Draw(dst, band, image.NewUniform(color.RGBA{A: 0xc0}), image.Point{}, draw.Over)
	drawText(dst, text, x+captionPad, y+captionPad+face.Ascent, color.White)
}

func drawText(dst draw.Image, text string, x, baseline int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}
