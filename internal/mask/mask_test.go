package mask

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"redactor/internal/pii"
)

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
			}
		}
	}
	return img
}

func entity(x, y, w, h int) pii.Entity {
	return pii.Entity{Text: "x", Type: pii.TypeEmail, Confidence: 0.9, BBox: pii.BBox{x, y, w, h}}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"black", color.RGBA{A: 255}, false},
		{"", color.RGBA{A: 255}, false},
		{"White", color.RGBA{255, 255, 255, 255}, false},
		{"grey", color.RGBA{128, 128, 128, 255}, false},
		{"#FF8000", color.RGBA{255, 128, 0, 255}, false},
		{"purple", color.RGBA{}, true},
		{"#12345", color.RGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidColor) {
			t.Errorf("ParseColor(%q) error = %v, want ErrInvalidColor", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyWithoutEntitiesReturnsInput(t *testing.T) {
	img := checkerboard(20, 10)
	m := NewMasker(color.RGBA{})
	if got := m.Apply(img, nil); got != image.Image(img) {
		t.Error("Apply() with no entities returned a different image")
	}
}

func TestApplyFillsBoxesOnACopy(t *testing.T) {
	img := checkerboard(40, 20)
	before := Clone(img)
	m := NewMasker(color.RGBA{})

	out := m.Apply(img, []pii.Entity{entity(5, 5, 10, 4)})

	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			inside := image.Pt(x, y).In(image.Rect(5, 5, 15, 9))
			got := color.RGBAModel.Convert(out.At(x, y)).(color.RGBA)
			if inside && got != (color.RGBA{A: 255}) {
				t.Fatalf("pixel (%d,%d) = %v, want black", x, y, got)
			}
			if !inside && got != before.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) outside the box changed", x, y)
			}
		}
	}
	if img.RGBAAt(6, 6) != before.RGBAAt(6, 6) {
		t.Error("Apply() mutated the input image")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	img := checkerboard(30, 30)
	m := NewMasker(color.RGBA{R: 0x80, G: 0x80, B: 0x80})
	entities := []pii.Entity{entity(2, 2, 10, 10), entity(8, 8, 10, 10)}

	once := m.Apply(img, entities).(*image.RGBA)
	twice := m.Apply(once, entities).(*image.RGBA)

	if string(once.Pix) != string(twice.Pix) {
		t.Error("masking twice differs from masking once")
	}
}

func TestApplyClipsToBounds(t *testing.T) {
	img := checkerboard(20, 20)
	m := NewMasker(color.RGBA{})

	out := m.Apply(img, []pii.Entity{
		entity(15, 15, 100, 100),
		entity(-10, -10, 15, 15),
		entity(50, 50, 10, 10),
	}).(*image.RGBA)

	if out.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v, want %v", out.Bounds(), img.Bounds())
	}
	if out.RGBAAt(19, 19) != (color.RGBA{A: 255}) || out.RGBAAt(0, 0) != (color.RGBA{A: 255}) {
		t.Error("in-bounds part of a clipped box was not filled")
	}
	if out.RGBAAt(10, 10) != img.RGBAAt(10, 10) {
		t.Error("pixel between boxes changed")
	}
}

func TestPreviewAndCompare(t *testing.T) {
	img := checkerboard(120, 60)
	entities := []pii.Entity{{Text: "ABCDE1234F", Type: pii.TypeTaxID, Confidence: 0.95, BBox: pii.BBox{10, 30, 80, 20}}}

	preview := Preview(img, entities)
	if preview.RGBAAt(10, 49) != TypeColor(pii.TypeTaxID) {
		t.Errorf("outline pixel = %v, want tier colour", preview.RGBAAt(10, 49))
	}
	if preview.RGBAAt(50, 40) != img.RGBAAt(50, 40) {
		t.Error("preview filled the box interior")
	}

	masked := NewMasker(color.RGBA{}).Apply(img, entities)
	small := image.NewRGBA(image.Rect(0, 0, 60, 30))
	cmp := Compare(masked, small)
	if cmp.Bounds().Dy() != 30 || cmp.Bounds().Dx() != 60+60 {
		t.Errorf("Compare() bounds = %v, want 120x30", cmp.Bounds())
	}
}

func TestTypeColorTiers(t *testing.T) {
	if TypeColor(pii.TypeNationalID) != TypeColor(pii.TypeTaxID) {
		t.Error("identifiers should share the high tier")
	}
	if TypeColor(pii.TypeEmail) == TypeColor(pii.TypePerson) {
		t.Error("medium and low tiers should differ")
	}
}
