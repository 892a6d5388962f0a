// Package pii classifies extracted document text as personal data and
// locates each finding on the page.
//
// Detection runs in two tiers. When a named-entity recognizer is configured
// its findings are re-anchored to OCR block coordinates and combined with the
// pattern library. When it is absent or fails, every block is matched against
// the pattern library alone. The tier that produced a result is reported in
// Detection.Method; a failed recognizer is never an error for the caller.
package pii

import (
	"image"
	"slices"
	"strings"
)

// EntityType is one category of the supported PII taxonomy.
type EntityType string

const (
	TypePerson     EntityType = "person"
	TypeNationalID EntityType = "national_id"
	TypeTaxID      EntityType = "tax_id"
	TypePhone      EntityType = "phone_number"
	TypeEmail      EntityType = "email"
	TypeDate       EntityType = "date"
	TypeAddress    EntityType = "address"
	TypeSignature  EntityType = "signature"
)

// AllTypes lists the taxonomy in a stable order.
var AllTypes = []EntityType{
	TypePerson,
	TypeNationalID,
	TypeTaxID,
	TypePhone,
	TypeEmail,
	TypeDate,
	TypeAddress,
	TypeSignature,
}

// Valid reports whether t belongs to the taxonomy.
func (t EntityType) Valid() bool {
	return slices.Contains(AllTypes, t)
}

// ParseEntityType accepts a taxonomy name in any case.
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// BBox is [x, y, width, height] in image pixels.
type BBox [4]int

// Rect converts the box to an image rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[0]+b[2], b[1]+b[3])
}

// BBoxFromRect converts an image rectangle to a box.
func BBoxFromRect(r image.Rectangle) BBox {
	r = r.Canon()
	return BBox{r.Min.X, r.Min.Y, r.Dx(), r.Dy()}
}

// Entity is a classified, located span of personal data.
type Entity struct {
	Text       string     `json:"text"`
	Type       EntityType `json:"entity_type"`
	Confidence float64    `json:"confidence"`
	BBox       BBox       `json:"bbox"`
}

// NewEntity builds an entity whose box is clipped to bounds. It returns false
// when the type is not in the taxonomy or nothing of the box lies inside bounds.
func NewEntity(text string, t EntityType, confidence float64, box image.Rectangle, bounds image.Rectangle) (Entity, bool) {
	if !t.Valid() {
		return Entity{}, false
	}
	clipped := box.Canon().Intersect(bounds)
	if clipped.Empty() {
		return Entity{}, false
	}
	return Entity{
		Text:       text,
		Type:       t,
		Confidence: clampConfidence(confidence),
		BBox:       BBoxFromRect(clipped),
	}, true
}

// CountByType returns the number of entities per type.
func CountByType(entities []Entity) map[EntityType]int {
	counts := make(map[EntityType]int)
	for _, e := range entities {
		counts[e.Type]++
	}
	return counts
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
