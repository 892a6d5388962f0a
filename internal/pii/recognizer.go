package pii

import (
	"context"
	"strings"
)

// Span is one named-entity finding. Start and End are byte offsets into the
// analyzed text; Type is the recognizer's own label.
type Span struct {
	Start int
	End   int
	Type  string
	Score float64
}

// Recognizer is a general-purpose named-entity recognizer.
type Recognizer interface {
	Name() string
	Analyze(ctx context.Context, text string) ([]Span, error)
}

// recognizerTypes maps recognizer labels (Presidio, spaCy, model output) to
// the taxonomy. Labels missing here are dropped.
var recognizerTypes = map[string]EntityType{
	"PERSON":            TypePerson,
	"PER":               TypePerson,
	"NAME":              TypePerson,
	"EMAIL_ADDRESS":     TypeEmail,
	"EMAIL":             TypeEmail,
	"PHONE_NUMBER":      TypePhone,
	"PHONE":             TypePhone,
	"DATE_TIME":         TypeDate,
	"DATE":              TypeDate,
	"LOCATION":          TypeAddress,
	"ADDRESS":           TypeAddress,
	"GPE":               TypeAddress,
	"LOC":               TypeAddress,
	"FAC":               TypeAddress,
	"IN_AADHAAR":        TypeNationalID,
	"IN_VOTER":          TypeNationalID,
	"IN_PASSPORT":       TypeNationalID,
	"US_SSN":            TypeNationalID,
	"US_PASSPORT":       TypeNationalID,
	"US_DRIVER_LICENSE": TypeNationalID,
	"UK_NHS":            TypeNationalID,
	"NATIONAL_ID":       TypeNationalID,
	"IN_PAN":            TypeTaxID,
	"US_ITIN":           TypeTaxID,
	"TAX_ID":            TypeTaxID,
	"PHONE_NUMBER_IN":   TypePhone,
	"SIGNATURE":         TypeSignature,
}

// MapRecognizerType converts a recognizer label to the taxonomy.
func MapRecognizerType(label string) (EntityType, bool) {
	upper := strings.ToUpper(strings.TrimSpace(label))
	if t, ok := recognizerTypes[upper]; ok {
		return t, true
	}
	return ParseEntityType(label)
}
