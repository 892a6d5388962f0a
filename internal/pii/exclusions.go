package pii

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// captionHints maps normalized field captions to the type of the value that
// usually follows them. An empty type means the caption carries no hint.
var captionHints = map[string]EntityType{
	"name":              TypePerson,
	"full name":         TypePerson,
	"father's name":     TypePerson,
	"fathers name":      TypePerson,
	"father name":       TypePerson,
	"mother's name":     TypePerson,
	"mother name":       TypePerson,
	"husband's name":    TypePerson,
	"spouse name":       TypePerson,
	"dob":               TypeDate,
	"d.o.b":             TypeDate,
	"d.o.b.":            TypeDate,
	"date of birth":     TypeDate,
	"birth date":        TypeDate,
	"year of birth":     TypeDate,
	"yob":               TypeDate,
	"date of issue":     TypeDate,
	"issue date":        TypeDate,
	"expiry date":       TypeDate,
	"valid until":       TypeDate,
	"address":           TypeAddress,
	"permanent address": TypeAddress,
	"email":             TypeEmail,
	"e-mail":            TypeEmail,
	"email id":          TypeEmail,
	"phone":             TypePhone,
	"phone no":          TypePhone,
	"phone number":      TypePhone,
	"mobile":            TypePhone,
	"mobile no":         TypePhone,
	"mobile number":     TypePhone,
	"signature":         TypeSignature,
	"sign":              TypeSignature,
	"pan":               TypeTaxID,
	"pan no":            TypeTaxID,
	"aadhaar":           TypeNationalID,
	"aadhaar no":        TypeNationalID,
	"aadhaar number":    TypeNationalID,
	"vid":               TypeNationalID,
	"enrolment no":      TypeNationalID,
	"gender":            "",
	"sex":               "",
	"male":              "",
	"female":            "",
	"nationality":       "",

	"नाम":         TypePerson,
	"पिता का नाम": TypePerson,
	"जन्म तिथि":   TypeDate,
	"पता":         TypeAddress,
	"हस्ताक्षर":   TypeSignature,
	"पुरुष":       "",
	"महिला":       "",
}

// Organisation and document-title phrases. A block containing any of them as
// whole words is never PII.
var defaultOrgPhrases = []string{
	"government of india",
	"government",
	"ministry",
	"department",
	"income tax department",
	"income tax",
	"unique identification authority of india",
	"unique identification authority",
	"uidai",
	"permanent account number card",
	"permanent account number",
	"election commission of india",
	"identity card",
	"card",
	"of india",
	"भारत सरकार",
	"आयकर विभाग",
	"स्थायी लेखा संख्या कार्ड",
	"स्थायी लेखा संख्या",
	"लेखा संख्या",
	"भारतीय विशिष्ट पहचान प्राधिकरण",
}

// Exclusions decides which text must never be reported as PII.
type Exclusions struct {
	captions   map[string]EntityType
	orgPhrases []string
}

// NewExclusions returns the built-in exclusion list extended with extra
// literal labels.
func NewExclusions(extraLabels ...string) *Exclusions {
	captions := make(map[string]EntityType, len(captionHints)+len(extraLabels))
	for k, v := range captionHints {
		captions[k] = v
	}
	for _, label := range extraLabels {
		if n := normalizeLabel(label); n != "" {
			if _, ok := captions[n]; !ok {
				captions[n] = ""
			}
		}
	}
	return &Exclusions{captions: captions, orgPhrases: defaultOrgPhrases}
}

// Excluded reports whether text is a known caption or contains an
// organisation phrase.
func (e *Exclusions) Excluded(text string) bool {
	if _, ok := e.captions[normalizeLabel(text)]; ok {
		return true
	}
	return e.HasOrgPhrase(text)
}

// HasOrgPhrase reports whether text contains an organisation phrase as whole words.
func (e *Exclusions) HasOrgPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range e.orgPhrases {
		if containsWords(lower, phrase) {
			return true
		}
	}
	return false
}

// SplitCaption separates a leading "Caption:" from its value. It returns the
// caption's type hint, the value and the value's byte offset in text. ok is
// false when text does not start with a known caption.
func (e *Exclusions) SplitCaption(text string) (hint EntityType, value string, offset int, ok bool) {
	sep := strings.IndexAny(text, ":：")
	if sep <= 0 {
		return "", "", 0, false
	}
	hint, known := e.captions[normalizeLabel(text[:sep])]
	if !known {
		return "", "", 0, false
	}

	_, size := utf8.DecodeRuneInString(text[sep:])
	rest := text[sep+size:]
	trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
	offset = sep + size + len(rest) - len(trimmed)
	value = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	return hint, value, offset, true
}

// normalizeLabel lower-cases, collapses spaces and strips trailing colons.
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimSpace(strings.TrimRight(s, ":：-"))
}

// containsWords reports whether phrase occurs in s bounded by non-word runes.
func containsWords(s, phrase string) bool {
	for start := 0; start <= len(s); {
		i := strings.Index(s[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		if !wordRuneBefore(s, i) && !wordRuneAfter(s, end) {
			return true
		}
		start = i + 1
	}
	return false
}

func wordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

func wordRuneAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}
