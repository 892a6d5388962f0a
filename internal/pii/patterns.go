package pii

import (
	"regexp"
	"sort"
	"strings"
)

// Rule is one deterministic matcher for an entity type.
type Rule struct {
	Name       string
	Type       EntityType
	Expr       *regexp.Regexp
	Confidence float64

	// Group selects the submatch reported as the entity; 0 is the whole match.
	Group int

	// WholeBlock rules only match when they cover the entire trimmed text.
	WholeBlock bool
}

// Match is one rule hit inside a text. Start and End are byte offsets.
type Match struct {
	Rule       string
	Type       EntityType
	Confidence float64
	Start      int
	End        int
	Text       string
}

const monthNames = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t|tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

type ruleSpec struct {
	name       string
	typ        EntityType
	expr       string
	confidence float64
	group      int
	wholeBlock bool
}

// Confidence reflects how specific the structure is: exact-format identifiers
// score 0.95, loose name and address heuristics 0.55 to 0.80.
var defaultRuleSpecs = []ruleSpec{
	{name: "national_id_segmented", typ: TypeNationalID, expr: `\b\d{4}[ -]\d{4}[ -]\d{4}\b`, confidence: 0.95},
	{name: "national_id_12_digits", typ: TypeNationalID, expr: `\b\d{12}\b`, confidence: 0.95},
	{name: "national_id_segment", typ: TypeNationalID, expr: `^\d{4}$`, confidence: 0.80, wholeBlock: true},
	{name: "tax_id", typ: TypeTaxID, expr: `\b[A-Z]{5}\d{4}[A-Z]\b`, confidence: 0.95},

	{name: "phone_in_country_code", typ: TypePhone, expr: `\+91[ -]?[6-9]\d{4}[ -]?\d{5}\b`, confidence: 0.90},
	{name: "phone_in_mobile", typ: TypePhone, expr: `\b[6-9]\d{9}\b`, confidence: 0.90},
	{name: "phone_international", typ: TypePhone, expr: `\+\d{1,3}[ -]?\(?\d{1,4}\)?(?:[ -]?\d{2,4}){2,4}\b`, confidence: 0.80},
	{name: "phone_parenthesized", typ: TypePhone, expr: `\(\d{3}\)\s?\d{3}-\d{4}\b`, confidence: 0.80},

	{name: "email", typ: TypeEmail, expr: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, confidence: 0.95},

	{name: "date_dmy", typ: TypeDate, expr: `\b(?:0?[1-9]|[12]\d|3[01])[/.-](?:0?[1-9]|1[0-2])[/.-](?:19|20)\d{2}\b`, confidence: 0.85},
	{name: "date_iso", typ: TypeDate, expr: `\b(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`, confidence: 0.85},
	{name: "date_long", typ: TypeDate, expr: `(?i)\b\d{1,2}\s+(?:` + monthNames + `)\.?,?\s+(?:19|20)\d{2}\b`, confidence: 0.80},

	{name: "person_titled", typ: TypePerson, expr: `\b(?:Mr|Mrs|Ms|Miss|Dr|Prof|Shri|Smt|Kumari)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2}\b`, confidence: 0.85},
	{name: "person_relation", typ: TypePerson, expr: `(?i)\b(?:s/o|d/o|w/o|c/o|son of|daughter of|wife of|husband of)\s*:?\s*([a-z][a-z.]*(?:\s+[a-z][a-z.]*){0,3})`, confidence: 0.80, group: 1},
	{name: "person_capitalized", typ: TypePerson, expr: `\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2}\b`, confidence: 0.70},
	{name: "person_devanagari", typ: TypePerson, expr: `\p{Devanagari}{2,}(?:\s+\p{Devanagari}{2,}){1,2}`, confidence: 0.65},

	{name: "address_house_street", typ: TypeAddress, expr: `(?i)\b\d+[a-z]?(?:[/-]\d+)?,?\s+(?:[a-z.]+\s+){0,3}(?:street|st|road|rd|lane|marg|nagar|colony|sector|block|avenue|cross|main)\b[\w\s,./-]*`, confidence: 0.80},
	{name: "address_pin_labelled", typ: TypeAddress, expr: `(?i)\b(?:pin|pincode|pin code)\s*:?\s*\d{6}\b`, confidence: 0.80},
	{name: "address_keyword", typ: TypeAddress, expr: `(?i)\b(?:village|street|road|lane|colony|sector|flat|apartment|house|building|nagar|vihar|society|district|near|opposite)\b[\s:.,-]*[\w\s,./-]+`, confidence: 0.75},
	{name: "address_pin", typ: TypeAddress, expr: `\b\d{6}\b`, confidence: 0.55},
}

// Library holds the compiled rules and the exclusion list.
type Library struct {
	rules      []Rule
	exclusions *Exclusions
}

// DefaultLibrary returns the built-in rules with the given extra exclusion labels.
func DefaultLibrary(extraLabels ...string) *Library {
	rules := make([]Rule, 0, len(defaultRuleSpecs))
	for _, spec := range defaultRuleSpecs {
		rules = append(rules, Rule{
			Name:       spec.name,
			Type:       spec.typ,
			Expr:       regexp.MustCompile(spec.expr),
			Confidence: spec.confidence,
			Group:      spec.group,
			WholeBlock: spec.wholeBlock,
		})
	}
	return NewLibrary(rules, NewExclusions(extraLabels...))
}

// NewLibrary creates a library from explicit rules (for testing and custom taxonomies).
func NewLibrary(rules []Rule, exclusions *Exclusions) *Library {
	if exclusions == nil {
		exclusions = NewExclusions()
	}
	return &Library{rules: rules, exclusions: exclusions}
}

// Exclusions returns the library's exclusion list.
func (l *Library) Exclusions() *Exclusions {
	return l.exclusions
}

// Match classifies text as a whole. Excluded text never matches. When several
// rules hit, the most confident one wins.
func (l *Library) Match(text string) (EntityType, float64, bool) {
	matches := l.FindAll(text)
	if len(matches) == 0 {
		return "", 0, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}
	return best.Type, best.Confidence, true
}

// FindAll returns non-overlapping rule hits in text ordered by position.
// Overlaps are resolved in favour of higher confidence, then longer spans.
// Excluded text yields nothing.
func (l *Library) FindAll(text string) []Match {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || l.exclusions.Excluded(trimmed) {
		return nil
	}

	var candidates []Match
	for _, rule := range l.rules {
		if rule.WholeBlock {
			if rule.Expr.MatchString(trimmed) {
				start := strings.Index(text, trimmed)
				candidates = append(candidates, Match{
					Rule: rule.Name, Type: rule.Type, Confidence: rule.Confidence,
					Start: start, End: start + len(trimmed), Text: trimmed,
				})
			}
			continue
		}

		for _, loc := range rule.Expr.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if g := rule.Group; g > 0 && 2*g+1 < len(loc) && loc[2*g] >= 0 {
				start, end = loc[2*g], loc[2*g+1]
			}
			span := strings.TrimRight(text[start:end], " \t,.-/")
			if span == "" || l.exclusions.Excluded(span) {
				continue
			}
			candidates = append(candidates, Match{
				Rule: rule.Name, Type: rule.Type, Confidence: rule.Confidence,
				Start: start, End: start + len(span), Text: span,
			})
		}
	}

	return resolveOverlaps(candidates)
}

func resolveOverlaps(candidates []Match) []Match {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.End-a.Start > b.End-b.Start
	})

	var accepted []Match
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if c.Start < a.End && a.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}
