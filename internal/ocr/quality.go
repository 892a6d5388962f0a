package ocr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// QualityConfig holds the thresholds of the text-quality heuristic.
type QualityConfig struct {
	MinTextLength  int
	MinUniqueRunes int
	// Letter or digit share must fall inside [BalanceLow, BalanceHigh].
	BalanceLow    float64
	BalanceHigh   float64
	MaxSpaceRatio float64
	MaxPunctRatio float64
	// Coordinate completeness factor for blocks without a polygon.
	RectOnlyFactor float64
}

// Score weights; they sum to 1.0.
const (
	lengthWeight    = 0.2
	diversityWeight = 0.2
	balanceWeight   = 0.3
	spacingWeight   = 0.2
	punctWeight     = 0.1
)

// DefaultQualityConfig returns the thresholds used when none are configured.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinTextLength:  3,
		MinUniqueRunes: 3,
		BalanceLow:     0.1,
		BalanceHigh:    0.9,
		MaxSpaceRatio:  0.3,
		MaxPunctRatio:  0.2,
		RectOnlyFactor: 0.8,
	}
}

// TextQuality scores how much a recognized string looks like real text (0.0 to 1.0).
// Empty and whitespace-only strings score 0.
func TextQuality(text string, cfg QualityConfig) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	total := utf8.RuneCountInString(text)
	unique := make(map[rune]struct{}, total)
	var letters, digits, spaces, punct int
	for _, r := range text {
		unique[r] = struct{}{}
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case r == ' ':
			spaces++
		case strings.ContainsRune(".,;:!?", r):
			punct++
		}
	}

	score := 0.0
	if total >= cfg.MinTextLength {
		score += lengthWeight
	}
	if len(unique) >= cfg.MinUniqueRunes {
		score += diversityWeight
	}

	letterRatio := float64(letters) / float64(total)
	digitRatio := float64(digits) / float64(total)
	if inBand(letterRatio, cfg.BalanceLow, cfg.BalanceHigh) || inBand(digitRatio, cfg.BalanceLow, cfg.BalanceHigh) {
		score += balanceWeight
	}
	if float64(spaces) <= float64(total)*cfg.MaxSpaceRatio {
		score += spacingWeight
	}
	if float64(punct) <= float64(total)*cfg.MaxPunctRatio {
		score += punctWeight
	}

	return min(score, 1.0)
}

// CoordinateCompleteness is 1.0 for blocks carrying the engine's polygon and
// cfg.RectOnlyFactor for blocks that only have a rectangle.
func CoordinateCompleteness(b TextBlock, cfg QualityConfig) float64 {
	if len(b.RawPoints) > 0 {
		return 1.0
	}
	return cfg.RectOnlyFactor
}

// BlockQuality is text quality × confidence × coordinate completeness.
func BlockQuality(b TextBlock, cfg QualityConfig) float64 {
	return TextQuality(b.Text, cfg) * clampConfidence(b.Confidence) * CoordinateCompleteness(b, cfg)
}

// QualityScore is the mean BlockQuality over blocks weighted by rune count
// (minimum weight 1). It is 0 for no blocks.
func QualityScore(blocks []TextBlock, cfg QualityConfig) float64 {
	var sum, weights float64
	for _, b := range blocks {
		w := float64(max(utf8.RuneCountInString(strings.TrimSpace(b.Text)), 1))
		sum += BlockQuality(b, cfg) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

func inBand(v, low, high float64) bool {
	return v >= low && v <= high
}
