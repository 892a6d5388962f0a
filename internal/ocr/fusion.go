package ocr

import (
	"math"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"redactor/internal/logger"
)

// DefaultTolerance is the pixel distance within which two blocks' top-left
// corners are treated as the same region.
const DefaultTolerance = 20

// FusionConfig configures how blocks from several engines are merged.
type FusionConfig struct {
	Tolerance int

	// Preference ranks engines from most to least trusted.
	Preference []string

	Quality QualityConfig
}

// DefaultFusionConfig returns the fusion settings used when none are configured.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Tolerance:  DefaultTolerance,
		Preference: append([]string(nil), AllEngines...),
		Quality:    DefaultQualityConfig(),
	}
}

// Fuser merges text blocks from multiple engines into one canonical set.
// It holds no per-call state and is safe for concurrent use.
type Fuser struct {
	config FusionConfig
	rank   map[string]int
	log    zerolog.Logger
}

// NewFuser creates a Fuser for the given configuration.
func NewFuser(config FusionConfig) *Fuser {
	rank := make(map[string]int, len(config.Preference))
	for i, name := range config.Preference {
		if _, seen := rank[name]; !seen {
			rank[name] = i
		}
	}
	return &Fuser{
		config: config,
		rank:   rank,
		log:    logger.WithComponent("ocr-fusion"),
	}
}

type blockGroup struct {
	x, y    int
	members []TextBlock
}

// Fuse clusters blocks whose top-left corners are within the tolerance of a
// group's first block, keeps one block per group and scores the result.
// Blocks with blank text are discarded before clustering.
func (f *Fuser) Fuse(blocks []TextBlock) *ExtractionResult {
	var groups []*blockGroup
	for _, b := range blocks {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		b.Width = max(b.Width, 0)
		b.Height = max(b.Height, 0)

		if g := f.findGroup(groups, b); g != nil {
			g.members = append(g.members, b)
			continue
		}
		groups = append(groups, &blockGroup{x: b.X, y: b.Y, members: []TextBlock{b}})
	}

	result := &ExtractionResult{Blocks: make([]TextBlock, 0, len(groups))}
	if len(groups) == 0 {
		return result
	}

	texts := make([]string, 0, len(groups))
	contributed := make(map[string]bool)
	for _, g := range groups {
		best := f.selectRepresentative(g.members)
		result.Blocks = append(result.Blocks, best)
		texts = append(texts, strings.TrimSpace(best.Text))
		for _, m := range g.members {
			contributed[m.SourceEngine] = true
		}
	}

	result.FullText = strings.Join(texts, " ")
	result.QualityScore = QualityScore(result.Blocks, f.config.Quality)
	result.EnginesUsed = f.orderEngines(contributed)
	result.Success = true

	f.log.Debug().
		Int("input_blocks", len(blocks)).
		Int("groups", len(groups)).
		Float64("quality", result.QualityScore).
		Msg("Fused OCR blocks")

	return result
}

func (f *Fuser) findGroup(groups []*blockGroup, b TextBlock) *blockGroup {
	for _, g := range groups {
		if abs(b.X-g.x) <= f.config.Tolerance && abs(b.Y-g.y) <= f.config.Tolerance {
			return g
		}
	}
	return nil
}

// selectRepresentative picks the block from the most preferred engine,
// breaking ties (and ranking unknown engines) by confidence.
func (f *Fuser) selectRepresentative(members []TextBlock) TextBlock {
	best := members[0]
	for _, m := range members[1:] {
		br, mr := f.engineRank(best.SourceEngine), f.engineRank(m.SourceEngine)
		if mr < br || (mr == br && m.Confidence > best.Confidence) {
			best = m
		}
	}
	return best
}

func (f *Fuser) engineRank(engine string) int {
	if r, ok := f.rank[engine]; ok {
		return r
	}
	return math.MaxInt
}

func (f *Fuser) orderEngines(contributed map[string]bool) []string {
	var names []string
	for _, name := range f.config.Preference {
		if contributed[name] {
			names = append(names, name)
			delete(contributed, name)
		}
	}
	for _, name := range AllEngines {
		if contributed[name] {
			names = append(names, name)
			delete(contributed, name)
		}
	}
	rest := make([]string, 0, len(contributed))
	for name := range contributed {
		rest = append(rest, name)
	}
	slices.Sort(rest)
	return append(names, rest...)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
