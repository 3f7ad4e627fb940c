// Package scorer classifies free text into a crisis risk tier by keyword and
// dangerous-combination matching.
package scorer

import (
	"math"
	"strings"
	"unicode"

	"github.com/lifeline-care/crisis/internal/crisis/config"
)

// Result is the outcome of analyzing one utterance. It is never persisted verbatim.
type Result struct {
	Score             float64     `json:"score"`
	Risk              config.Tier `json:"risk"`
	Confidence        float64     `json:"confidence"`
	Indicators        []string    `json:"indicators"`
	RequiresImmediate bool        `json:"requiresImmediate"`
}

type pattern struct {
	phrase   string
	severity config.Severity // empty for phrases that only appear in combinations
}

// Scorer analyzes text against one resolved config. It holds no per-call
// state and may be shared between goroutines.
type Scorer struct {
	cfg          *config.ResolvedConfig
	patterns     []pattern
	matcher      *matcher
	combinations [][2]int
	prefixCues   [][]string
	suffixCues   [][]string
}

// New builds the matcher for cfg.
func New(cfg *config.ResolvedConfig) *Scorer {
	s := &Scorer{cfg: cfg}
	ids := make(map[string]int)

	add := func(phrase string, sev config.Severity) int {
		if id, ok := ids[phrase]; ok {
			if sev != "" && s.patterns[id].severity == "" {
				s.patterns[id].severity = sev
			}
			return id
		}
		ids[phrase] = len(s.patterns)
		s.patterns = append(s.patterns, pattern{phrase: phrase, severity: sev})
		return ids[phrase]
	}

	for _, sev := range config.Severities {
		for _, phrase := range cfg.Keywords[sev] {
			add(phrase, sev)
		}
	}

	seen := make(map[[2]int]bool)
	for _, pair := range cfg.Combinations {
		a, b := add(pair[0], ""), add(pair[1], "")
		if a > b {
			a, b = b, a
		}
		if key := [2]int{a, b}; !seen[key] {
			seen[key] = true
			s.combinations = append(s.combinations, key)
		}
	}

	phrases := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		phrases[i] = p.phrase
	}
	s.matcher = newMatcher(phrases)

	for _, cue := range cfg.Confidence.PrefixCues {
		s.prefixCues = append(s.prefixCues, strings.Fields(normalizeText(cue)))
	}
	for _, cue := range cfg.Confidence.SuffixCues {
		s.suffixCues = append(s.suffixCues, strings.Fields(normalizeText(cue)))
	}
	return s
}

// Config returns the config the scorer was built from.
func (s *Scorer) Config() *config.ResolvedConfig {
	return s.cfg
}

type indicator struct {
	phrase   string
	severity config.Severity
	framed   bool // every occurrence sits inside an informational frame
}

// Analyze scores text. Repeated phrases count once; each dangerous
// combination adds its bonus at most once.
func (s *Scorer) Analyze(text string) Result {
	res := Result{Risk: config.TierNone, Indicators: []string{}}

	norm := normalizeText(text)
	if norm == "" {
		return res
	}

	present := make([]bool, len(s.patterns))
	byPattern := make(map[int]int)
	var found []indicator

	for _, occ := range s.matcher.find(norm) {
		present[occ.pattern] = true
		p := s.patterns[occ.pattern]
		if p.severity == "" {
			continue
		}
		framed := s.framed(norm, occ.start, occ.end)
		if i, ok := byPattern[occ.pattern]; ok {
			found[i].framed = found[i].framed && framed
			continue
		}
		byPattern[occ.pattern] = len(found)
		found = append(found, indicator{phrase: p.phrase, severity: p.severity, framed: framed})
	}

	for _, ind := range found {
		res.Score += s.cfg.Weights[ind.severity]
		res.Indicators = append(res.Indicators, ind.phrase)
	}
	for _, pair := range s.combinations {
		if present[pair[0]] && present[pair[1]] {
			res.Score += s.cfg.CombinationScore
		}
	}

	res.Risk = s.tier(res.Score)
	res.RequiresImmediate = res.Risk.RequiresImmediate()
	res.Confidence = s.confidence(found)
	return res
}

func (s *Scorer) tier(score float64) config.Tier {
	for _, t := range config.ThresholdTiers {
		if score >= s.cfg.Thresholds[t] {
			return t
		}
	}
	return config.TierNone
}

// confidence starts from the most specific unframed indicator and adds a step
// per corroborating indicator. When only framed indicators matched, their
// specificity is scaled down by the framed factor.
func (s *Scorer) confidence(found []indicator) float64 {
	if len(found) == 0 {
		return 0
	}
	m := s.cfg.Confidence

	var best, bestFramed float64
	unframed, framed := 0, 0
	for _, ind := range found {
		specificity := m.Specificity[ind.severity]
		if ind.framed {
			framed++
			bestFramed = math.Max(bestFramed, specificity*m.FramedFactor)
			continue
		}
		unframed++
		best = math.Max(best, specificity)
	}

	conf := bestFramed
	if unframed > 0 {
		conf = best + m.CorroborationStep*float64(unframed-1)
	}
	conf = math.Min(conf, m.Max)
	if framed > 0 && framed >= unframed {
		conf = math.Min(conf, m.FramedCap)
	}
	return math.Round(conf*100) / 100
}

// framed reports whether a cue phrase sits within the configured window of
// words around text[start:end], without crossing a sentence boundary.
func (s *Scorer) framed(text string, start, end int) bool {
	window := s.cfg.Confidence.Window
	if window == 0 {
		return false
	}
	before := wordsBefore(text[:start], window)
	after := wordsAfter(text[end:], window)
	for _, cue := range s.prefixCues {
		if containsSeq(before, cue) {
			return true
		}
	}
	for _, cue := range s.suffixCues {
		if containsSeq(after, cue) {
			return true
		}
	}
	return false
}

func wordsBefore(text string, n int) []string {
	fields := strings.Fields(text)
	var words []string
	for i := len(fields) - 1; i >= 0 && len(words) < n; i-- {
		if endsSentence(fields[i]) {
			break
		}
		words = append([]string{trimWord(fields[i])}, words...)
	}
	return words
}

func wordsAfter(text string, n int) []string {
	if text != "" && strings.ContainsRune(".!?", rune(text[0])) {
		return nil
	}
	var words []string
	for _, f := range strings.Fields(text) {
		if len(words) == n {
			break
		}
		words = append(words, trimWord(f))
		if endsSentence(f) {
			break
		}
	}
	return words
}

func containsSeq(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j := range seq {
			if words[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func endsSentence(word string) bool {
	return strings.ContainsAny(word[len(word)-1:], ".!?")
}

func trimWord(word string) string {
	return strings.TrimFunc(word, func(r rune) bool {
		return r != '\'' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'")

// normalizeText lowercases text, folds typographic apostrophes and collapses whitespace.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(apostrophes.Replace(strings.ToLower(text))), " ")
}
