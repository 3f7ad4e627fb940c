package config

import (
	"fmt"
	"strings"

	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
)

// Merge overlays remote on the built-in defaults. A nil remote yields the
// defaults unchanged. An override that would produce an invalid config is
// rejected with a *ConfigError and the defaults are returned.
func Merge(remote *PartialConfig) (*ResolvedConfig, error) {
	return Overlay(Defaults(), remote, "remote")
}

// Overlay applies p on top of base and returns a new value; base is never
// modified. Keyword, weight and threshold categories present in p replace the
// whole category. Combinations present in p replace the whole list. Resources
// are replaced per country key. When the result fails validation, base is
// returned together with a *ConfigError naming source.
func Overlay(base *ResolvedConfig, p *PartialConfig, source string) (*ResolvedConfig, error) {
	out := base.Clone()
	if p == nil {
		return out, nil
	}

	for sev, phrases := range p.Keywords {
		out.Keywords[sev] = normalizePhrases(phrases)
	}
	for sev, w := range p.Weights {
		out.Weights[sev] = w
	}
	if p.Combinations != nil {
		out.Combinations = make([]Combination, 0, len(p.Combinations))
		for _, c := range p.Combinations {
			out.Combinations = append(out.Combinations, Combination{normalize(c[0]), normalize(c[1])})
		}
	}
	if p.CombinationScore != nil {
		out.CombinationScore = *p.CombinationScore
	}
	for tier, floor := range p.Thresholds {
		out.Thresholds[tier] = floor
	}
	for country, list := range p.Resources {
		out.Resources[strings.ToUpper(country)] = cloneResources(list)
	}
	for country, list := range p.SupportResources {
		out.SupportResources[strings.ToUpper(country)] = cloneResources(list)
	}
	if p.Confidence != nil {
		out.Confidence = p.Confidence.clone()
	}

	if err := out.Validate(); err != nil {
		return base.Clone(), &apperrors.ConfigError{Source: source, Err: err}
	}
	return out, nil
}

// Validate checks the structural invariants of a resolved config.
func (c *ResolvedConfig) Validate() error {
	seen := make(map[string]Severity)
	for _, sev := range Severities {
		if _, ok := c.Keywords[sev]; !ok {
			return fmt.Errorf("missing keyword category %q", sev)
		}
		for _, phrase := range c.Keywords[sev] {
			if phrase == "" {
				return fmt.Errorf("empty phrase in category %q", sev)
			}
			if prev, dup := seen[phrase]; dup {
				return fmt.Errorf("phrase %q appears in both %q and %q", phrase, prev, sev)
			}
			seen[phrase] = sev
		}
	}
	for sev := range c.Keywords {
		if !validSeverity(sev) {
			return fmt.Errorf("unknown keyword category %q", sev)
		}
	}

	for i, sev := range Severities {
		w, ok := c.Weights[sev]
		if !ok || w <= 0 {
			return fmt.Errorf("weight for %q must be positive", sev)
		}
		if i > 0 && w >= c.Weights[Severities[i-1]] {
			return fmt.Errorf("weight for %q must be lower than %q", sev, Severities[i-1])
		}
	}

	if c.CombinationScore < c.Weights[SeverityHigh] {
		return fmt.Errorf("combination score %.2f must be at least the high weight %.2f", c.CombinationScore, c.Weights[SeverityHigh])
	}
	for _, pair := range c.Combinations {
		if pair[0] == "" || pair[1] == "" || pair[0] == pair[1] {
			return fmt.Errorf("invalid combination %v", pair)
		}
	}

	for i, tier := range ThresholdTiers {
		floor, ok := c.Thresholds[tier]
		if !ok || floor <= 0 {
			return fmt.Errorf("threshold for %q must be positive", tier)
		}
		if i > 0 && floor >= c.Thresholds[ThresholdTiers[i-1]] {
			return fmt.Errorf("threshold for %q must be lower than %q", tier, ThresholdTiers[i-1])
		}
	}
	// one critical phrase on its own must reach at least the high tier
	if c.Weights[SeverityCritical] < c.Thresholds[TierHigh] {
		return fmt.Errorf("critical weight %.2f must be at least the high threshold %.2f", c.Weights[SeverityCritical], c.Thresholds[TierHigh])
	}

	for country, list := range c.Resources {
		if err := validateResources(country, list); err != nil {
			return err
		}
	}
	for country, list := range c.SupportResources {
		if err := validateResources(country, list); err != nil {
			return err
		}
	}

	m := c.Confidence
	if m.FramedFactor < 0 || m.FramedFactor > 1 || m.Max <= 0 || m.Max > 1 || m.FramedCap < 0 || m.FramedCap > m.Max || m.Window < 0 {
		return fmt.Errorf("confidence model out of range")
	}
	for _, sev := range Severities {
		if s := m.Specificity[sev]; s <= 0 || s > 1 {
			return fmt.Errorf("confidence specificity for %q must be in (0,1]", sev)
		}
	}

	return nil
}

func validateResources(country string, list []Resource) error {
	ids := make(map[string]bool, len(list))
	for _, r := range list {
		if r.ID == "" {
			return fmt.Errorf("resource without id in %s catalog", country)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource id %q in %s catalog", r.ID, country)
		}
		ids[r.ID] = true
		if r.Number == "" && r.URL == "" {
			return fmt.Errorf("resource %q has neither number nor url", r.ID)
		}
		switch r.Type {
		case ResourceVoice, ResourceText, ResourceEmergency, ResourceLink:
		default:
			return fmt.Errorf("resource %q has unknown type %q", r.ID, r.Type)
		}
	}
	return nil
}

func validSeverity(s Severity) bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

func normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, normalize(p))
	}
	return out
}

// Clone returns a deep copy.
func (c *ResolvedConfig) Clone() *ResolvedConfig {
	out := &ResolvedConfig{
		Keywords:         make(map[Severity][]string, len(c.Keywords)),
		Weights:          make(map[Severity]float64, len(c.Weights)),
		Combinations:     append([]Combination(nil), c.Combinations...),
		CombinationScore: c.CombinationScore,
		Thresholds:       make(map[Tier]float64, len(c.Thresholds)),
		Resources:        make(map[string][]Resource, len(c.Resources)),
		SupportResources: make(map[string][]Resource, len(c.SupportResources)),
		Confidence:       c.Confidence.clone(),
	}
	for k, v := range c.Keywords {
		out.Keywords[k] = append([]string(nil), v...)
	}
	for k, v := range c.Weights {
		out.Weights[k] = v
	}
	for k, v := range c.Thresholds {
		out.Thresholds[k] = v
	}
	for k, v := range c.Resources {
		out.Resources[k] = cloneResources(v)
	}
	for k, v := range c.SupportResources {
		out.SupportResources[k] = cloneResources(v)
	}
	return out
}

func (m ConfidenceModel) clone() ConfidenceModel {
	out := m
	out.Specificity = make(map[Severity]float64, len(m.Specificity))
	for k, v := range m.Specificity {
		out.Specificity[k] = v
	}
	out.PrefixCues = normalizePhrases(m.PrefixCues)
	out.SuffixCues = normalizePhrases(m.SuffixCues)
	return out
}

func cloneResources(list []Resource) []Resource {
	out := make([]Resource, len(list))
	for i, r := range list {
		r.DemographicTags = append([]string(nil), r.DemographicTags...)
		out[i] = r
	}
	return out
}
