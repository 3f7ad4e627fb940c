// Package config holds the crisis engine's keyword sets, weights, thresholds
// and resource catalogs, and resolves remote and file overrides on top of the
// built-in defaults.
package config

// Severity tags a keyword category.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityUrgency  Severity = "urgency"
	SeverityModerate Severity = "moderate"
)

// Severities lists keyword categories from the heaviest weight to the lightest.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityUrgency, SeverityModerate}

// Tier is the discretized output of the risk scorer.
type Tier string

const (
	TierNone     Tier = "none"
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// ThresholdTiers lists the tiers that carry a minimum score, highest first.
var ThresholdTiers = []Tier{TierCritical, TierHigh, TierModerate, TierLow}

// Rank orders tiers from none (0) to critical (4). Unknown tiers rank as none.
func (t Tier) Rank() int {
	switch t {
	case TierLow:
		return 1
	case TierModerate:
		return 2
	case TierHigh:
		return 3
	case TierCritical:
		return 4
	}
	return 0
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierNone || t.Rank() > 0
}

// RequiresImmediate reports whether the tier triggers the call/text actions.
func (t Tier) RequiresImmediate() bool {
	return t == TierCritical || t == TierHigh
}

// Combination is a pair of phrases whose joint presence is scored as a bonus.
type Combination [2]string

// ResourceType classifies how a resource is reached.
type ResourceType string

const (
	ResourceVoice     ResourceType = "voice"
	ResourceText      ResourceType = "text"
	ResourceEmergency ResourceType = "emergency"
	ResourceLink      ResourceType = "resource"
)

// Resource is an emergency or support contact from the catalog.
type Resource struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Number          string       `json:"number,omitempty" yaml:"number,omitempty"`
	URL             string       `json:"url,omitempty" yaml:"url,omitempty"`
	Keyword         string       `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Description     string       `json:"description" yaml:"description"`
	Type            ResourceType `json:"type" yaml:"type"`
	Priority        int          `json:"priority" yaml:"priority"`
	Country         string       `json:"country" yaml:"country"`
	DemographicTags []string     `json:"demographicTags,omitempty" yaml:"demographicTags,omitempty"`
}

// ConfidenceModel tunes how match specificity maps to a confidence value.
type ConfidenceModel struct {
	// Specificity is the base confidence of an unframed match per category
	Specificity map[Severity]float64 `json:"specificity" yaml:"specificity"`
	// FramedFactor multiplies the base confidence of a match inside an informational frame
	FramedFactor float64 `json:"framedFactor" yaml:"framedFactor"`
	// CorroborationStep is added for each additional unframed indicator
	CorroborationStep float64 `json:"corroborationStep" yaml:"corroborationStep"`
	// Max caps the confidence
	Max float64 `json:"max" yaml:"max"`
	// FramedCap caps the confidence when framed indicators are at least as many as unframed ones
	FramedCap float64 `json:"framedCap" yaml:"framedCap"`
	// Window is how many words before or after a match are checked for framing cues
	Window int `json:"window" yaml:"window"`
	// PrefixCues frame a match when they appear within Window words before it
	PrefixCues []string `json:"prefixCues" yaml:"prefixCues"`
	// SuffixCues frame a match when they appear within Window words after it
	SuffixCues []string `json:"suffixCues" yaml:"suffixCues"`
}

// ResolvedConfig is the effective configuration. It is built once and never
// mutated; a reload produces a new value.
type ResolvedConfig struct {
	Keywords         map[Severity][]string `json:"keywords" yaml:"keywords"`
	Weights          map[Severity]float64  `json:"weights" yaml:"weights"`
	Combinations     []Combination         `json:"combinations" yaml:"combinations"`
	CombinationScore float64               `json:"combinationScore" yaml:"combinationScore"`
	Thresholds       map[Tier]float64      `json:"thresholds" yaml:"thresholds"`
	Resources        map[string][]Resource `json:"resources" yaml:"resources"`
	SupportResources map[string][]Resource `json:"supportResources" yaml:"supportResources"`
	Confidence       ConfidenceModel       `json:"confidence" yaml:"confidence"`
}

// PartialConfig is an override payload. Absent (nil) fields keep the base value.
type PartialConfig struct {
	Keywords         map[Severity][]string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Weights          map[Severity]float64  `json:"weights,omitempty" yaml:"weights,omitempty"`
	Combinations     []Combination         `json:"combinations,omitempty" yaml:"combinations,omitempty"`
	CombinationScore *float64              `json:"combinationScore,omitempty" yaml:"combinationScore,omitempty"`
	Thresholds       map[Tier]float64      `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Resources        map[string][]Resource `json:"resources,omitempty" yaml:"resources,omitempty"`
	SupportResources map[string][]Resource `json:"supportResources,omitempty" yaml:"supportResources,omitempty"`
	Confidence       *ConfidenceModel      `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}
