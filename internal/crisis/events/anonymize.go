package events

import (
	"regexp"
	"time"

	"github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/privacy"
)

// PrivacyLevelAnonymized marks records that passed through the anonymizer.
const PrivacyLevelAnonymized = "anonymized"

// maxIndicatorLen bounds indicator strings so free text cannot ride along as an "indicator".
const maxIndicatorLen = 64

var allowedFields = map[string]bool{
	"risk":       true,
	"confidence": true,
	"indicators": true,
	"score":      true,
	"timestamp":  true,
	"userId":     true,
}

var opaqueID = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

// Anonymizer strips a raw record down to the allowed fields. User ids that
// look like personal data are replaced with a pseudonym, or dropped when no
// pseudonymizer is configured.
type Anonymizer struct {
	Pseudonyms *privacy.Pseudonymizer
	Now        func() time.Time
}

// AnonymizeCrisisData anonymizes raw without pseudonymization.
func AnonymizeCrisisData(raw map[string]any) map[string]any {
	return Anonymizer{}.Anonymize(raw)
}

// Anonymize returns a new map holding only allowed, non-identifying values
// plus anonymizedAt and privacyLevel.
func (a Anonymizer) Anonymize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(allowedFields)+2)

	for key, value := range raw {
		if !allowedFields[key] {
			continue
		}
		switch key {
		case "userId":
			if id, ok := a.userID(value); ok {
				out[key] = id
			}
		case "indicators":
			out[key] = cleanIndicators(value)
		case "risk":
			if s, ok := value.(string); ok && config.Tier(s).Valid() {
				out[key] = s
			}
		case "timestamp":
			switch v := value.(type) {
			case time.Time:
				out[key] = v.UTC().Format(time.RFC3339Nano)
			case string:
				if _, err := time.Parse(time.RFC3339Nano, v); err == nil {
					out[key] = v
				}
			}
		default:
			if n, ok := number(value); ok {
				out[key] = n
			}
		}
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	out["anonymizedAt"] = now().UTC().Format(time.RFC3339Nano)
	out["privacyLevel"] = PrivacyLevelAnonymized
	return out
}

func (a Anonymizer) userID(value any) (string, bool) {
	id, ok := value.(string)
	if !ok || id == "" {
		return "", false
	}
	if privacy.IsPseudonym(id) {
		return id, true
	}
	if opaqueID.MatchString(id) && !privacy.ContainsPII(id) {
		return id, true
	}
	if a.Pseudonyms != nil {
		return a.Pseudonyms.Pseudonymize(id), true
	}
	return "", false
}

func cleanIndicators(value any) []string {
	var raw []string
	switch v := value.(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" || len(s) > maxIndicatorLen || privacy.ContainsPII(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
