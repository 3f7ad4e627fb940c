// Package resources selects emergency and support contacts for a user.
package resources

import (
	"sort"
	"strings"

	"github.com/lifeline-care/crisis/internal/crisis/config"
)

// DemographicTag is a profile flag that resources can be targeted at.
type DemographicTag string

const (
	TagVeteran DemographicTag = "veteran"
	TagLGBTQ   DemographicTag = "lgbtq"
	TagYouth   DemographicTag = "youth"
)

// ParseTag maps a free-form flag to a known tag.
func ParseTag(s string) (DemographicTag, bool) {
	switch tag := DemographicTag(strings.ToLower(strings.TrimSpace(s))); tag {
	case TagVeteran, TagLGBTQ, TagYouth:
		return tag, true
	}
	return "", false
}

// Profile carries the non-identifying facts used to tailor resources.
// UserID is an opaque key for the event log and is never used for selection.
type Profile struct {
	UserID   string           `json:"userId,omitempty"`
	AgeRange string           `json:"ageRange,omitempty"`
	Flags    []DemographicTag `json:"flags,omitempty"`
	Country  string           `json:"country,omitempty"`
}

func (p *Profile) hasFlag(tag string) bool {
	for _, f := range p.Flags {
		if string(f) == tag {
			return true
		}
	}
	return false
}

// Selector reads resource catalogs from one resolved config.
type Selector struct {
	cfg            *config.ResolvedConfig
	defaultCountry string
}

// NewSelector creates a selector. Catalog lookups fall back to defaultCountry,
// then to "US".
func NewSelector(cfg *config.ResolvedConfig, defaultCountry string) *Selector {
	if defaultCountry == "" {
		defaultCountry = "US"
	}
	return &Selector{cfg: cfg, defaultCountry: strings.ToUpper(defaultCountry)}
}

// Emergency returns the emergency catalog for the profile's country sorted by
// priority then id. With demographic flags, tagged resources that match none of
// them are dropped; untagged resources are always kept.
func (s *Selector) Emergency(profile *Profile) []config.Resource {
	country := ""
	if profile != nil {
		country = profile.Country
	}
	list := sorted(s.catalog(s.cfg.Resources, country))

	if profile == nil || len(profile.Flags) == 0 {
		return list
	}

	filtered := list[:0]
	for _, r := range list {
		if len(r.DemographicTags) == 0 || matchesAny(profile, r.DemographicTags) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Support returns the support catalog for country sorted by priority then id.
func (s *Selector) Support(country string) []config.Resource {
	return sorted(s.catalog(s.cfg.SupportResources, country))
}

// TopVoice returns the most urgent untagged voice line for the profile.
func (s *Selector) TopVoice(profile *Profile) (config.Resource, bool) {
	return first(s.Emergency(profile), config.ResourceVoice)
}

// TopText returns the most urgent untagged text line for the profile.
func (s *Selector) TopText(profile *Profile) (config.Resource, bool) {
	return first(s.Emergency(profile), config.ResourceText)
}

func (s *Selector) catalog(catalogs map[string][]config.Resource, country string) []config.Resource {
	for _, key := range []string{strings.ToUpper(country), s.defaultCountry, "US"} {
		if list, ok := catalogs[key]; ok && key != "" {
			return list
		}
	}
	return nil
}

func first(list []config.Resource, t config.ResourceType) (config.Resource, bool) {
	for _, r := range list {
		if r.Type == t && len(r.DemographicTags) == 0 {
			return r, true
		}
	}
	for _, r := range list {
		if r.Type == t {
			return r, true
		}
	}
	return config.Resource{}, false
}

func matchesAny(profile *Profile, tags []string) bool {
	for _, tag := range tags {
		if profile.hasFlag(strings.ToLower(tag)) {
			return true
		}
	}
	return false
}

// sorted returns a copy so callers never reorder the shared catalog.
func sorted(list []config.Resource) []config.Resource {
	out := make([]config.Resource, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
