package events

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lifeline-care/crisis/internal/crisis/config"
)

const maxFrequentIndicators = 10

// ProviderReport is the clinician hand-off summary of a set of events.
type ProviderReport struct {
	GeneratedAt         time.Time           `json:"generated_at"`
	RiskAssessment      RiskAssessment      `json:"risk_assessment"`
	InterventionHistory InterventionHistory `json:"intervention_history"`
	Recommendations     []string            `json:"recommendations"`
}

// RiskAssessment summarizes the observed risk levels.
type RiskAssessment struct {
	HighestRisk        config.Tier         `json:"highest_risk"`
	TotalEvents        int                 `json:"total_events"`
	ByRisk             map[config.Tier]int `json:"by_risk"`
	AverageConfidence  float64             `json:"average_confidence"`
	FirstEvent         *time.Time          `json:"first_event,omitempty"`
	LastEvent          *time.Time          `json:"last_event,omitempty"`
	FrequentIndicators []IndicatorCount    `json:"frequent_indicators"`
}

// IndicatorCount is how many events matched an indicator phrase.
type IndicatorCount struct {
	Indicator string `json:"indicator"`
	Count     int    `json:"count"`
}

// InterventionHistory lists the events and whether they were responded to.
type InterventionHistory struct {
	Events      []EventSummary `json:"events"`
	Responded   int            `json:"responded"`
	Unresponded int            `json:"unresponded"`
}

// EventSummary is one line of the intervention history.
type EventSummary struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	RiskLevel config.Tier `json:"risk_level"`
	Responded bool        `json:"responded"`
}

var recommendationsByRisk = map[config.Tier][]string{
	config.TierCritical: {
		"Immediate psychiatric evaluation recommended",
		"Review and update the safety plan within 24 hours",
		"Daily check-ins until risk decreases",
	},
	config.TierHigh: {
		"Urgent clinical follow-up within 48 hours",
		"Collaborative safety planning recommended",
	},
	config.TierModerate: {
		"Schedule a follow-up appointment within one week",
		"Monitor mood and warning signs",
	},
	config.TierLow: {
		"Continue routine care with periodic check-ins",
	},
	config.TierNone: {
		"No crisis indicators recorded; continue routine care",
	},
}

// PrepareProviderReport builds a report from events. Recommendations depend
// only on the highest observed risk and the number of unresponded events.
func PrepareProviderReport(events []CrisisEvent, now time.Time) ProviderReport {
	sorted := make([]CrisisEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	assessment := RiskAssessment{
		HighestRisk:        config.TierNone,
		TotalEvents:        len(sorted),
		ByRisk:             make(map[config.Tier]int),
		FrequentIndicators: []IndicatorCount{},
	}
	history := InterventionHistory{Events: make([]EventSummary, 0, len(sorted))}
	counts := make(map[string]int)
	var confidenceSum float64

	for _, e := range sorted {
		if e.RiskLevel.Rank() > assessment.HighestRisk.Rank() {
			assessment.HighestRisk = e.RiskLevel
		}
		assessment.ByRisk[e.RiskLevel]++
		confidenceSum += e.Confidence

		seen := make(map[string]bool, len(e.Indicators))
		for _, ind := range e.Indicators {
			if !seen[ind] {
				seen[ind] = true
				counts[ind]++
			}
		}

		if e.Responded {
			history.Responded++
		} else {
			history.Unresponded++
		}
		history.Events = append(history.Events, EventSummary{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			RiskLevel: e.RiskLevel,
			Responded: e.Responded,
		})
	}

	if n := len(sorted); n > 0 {
		first, last := sorted[0].Timestamp, sorted[n-1].Timestamp
		assessment.FirstEvent = &first
		assessment.LastEvent = &last
		assessment.AverageConfidence = math.Round(confidenceSum/float64(n)*100) / 100
	}

	for ind, c := range counts {
		assessment.FrequentIndicators = append(assessment.FrequentIndicators, IndicatorCount{Indicator: ind, Count: c})
	}
	sort.Slice(assessment.FrequentIndicators, func(i, j int) bool {
		a, b := assessment.FrequentIndicators[i], assessment.FrequentIndicators[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Indicator < b.Indicator
	})
	if len(assessment.FrequentIndicators) > maxFrequentIndicators {
		assessment.FrequentIndicators = assessment.FrequentIndicators[:maxFrequentIndicators]
	}

	recommendations := append([]string(nil), recommendationsByRisk[assessment.HighestRisk]...)
	if history.Unresponded > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("Follow up on %d unresponded crisis event(s)", history.Unresponded))
	}

	return ProviderReport{
		GeneratedAt:         now.UTC(),
		RiskAssessment:      assessment,
		InterventionHistory: history,
		Recommendations:     recommendations,
	}
}
