// Package response turns a risk analysis into the ordered actions shown to the
// user and issues the outbound call, text and URL requests.
package response

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/crisis/resources"
	"github.com/lifeline-care/crisis/internal/crisis/scorer"
	"github.com/lifeline-care/crisis/internal/shared/logging"
)

// ActionType names a response action
type ActionType string

const (
	ActionCall             ActionType = "call"
	ActionText             ActionType = "text"
	ActionContinueChat     ActionType = "continue_chat"
	ActionSuggestResources ActionType = "suggest_resources"
)

// CallLabel is the label of the primary call action.
const CallLabel = "Talk to Someone Now"

// Action is one entry of the ordered response plan.
type Action struct {
	Type      ActionType        `json:"type"`
	Number    string            `json:"number,omitempty"`
	Keyword   string            `json:"keyword,omitempty"`
	Label     string            `json:"label,omitempty"`
	Resources []config.Resource `json:"resources,omitempty"`
}

// CrisisResponse is returned to the caller for rendering.
type CrisisResponse struct {
	RiskLevel config.Tier       `json:"riskLevel"`
	Actions   []Action          `json:"actions"`
	Resources []config.Resource `json:"resources"`
}

// EventLogger persists an anonymized record of an analysis.
type EventLogger interface {
	LogCrisisEvent(ctx context.Context, analysis scorer.Result, userID string) error
}

// FeedbackRequester asks the client for the Warning haptic and notification.
type FeedbackRequester interface {
	Warn(ctx context.Context, riskLevel string) error
}

// SelectorSource yields the selector for the active config.
type SelectorSource interface {
	Selector() *resources.Selector
}

// Planner maps risk tiers to action templates.
type Planner struct {
	selectors  SelectorSource
	events     EventLogger
	feedback   FeedbackRequester
	logTimeout time.Duration
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewPlanner creates a planner. events and feedback may be nil.
func NewPlanner(selectors SelectorSource, events EventLogger, feedback FeedbackRequester, logTimeout time.Duration, logger *zap.Logger) *Planner {
	if logTimeout <= 0 {
		logTimeout = 10 * time.Second
	}
	return &Planner{
		selectors:  selectors,
		events:     events,
		feedback:   feedback,
		logTimeout: logTimeout,
		logger:     logging.OrNop(logger).With(zap.String("component", "planner")),
	}
}

// HandleCrisis builds the response for analysis. Feedback and event logging
// are best-effort; their failures never change the returned actions.
func (p *Planner) HandleCrisis(ctx context.Context, analysis scorer.Result, profile *resources.Profile) CrisisResponse {
	sel := p.selectors.Selector()
	resp := CrisisResponse{RiskLevel: analysis.Risk, Resources: []config.Resource{}}

	switch analysis.Risk {
	case config.TierCritical, config.TierHigh:
		resp.Actions = immediateActions(sel, profile)
		resp.Resources = sel.Emergency(profile)
		p.requestFeedback(ctx, analysis.Risk)
	case config.TierModerate:
		country := ""
		if profile != nil {
			country = profile.Country
		}
		support := sel.Support(country)
		resp.Actions = []Action{
			{Type: ActionContinueChat},
			{Type: ActionSuggestResources, Resources: support},
		}
		resp.Resources = support
	default:
		resp.Actions = []Action{{Type: ActionContinueChat}}
	}

	if analysis.Risk != config.TierNone {
		userID := ""
		if profile != nil {
			userID = profile.UserID
		}
		p.logAsync(ctx, analysis, userID)
	}

	p.logger.Debug("crisis response planned",
		zap.String("risk", string(analysis.Risk)),
		zap.Float64("score", analysis.Score),
		zap.Int("actions", len(resp.Actions)),
	)
	return resp
}

func immediateActions(sel *resources.Selector, profile *resources.Profile) []Action {
	var actions []Action

	voice, ok := sel.TopVoice(profile)
	if !ok {
		voice, ok = firstOfType(sel.Emergency(profile), config.ResourceEmergency)
	}
	if ok {
		actions = append(actions, Action{Type: ActionCall, Number: voice.Number, Label: CallLabel})
	}

	if text, ok := sel.TopText(profile); ok {
		actions = append(actions, Action{Type: ActionText, Number: text.Number, Keyword: text.Keyword})
	}

	return append(actions, Action{Type: ActionContinueChat})
}

func firstOfType(list []config.Resource, t config.ResourceType) (config.Resource, bool) {
	for _, r := range list {
		if r.Type == t {
			return r, true
		}
	}
	return config.Resource{}, false
}

func (p *Planner) requestFeedback(ctx context.Context, risk config.Tier) {
	if p.feedback == nil {
		return
	}
	if err := p.feedback.Warn(ctx, string(risk)); err != nil {
		p.logger.Warn("feedback request failed", zap.Error(err))
	}
}

// logAsync writes the event after the response is returned. The write is
// detached from the request context and bounded by logTimeout.
func (p *Planner) logAsync(ctx context.Context, analysis scorer.Result, userID string) {
	if p.events == nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("crisis event logging panicked", zap.Any("panic", r))
			}
		}()

		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.logTimeout)
		defer cancel()

		if err := p.events.LogCrisisEvent(logCtx, analysis, userID); err != nil {
			p.logger.Warn("crisis event not stored on primary path", zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight event writes finish.
func (p *Planner) Wait() {
	p.wg.Wait()
}
