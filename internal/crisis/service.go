// Package crisis wires the detection and response components behind one
// facade used by the HTTP API and the CLI.
package crisis

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/crisis/events"
	"github.com/lifeline-care/crisis/internal/crisis/followup"
	"github.com/lifeline-care/crisis/internal/crisis/resources"
	"github.com/lifeline-care/crisis/internal/crisis/response"
	"github.com/lifeline-care/crisis/internal/crisis/scorer"
	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/metrics"
)

// Deps are the collaborators of a Service. Recorder, Followups and Feedback
// may be nil; the matching operations are then unavailable or skipped.
type Deps struct {
	Configs        *config.Store
	Recorder       *events.Recorder
	Followups      *followup.Scheduler
	Feedback       response.FeedbackRequester
	Launcher       response.Launcher
	DefaultCountry string
	ActionTimeout  time.Duration
	LogTimeout     time.Duration
	Logger         *zap.Logger
}

// Analysis is the result of scoring one utterance and planning the response.
type Analysis struct {
	Analysis scorer.Result           `json:"analysis"`
	Response response.CrisisResponse `json:"response"`
}

// engine is everything derived from one resolved config.
type engine struct {
	scorer   *scorer.Scorer
	selector *resources.Selector
}

// Service is the crisis engine facade.
type Service struct {
	configs        *config.Store
	defaultCountry string
	engine         atomic.Pointer[engine]

	planner    *response.Planner
	dispatcher *response.Dispatcher
	recorder   *events.Recorder
	followups  *followup.Scheduler
	logger     *zap.Logger
	now        func() time.Time
}

// NewService builds the engine for the current config and rebuilds it on
// every config change.
func NewService(d Deps) *Service {
	if d.Configs == nil {
		d.Configs = config.NewStore(config.WithLogger(d.Logger))
	}
	s := &Service{
		configs:        d.Configs,
		defaultCountry: d.DefaultCountry,
		dispatcher:     response.NewDispatcher(d.Launcher, d.ActionTimeout, d.Logger),
		recorder:       d.Recorder,
		followups:      d.Followups,
		logger:         logging.OrNop(d.Logger).With(zap.String("component", "crisis_service")),
		now:            time.Now,
	}

	// avoid handing the planner a typed nil
	var eventLogger response.EventLogger
	if d.Recorder != nil {
		eventLogger = d.Recorder
	}
	s.planner = response.NewPlanner(s, eventLogger, d.Feedback, d.LogTimeout, d.Logger)

	s.install(d.Configs.Current())
	d.Configs.OnChange(s.install)
	return s
}

func (s *Service) install(cfg *config.ResolvedConfig) {
	s.engine.Store(&engine{
		scorer:   scorer.New(cfg),
		selector: resources.NewSelector(cfg, s.defaultCountry),
	})
	s.logger.Info("crisis engine rebuilt",
		zap.Int("resource_countries", len(cfg.Resources)),
		zap.Int("combinations", len(cfg.Combinations)),
	)
}

// Selector returns the resource selector for the active config.
func (s *Service) Selector() *resources.Selector {
	return s.engine.Load().selector
}

// Config returns the active resolved config.
func (s *Service) Config() *config.ResolvedConfig {
	return s.configs.Current()
}

// Reload re-fetches the remote override and rebuilds the config.
func (s *Service) Reload(ctx context.Context) error {
	return s.configs.Reload(ctx)
}

// Score rates text without planning a response or logging an event.
func (s *Service) Score(text string) scorer.Result {
	start := time.Now()
	result := s.engine.Load().scorer.Analyze(text)
	metrics.RecordAnalysis(string(result.Risk), time.Since(start))
	return result
}

// Analyze scores text and plans the response. The event write happens in
// the background and never delays or alters the returned actions.
func (s *Service) Analyze(ctx context.Context, text string, profile *resources.Profile) Analysis {
	result := s.Score(text)
	return Analysis{
		Analysis: result,
		Response: s.planner.HandleCrisis(ctx, result, profile),
	}
}

// Emergency returns the emergency resources for profile.
func (s *Service) Emergency(profile *resources.Profile) []config.Resource {
	return s.Selector().Emergency(profile)
}

// Support returns the support resources for country.
func (s *Service) Support(country string) []config.Resource {
	return s.Selector().Support(country)
}

// Call requests a call to number, or to the top voice line for profile
// when number is empty.
func (s *Service) Call(ctx context.Context, number string, profile *resources.Profile) response.ActionOutcome {
	if number == "" {
		if line, ok := s.Selector().TopVoice(profile); ok {
			number = line.Number
		}
	}
	return s.dispatcher.MakeEmergencyCall(ctx, number)
}

// Text requests a message to the top crisis text line for profile.
func (s *Service) Text(ctx context.Context, profile *resources.Profile) response.ActionOutcome {
	line, _ := s.Selector().TopText(profile)
	return s.dispatcher.SendCrisisText(ctx, line)
}

// Open requests an https resource page.
func (s *Service) Open(ctx context.Context, url string) response.ActionOutcome {
	return s.dispatcher.OpenURL(ctx, url)
}

// History returns the recorded crisis events.
func (s *Service) History(ctx context.Context) []events.CrisisEvent {
	if s.recorder == nil {
		return []events.CrisisEvent{}
	}
	return s.recorder.History(ctx)
}

// Report summarizes the recorded events for a provider.
func (s *Service) Report(ctx context.Context) events.ProviderReport {
	return events.PrepareProviderReport(s.History(ctx), s.now())
}

// MarkResponded flags an event as handled by a provider.
func (s *Service) MarkResponded(ctx context.Context, eventID string) (events.CrisisEvent, error) {
	if s.recorder == nil {
		return events.CrisisEvent{}, errUnavailable("event recording")
	}
	return s.recorder.MarkResponded(ctx, eventID)
}

// ScheduleFollowUp schedules a provider follow-up.
func (s *Service) ScheduleFollowUp(ctx context.Context, req followup.Request) (followup.Entry, error) {
	if s.followups == nil {
		return followup.Entry{}, errUnavailable("follow-up scheduling")
	}
	return s.followups.Schedule(ctx, req)
}

// FollowUps lists scheduled follow-ups.
func (s *Service) FollowUps(ctx context.Context) ([]followup.Entry, error) {
	if s.followups == nil {
		return []followup.Entry{}, nil
	}
	return s.followups.List(ctx)
}

// Wait blocks until background event writes finish.
func (s *Service) Wait() {
	s.planner.Wait()
}
