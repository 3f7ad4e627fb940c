// Package api exposes the crisis engine over HTTP.
package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/crisis"
	"github.com/lifeline-care/crisis/internal/crisis/followup"
	"github.com/lifeline-care/crisis/internal/crisis/resources"
	"github.com/lifeline-care/crisis/internal/privacy"
	"github.com/lifeline-care/crisis/internal/shared/auth"
	"github.com/lifeline-care/crisis/internal/shared/config"
	"github.com/lifeline-care/crisis/internal/shared/errors"
	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/middleware"
)

// Options configures the handler's guards.
type Options struct {
	Auth    config.AuthConfig
	Limiter *middleware.IPRateLimiter
	Guard   *privacy.Guard
	Logger  *zap.Logger
}

// Handler provides HTTP handlers for the crisis engine
type Handler struct {
	svc    *crisis.Service
	opts   Options
	logger *zap.Logger
}

// NewHandler creates a new crisis handler
func NewHandler(svc *crisis.Service, opts Options) *Handler {
	if opts.Guard == nil {
		opts.Guard = privacy.NewGuard(opts.Logger)
	}
	return &Handler{
		svc:    svc,
		opts:   opts,
		logger: logging.OrNop(opts.Logger).With(zap.String("component", "crisis_api")),
	}
}

// Routes registers the crisis routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// End-user routes
	r.Group(func(r chi.Router) {
		if h.opts.Limiter != nil {
			r.Use(h.opts.Limiter.Middleware)
		}
		r.Post("/analyze", h.Analyze)
		r.Route("/actions", func(r chi.Router) {
			r.Post("/call", h.Call)
			r.Post("/text", h.Text)
			r.Post("/open", h.Open)
		})
	})

	r.Get("/resources", h.EmergencyResources)
	r.Get("/resources/support", h.SupportResources)
	r.Get("/config", h.GetConfig)

	// Provider routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.opts.Auth))
		r.Use(auth.RequireRoles(h.opts.Auth.ProviderRoles...))
		r.Use(h.opts.Guard.Middleware)

		r.Get("/history", h.History)
		r.Get("/report", h.Report)
		r.Post("/events/{eventID}/responded", h.MarkResponded)
		r.Route("/followups", func(r chi.Router) {
			r.Get("/", h.ListFollowUps)
			r.Post("/", h.ScheduleFollowUp)
		})
		r.Post("/config/reload", h.ReloadConfig)
	})

	return r
}

// --- End-user handlers ---

type analyzeRequest struct {
	Text    string             `json:"text"`
	Profile *resources.Profile `json:"profile,omitempty"`
}

// Analyze scores an utterance and returns the planned response.
// The text itself is never logged.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	out := h.svc.Analyze(r.Context(), req.Text, cleanProfile(req.Profile))
	writeJSON(w, http.StatusOK, out)
}

type callRequest struct {
	Number  string             `json:"number"`
	Profile *resources.Profile `json:"profile,omitempty"`
}

// Call requests a call. Delivery failures are reported in the outcome body.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Call(r.Context(), req.Number, cleanProfile(req.Profile)))
}

type textRequest struct {
	Country string             `json:"country"`
	Profile *resources.Profile `json:"profile,omitempty"`
}

// Text requests a message to the crisis text line.
func (h *Handler) Text(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	profile := cleanProfile(req.Profile)
	if req.Country != "" {
		if profile == nil {
			profile = &resources.Profile{}
		}
		profile.Country = req.Country
	}
	writeJSON(w, http.StatusOK, h.svc.Text(r.Context(), profile))
}

type openRequest struct {
	URL string `json:"url"`
}

// Open requests a resource web page.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Open(r.Context(), req.URL))
}

// EmergencyResources lists emergency contacts for a country and demographic tags.
func (h *Handler) EmergencyResources(w http.ResponseWriter, r *http.Request) {
	profile := &resources.Profile{Country: r.URL.Query().Get("country")}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		for _, raw := range strings.Split(tags, ",") {
			if tag, ok := resources.ParseTag(raw); ok {
				profile.Flags = append(profile.Flags, tag)
			}
		}
	}

	list := h.svc.Emergency(profile)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"total": len(list),
	})
}

// SupportResources lists non-emergency support services.
func (h *Handler) SupportResources(w http.ResponseWriter, r *http.Request) {
	list := h.svc.Support(r.URL.Query().Get("country"))
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"total": len(list),
	})
}

// GetConfig returns the active resolved config.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Config())
}

// --- Provider handlers ---

// History lists recorded crisis events.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	list := h.svc.History(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"total": len(list),
	})
}

// Report returns the provider summary of recorded events.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Report(r.Context()))
}

// MarkResponded flags an event as handled.
func (h *Handler) MarkResponded(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.MarkResponded(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if user := auth.GetUser(r.Context()); user != nil {
		h.logger.Info("crisis event responded",
			zap.String("event_id", event.ID),
			zap.String("provider", user.ID),
		)
	}
	writeJSON(w, http.StatusOK, event)
}

type followUpRequest struct {
	Type          string     `json:"type"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	Offset        string     `json:"offset,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	Priority      string     `json:"priority,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	EventID       string     `json:"eventId,omitempty"`
}

// ScheduleFollowUp schedules a provider follow-up. Provider defaults to the caller.
func (h *Handler) ScheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	var offset time.Duration
	if req.Offset != "" {
		d, err := time.ParseDuration(req.Offset)
		if err != nil {
			writeError(w, errors.Validation("invalid follow-up request", map[string]string{
				"offset": "must be a duration such as 24h",
			}))
			return
		}
		offset = d
	}

	provider := req.Provider
	if provider == "" {
		if user := auth.GetUser(r.Context()); user != nil {
			provider = user.ID
		}
	}

	entry, err := h.svc.ScheduleFollowUp(r.Context(), followup.Request{
		Type:          req.Type,
		ScheduledTime: req.ScheduledTime,
		Offset:        offset,
		Provider:      provider,
		Priority:      followup.Priority(req.Priority),
		Notes:         req.Notes,
		EventID:       req.EventID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListFollowUps lists scheduled follow-ups.
func (h *Handler) ListFollowUps(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.FollowUps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"total": len(list),
	})
}

// ReloadConfig re-fetches the remote override. Invalid layers are reported
// but the engine keeps serving the last valid config.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	status := "reloaded"
	var warnings []string
	if err := h.svc.Reload(r.Context()); err != nil {
		status = "degraded"
		warnings = append(warnings, err.Error())
		h.logger.Warn("crisis config reload degraded", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"warnings": warnings,
	})
}

// --- Helpers ---

// cleanProfile drops unknown demographic flags.
func cleanProfile(p *resources.Profile) *resources.Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Flags = nil
	for _, f := range p.Flags {
		if tag, ok := resources.ParseTag(string(f)); ok {
			out.Flags = append(out.Flags, tag)
		}
	}
	return &out
}

// decodeOptional decodes a JSON body; an empty body leaves v unchanged.
func decodeOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if stderrors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	if stderrors.Is(err, errors.ErrPersistence) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "storage unavailable", "code": "PERSISTENCE_ERROR"})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
