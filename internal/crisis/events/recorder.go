// Package events keeps the anonymized crisis event log and builds provider
// reports from it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/crisis/scorer"
	"github.com/lifeline-care/crisis/internal/privacy"
	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
	bus "github.com/lifeline-care/crisis/internal/shared/events"
	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/metrics"
	"github.com/lifeline-care/crisis/internal/shared/types"
	"github.com/lifeline-care/crisis/internal/storage"
)

const (
	// EventsKey holds the JSON array of CrisisEvent
	EventsKey = "crisis_events"
	// FallbackKeyPrefix prefixes single-event entries written when the primary store fails
	FallbackKeyPrefix = "crisis_fallback_"

	// EventRecorded is published for every stored event
	EventRecorded = "crisis.event.recorded"
)

// CrisisEvent is the persisted, anonymized record of an analysis.
type CrisisEvent struct {
	ID           string      `json:"id"`
	Timestamp    time.Time   `json:"timestamp"`
	RiskLevel    config.Tier `json:"riskLevel"`
	Confidence   float64     `json:"confidence"`
	Score        float64     `json:"score"`
	Indicators   []string    `json:"indicators"`
	UserID       string      `json:"userId,omitempty"`
	Responded    bool        `json:"responded"`
	AnonymizedAt time.Time   `json:"anonymizedAt"`
	PrivacyLevel string      `json:"privacyLevel"`
}

// Recorder appends events to the secure primary store and falls back to a
// separate store when the primary write fails.
type Recorder struct {
	primary    storage.Store
	fallback   storage.Store
	anonymizer Anonymizer
	publisher  bus.Publisher
	locks      *storage.KeyedMutex
	logger     *zap.Logger
	now        func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithPublisher publishes every stored event.
func WithPublisher(p bus.Publisher) RecorderOption {
	return func(r *Recorder) { r.publisher = p }
}

// WithPseudonymizer replaces identifying user ids instead of dropping them.
func WithPseudonymizer(p *privacy.Pseudonymizer) RecorderOption {
	return func(r *Recorder) { r.anonymizer.Pseudonyms = p }
}

// WithLocks shares a KeyedMutex with other writers of the same store.
func WithLocks(l *storage.KeyedMutex) RecorderOption {
	return func(r *Recorder) { r.locks = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder. primary should be a sealed store.
func NewRecorder(primary, fallback storage.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		primary:  primary,
		fallback: fallback,
		locks:    storage.NewKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.anonymizer.Now = r.now
	r.logger = logging.OrNop(r.logger).With(zap.String("component", "event_recorder"))
	return r
}

// LogCrisisEvent anonymizes and stores analysis. It returns nil when the
// primary write succeeded and a *PersistenceError otherwise; Fallback on the
// error tells whether the fallback entry was written. It never panics.
func (r *Recorder) LogCrisisEvent(ctx context.Context, analysis scorer.Result, userID string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordEventLogged("lost")
			r.logger.Error("crisis event logging panicked", zap.Any("panic", rec))
			err = &apperrors.PersistenceError{Key: EventsKey, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	now := r.now().UTC()
	event := r.buildEvent(map[string]any{
		"risk":       string(analysis.Risk),
		"confidence": analysis.Confidence,
		"indicators": analysis.Indicators,
		"score":      analysis.Score,
		"timestamp":  now,
		"userId":     userID,
	})

	primaryErr := r.append(ctx, event)
	if primaryErr == nil {
		metrics.RecordEventLogged("primary")
		r.publish(ctx, event)
		return nil
	}

	fallbackErr := r.writeFallback(ctx, event, now)
	if fallbackErr != nil {
		metrics.RecordEventLogged("lost")
		r.logger.Error("crisis event lost",
			zap.String("risk", string(event.RiskLevel)),
			zap.NamedError("primary", primaryErr),
			zap.NamedError("fallback", fallbackErr),
		)
		return &apperrors.PersistenceError{Key: EventsKey, Err: errors.Join(primaryErr, fallbackErr)}
	}

	metrics.RecordEventLogged("fallback")
	r.logger.Warn("crisis event stored via fallback",
		zap.String("risk", string(event.RiskLevel)),
		zap.Error(primaryErr),
	)
	return &apperrors.PersistenceError{Key: EventsKey, Fallback: true, Err: primaryErr}
}

func (r *Recorder) buildEvent(raw map[string]any) CrisisEvent {
	anon := r.anonymizer.Anonymize(raw)

	event := CrisisEvent{
		ID:           types.NewID().String(),
		Indicators:   []string{},
		PrivacyLevel: PrivacyLevelAnonymized,
	}
	if v, ok := anon["risk"].(string); ok {
		event.RiskLevel = config.Tier(v)
	}
	if v, ok := anon["confidence"].(float64); ok {
		event.Confidence = v
	}
	if v, ok := anon["score"].(float64); ok {
		event.Score = v
	}
	if v, ok := anon["indicators"].([]string); ok {
		event.Indicators = v
	}
	if v, ok := anon["userId"].(string); ok {
		event.UserID = v
	}
	if v, ok := anon["timestamp"].(string); ok {
		event.Timestamp, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, ok := anon["anonymizedAt"].(string); ok {
		event.AnonymizedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return event
}

func (r *Recorder) append(ctx context.Context, event CrisisEvent) error {
	unlock := r.locks.Lock(EventsKey)
	defer unlock()

	list, err := r.load(ctx)
	if err != nil {
		return err
	}
	return r.save(ctx, append(list, event))
}

// load reads the event list. A missing key is an empty list; so is a corrupt
// payload, which is logged and will be replaced on the next write.
func (r *Recorder) load(ctx context.Context) ([]CrisisEvent, error) {
	data, err := r.primary.Get(ctx, EventsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []CrisisEvent{}, nil
	}
	if err != nil {
		return nil, err
	}

	var list []CrisisEvent
	if err := json.Unmarshal(data, &list); err != nil || list == nil {
		r.logger.Warn("crisis event list unreadable, starting a new list", zap.Error(err))
		return []CrisisEvent{}, nil
	}
	return list, nil
}

func (r *Recorder) save(ctx context.Context, list []CrisisEvent) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}
	return r.primary.Set(ctx, EventsKey, data)
}

func (r *Recorder) writeFallback(ctx context.Context, event CrisisEvent, now time.Time) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("fallback panic: %v", rec)
		}
	}()

	if r.fallback == nil {
		return fmt.Errorf("no fallback store")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s%d", FallbackKeyPrefix, now.UnixMilli())
	unlock := r.locks.Lock(FallbackKeyPrefix)
	defer unlock()
	for n := 1; n < 1000; n++ {
		if _, err := r.fallback.Get(ctx, key); err != nil {
			break
		}
		key = fmt.Sprintf("%s%d_%d", FallbackKeyPrefix, now.UnixMilli(), n)
	}
	return r.fallback.Set(ctx, key, data)
}

func (r *Recorder) publish(ctx context.Context, event CrisisEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, bus.NewEvent(EventRecorded, "crisis-engine", event)); err != nil {
		r.logger.Warn("failed to publish crisis event", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// History returns all stored events. Empty, unreadable or corrupt storage
// yields an empty list.
func (r *Recorder) History(ctx context.Context) []CrisisEvent {
	list, err := r.load(ctx)
	if err != nil {
		r.logger.Warn("crisis history unavailable", zap.Error(err))
		return []CrisisEvent{}
	}
	return list
}

// MarkResponded sets the responded flag on one event. It is the only
// in-place update an event ever receives.
func (r *Recorder) MarkResponded(ctx context.Context, eventID string) (CrisisEvent, error) {
	unlock := r.locks.Lock(EventsKey)
	defer unlock()

	list, err := r.load(ctx)
	if err != nil {
		return CrisisEvent{}, &apperrors.PersistenceError{Key: EventsKey, Err: err}
	}

	for i := range list {
		if list[i].ID != eventID {
			continue
		}
		list[i].Responded = true
		if err := r.save(ctx, list); err != nil {
			return CrisisEvent{}, &apperrors.PersistenceError{Key: EventsKey, Err: err}
		}
		return list[i], nil
	}
	return CrisisEvent{}, apperrors.NotFound("crisis event", eventID)
}
