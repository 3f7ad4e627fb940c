// Package followup schedules provider check-ins after a crisis event.
package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/metrics"
	"github.com/lifeline-care/crisis/internal/storage"
)

// FollowUpsKey holds the JSON array of Entry
const FollowUpsKey = "scheduled_followups"

const (
	maxOffset   = 90 * 24 * time.Hour
	maxNotesLen = 4000
	maxTypeLen  = 64
	clockSkew   = time.Minute
)

// Priority of a follow-up
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Entry is a scheduled follow-up. Notes are provider-facing and may hold
// clinical detail.
type Entry struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Provider      string    `json:"provider,omitempty"`
	Priority      Priority  `json:"priority"`
	Notes         string    `json:"notes,omitempty"`
	EventID       string    `json:"event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Request asks for a follow-up at ScheduledTime or Offset from now; exactly
// one of the two must be set.
type Request struct {
	Type          string
	ScheduledTime *time.Time
	Offset        time.Duration
	Provider      string
	Priority      Priority
	Notes         string
	EventID       string
}

// Scheduler appends follow-ups to the persisted list.
type Scheduler struct {
	store  storage.Store
	locks  *storage.KeyedMutex
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler. locks may be shared with other writers of store.
func NewScheduler(store storage.Store, locks *storage.KeyedMutex, logger *zap.Logger) *Scheduler {
	if locks == nil {
		locks = storage.NewKeyedMutex()
	}
	return &Scheduler{
		store:  store,
		locks:  locks,
		logger: logging.OrNop(logger).With(zap.String("component", "followup")),
		now:    time.Now,
	}
}

// Schedule validates req and appends the resulting entry. Invalid requests
// are rejected before the store is touched.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Entry, error) {
	now := s.now().UTC()
	if err := validate(req, now); err != nil {
		return Entry{}, err
	}

	when := now.Add(req.Offset)
	if req.ScheduledTime != nil {
		when = req.ScheduledTime.UTC()
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	entry := Entry{
		Type:          strings.TrimSpace(req.Type),
		ScheduledTime: when,
		Provider:      strings.TrimSpace(req.Provider),
		Priority:      priority,
		Notes:         req.Notes,
		EventID:       req.EventID,
		CreatedAt:     now,
	}

	unlock := s.locks.Lock(FollowUpsKey)
	defer unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Entry{}, &apperrors.PersistenceError{Key: FollowUpsKey, Err: err}
	}

	entry.ID = uniqueID(list, now)
	list = append(list, entry)

	data, err := json.Marshal(list)
	if err != nil {
		return Entry{}, &apperrors.PersistenceError{Key: FollowUpsKey, Err: err}
	}
	if err := s.store.Set(ctx, FollowUpsKey, data); err != nil {
		return Entry{}, &apperrors.PersistenceError{Key: FollowUpsKey, Err: err}
	}

	metrics.RecordFollowUpScheduled()
	s.logger.Info("follow-up scheduled",
		zap.String("id", entry.ID),
		zap.String("type", entry.Type),
		zap.Time("scheduled_time", entry.ScheduledTime),
	)
	return entry, nil
}

// List returns the scheduled follow-ups in insertion order.
func (s *Scheduler) List(ctx context.Context) ([]Entry, error) {
	return s.load(ctx)
}

func (s *Scheduler) load(ctx context.Context) ([]Entry, error) {
	data, err := s.store.Get(ctx, FollowUpsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var list []Entry
	if err := json.Unmarshal(data, &list); err != nil {
		// refuse to overwrite entries we cannot read
		return nil, fmt.Errorf("follow-up list unreadable: %w", err)
	}
	if list == nil {
		list = []Entry{}
	}
	return list, nil
}

func validate(req Request, now time.Time) error {
	details := make(map[string]string)

	switch t := strings.TrimSpace(req.Type); {
	case t == "":
		details["type"] = "required"
	case len(t) > maxTypeLen:
		details["type"] = "too long"
	}

	switch {
	case req.ScheduledTime != nil && req.Offset != 0:
		details["scheduledTime"] = "set either scheduledTime or offset, not both"
	case req.ScheduledTime != nil:
		if req.ScheduledTime.Before(now.Add(-clockSkew)) {
			details["scheduledTime"] = "must not be in the past"
		}
	case req.Offset <= 0:
		details["offset"] = "must be positive when scheduledTime is not set"
	case req.Offset > maxOffset:
		details["offset"] = "must be at most 90 days"
	}

	switch req.Priority {
	case "", PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		details["priority"] = "must be low, normal, high or urgent"
	}

	if len(req.Notes) > maxNotesLen {
		details["notes"] = "too long"
	}

	if len(details) > 0 {
		return apperrors.Validation("invalid follow-up request", details)
	}
	return nil
}

// uniqueID returns followup_<unix millis>, suffixed when the list already has that id.
func uniqueID(list []Entry, now time.Time) string {
	base := fmt.Sprintf("followup_%d", now.UnixMilli())
	taken := make(map[string]bool, len(list))
	for _, e := range list {
		taken[e.ID] = true
	}
	id := base
	for n := 1; taken[id]; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}
