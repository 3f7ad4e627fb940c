package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/crisis/scorer"
	"github.com/lifeline-care/crisis/internal/privacy"
	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
	bus "github.com/lifeline-care/crisis/internal/shared/events"
	"github.com/lifeline-care/crisis/internal/storage"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type failingStore struct {
	getErr error
	setErr error
	panics bool
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.panics {
		panic("driver bug")
	}
	if s.getErr != nil {
		return nil, s.getErr
	}
	return nil, storage.ErrNotFound
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	return s.setErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event bus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newSecureStore(t *testing.T) (*storage.SecureStore, *storage.MemoryStore) {
	t.Helper()
	backend := storage.NewMemoryStore()
	sealer, err := privacy.NewSealerFromPassphrase("test-passphrase")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	return storage.NewSecureStore(backend, sealer), backend
}

var criticalAnalysis = scorer.Result{
	Score:             28,
	Risk:              config.TierCritical,
	Confidence:        0.99,
	Indicators:        []string{"plan", "kill myself", "tonight"},
	RequiresImmediate: true,
}

func TestAnonymizeCrisisData(t *testing.T) {
	raw := map[string]any{
		"risk":         "critical",
		"confidence":   0.9,
		"score":        25,
		"indicators":   []any{"plan", "call me at 555-123-4567", strings.Repeat("x", 100), 7},
		"timestamp":    fixedNow,
		"userId":       "jane.doe@example.com",
		"originalText": "I have a plan to kill myself tonight",
		"name":         "Jane Doe",
		"email":        "jane.doe@example.com",
		"location":     "Springfield",
	}

	got := AnonymizeCrisisData(raw)

	for _, key := range []string{"originalText", "name", "email", "location", "userId"} {
		if _, ok := got[key]; ok {
			t.Errorf("Key %q should have been stripped", key)
		}
	}
	if _, ok := got["anonymizedAt"]; !ok {
		t.Error("anonymizedAt missing")
	}
	if got["privacyLevel"] != PrivacyLevelAnonymized {
		t.Errorf("Expected privacyLevel anonymized, got %v", got["privacyLevel"])
	}
	if diff := cmp.Diff([]string{"plan"}, got["indicators"]); diff != "" {
		t.Errorf("indicators mismatch (-want +got):\n%s", diff)
	}
	if got["score"] != 25.0 {
		t.Errorf("Expected score 25, got %v", got["score"])
	}
	if got["timestamp"] != fixedNow.Format(time.RFC3339Nano) {
		t.Errorf("Unexpected timestamp %v", got["timestamp"])
	}
}

func TestAnonymizerUserIDs(t *testing.T) {
	pseudo := privacy.NewPseudonymizer([]byte("k"), "TEST")

	tests := []struct {
		name       string
		anonymizer Anonymizer
		userID     string
		want       string
		wantKept   bool
	}{
		{"opaque id kept", Anonymizer{}, "user_8f2c", "user_8f2c", true},
		{"email dropped", Anonymizer{}, "a@b.co", "", false},
		{"name dropped", Anonymizer{}, "Jane Doe", "", false},
		{"phone dropped", Anonymizer{}, "5551234567", "", false},
		{"email pseudonymized", Anonymizer{Pseudonyms: pseudo}, "a@b.co", pseudo.Pseudonymize("a@b.co"), true},
		{"pseudonym kept", Anonymizer{}, pseudo.Pseudonymize("x"), pseudo.Pseudonymize("x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.anonymizer.Anonymize(map[string]any{"userId": tt.userID})["userId"]
			if ok != tt.wantKept {
				t.Fatalf("Expected kept=%v, got %v (%v)", tt.wantKept, ok, got)
			}
			if ok && got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLogCrisisEventPrimary(t *testing.T) {
	ctx := context.Background()
	secure, backend := newSecureStore(t)
	pub := &recordingPublisher{}
	r := NewRecorder(secure, storage.NewMemoryStore(), WithClock(clock), WithPublisher(pub))

	if err := r.LogCrisisEvent(ctx, criticalAnalysis, "user_1"); err != nil {
		t.Fatalf("LogCrisisEvent failed: %v", err)
	}

	history := r.History(ctx)
	if len(history) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(history))
	}
	e := history[0]
	if e.RiskLevel != config.TierCritical || e.UserID != "user_1" || e.Responded {
		t.Errorf("Unexpected event %+v", e)
	}
	if diff := cmp.Diff(criticalAnalysis.Indicators, e.Indicators); diff != "" {
		t.Errorf("indicators mismatch (-want +got):\n%s", diff)
	}
	if !e.Timestamp.Equal(fixedNow) || !e.AnonymizedAt.Equal(fixedNow) {
		t.Errorf("Unexpected timestamps %v %v", e.Timestamp, e.AnonymizedAt)
	}

	raw, _ := backend.Get(ctx, EventsKey)
	if bytes.Contains(raw, []byte("kill myself")) {
		t.Error("Primary store should hold sealed data")
	}

	if len(pub.events) != 1 || pub.events[0].Type != EventRecorded {
		t.Errorf("Expected one published event, got %+v", pub.events)
	}
}

func TestLogCrisisEventFallback(t *testing.T) {
	ctx := context.Background()
	fallback := storage.NewMemoryStore()
	r := NewRecorder(&failingStore{setErr: errors.New("keychain locked")}, fallback, WithClock(clock))

	err := r.LogCrisisEvent(ctx, criticalAnalysis, "user_1")

	var perr *apperrors.PersistenceError
	if !errors.As(err, &perr) || !perr.Fallback {
		t.Fatalf("Expected PersistenceError with fallback, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Error("Expected ErrPersistence kind")
	}

	keys := fallback.Keys()
	want := fmt.Sprintf("%s%d", FallbackKeyPrefix, fixedNow.UnixMilli())
	if diff := cmp.Diff([]string{want}, keys); diff != "" {
		t.Errorf("fallback keys mismatch (-want +got):\n%s", diff)
	}

	// a second failure in the same millisecond gets its own entry
	r.LogCrisisEvent(ctx, criticalAnalysis, "user_1")
	if len(fallback.Keys()) != 2 {
		t.Errorf("Expected two fallback entries, got %v", fallback.Keys())
	}
}

func TestLogCrisisEventNeverPanics(t *testing.T) {
	tests := []struct {
		name     string
		primary  storage.Store
		fallback storage.Store
	}{
		{"no fallback", &failingStore{setErr: errors.New("down")}, nil},
		{"both fail", &failingStore{setErr: errors.New("down")}, &failingStore{setErr: errors.New("full")}},
		{"primary panics", &failingStore{panics: true}, storage.NewMemoryStore()},
		{"fallback panics", &failingStore{getErr: errors.New("down")}, &failingStore{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder(tt.primary, tt.fallback, WithClock(clock))
			err := r.LogCrisisEvent(context.Background(), criticalAnalysis, "user_1")
			if !errors.Is(err, apperrors.ErrPersistence) {
				t.Errorf("Expected ErrPersistence, got %v", err)
			}
		})
	}
}

func TestHistoryDefensive(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"corrupt", "{not json"},
		{"object", `{"riskLevel":"high"}`},
		{"null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			if tt.payload != "" {
				store.Set(context.Background(), EventsKey, []byte(tt.payload))
			}
			r := NewRecorder(store, nil)

			got := r.History(context.Background())
			if got == nil || len(got) != 0 {
				t.Errorf("Expected empty list, got %#v", got)
			}
		})
	}

	r := NewRecorder(&failingStore{getErr: errors.New("down")}, nil)
	if got := r.History(context.Background()); got == nil || len(got) != 0 {
		t.Errorf("Expected empty list on read error, got %#v", got)
	}
}

func TestMarkResponded(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(storage.NewMemoryStore(), nil, WithClock(clock))
	r.LogCrisisEvent(ctx, criticalAnalysis, "user_1")
	id := r.History(ctx)[0].ID

	got, err := r.MarkResponded(ctx, id)
	if err != nil {
		t.Fatalf("MarkResponded failed: %v", err)
	}
	if !got.Responded || !r.History(ctx)[0].Responded {
		t.Error("Expected responded flag to be stored")
	}

	if _, err := r.MarkResponded(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentLoggingKeepsEveryEvent(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(storage.NewMemoryStore(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.LogCrisisEvent(ctx, criticalAnalysis, fmt.Sprintf("user_%d", i))
		}(i)
	}
	wg.Wait()

	if got := len(r.History(ctx)); got != 25 {
		t.Errorf("Expected 25 events, got %d", got)
	}
}

func TestPrepareProviderReport(t *testing.T) {
	t0 := fixedNow
	events := []CrisisEvent{
		{ID: "b", Timestamp: t0.Add(time.Hour), RiskLevel: config.TierCritical, Confidence: 0.9, Indicators: []string{"plan", "tonight"}},
		{ID: "a", Timestamp: t0, RiskLevel: config.TierModerate, Confidence: 0.6, Indicators: []string{"hopeless", "plan"}, Responded: true},
		{ID: "c", Timestamp: t0.Add(2 * time.Hour), RiskLevel: config.TierLow, Confidence: 0.6, Indicators: []string{"alone"}},
	}

	report := PrepareProviderReport(events, t0.Add(3*time.Hour))

	ra := report.RiskAssessment
	if ra.HighestRisk != config.TierCritical || ra.TotalEvents != 3 {
		t.Errorf("Unexpected assessment %+v", ra)
	}
	if ra.AverageConfidence != 0.7 {
		t.Errorf("Expected average confidence 0.7, got %v", ra.AverageConfidence)
	}
	if !ra.FirstEvent.Equal(t0) || !ra.LastEvent.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("Unexpected first/last %v %v", ra.FirstEvent, ra.LastEvent)
	}
	wantFreq := []IndicatorCount{{"plan", 2}, {"alone", 1}, {"hopeless", 1}, {"tonight", 1}}
	if diff := cmp.Diff(wantFreq, ra.FrequentIndicators); diff != "" {
		t.Errorf("frequent indicators mismatch (-want +got):\n%s", diff)
	}

	ids := []string{}
	for _, e := range report.InterventionHistory.Events {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("history order mismatch (-want +got):\n%s", diff)
	}
	if report.InterventionHistory.Responded != 1 || report.InterventionHistory.Unresponded != 2 {
		t.Errorf("Unexpected responded counts %+v", report.InterventionHistory)
	}

	if report.Recommendations[0] != "Immediate psychiatric evaluation recommended" {
		t.Errorf("Expected psychiatric evaluation first, got %v", report.Recommendations)
	}
	if last := report.Recommendations[len(report.Recommendations)-1]; !strings.Contains(last, "2 unresponded") {
		t.Errorf("Expected unresponded follow-up recommendation, got %q", last)
	}
}

func TestPrepareProviderReportEmpty(t *testing.T) {
	report := PrepareProviderReport(nil, fixedNow)

	if report.RiskAssessment.HighestRisk != config.TierNone {
		t.Errorf("Expected none, got %s", report.RiskAssessment.HighestRisk)
	}
	if diff := cmp.Diff([]string{"No crisis indicators recorded; continue routine care"}, report.Recommendations); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
	if report.InterventionHistory.Events == nil {
		t.Error("Events should be an empty list")
	}
}
