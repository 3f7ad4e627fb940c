package config

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
}

func TestMergeNilReturnsDefaults(t *testing.T) {
	got, err := Merge(nil)
	if err != nil {
		t.Fatalf("Merge(nil) failed: %v", err)
	}
	if diff := cmp.Diff(Defaults(), got); diff != "" {
		t.Errorf("Merge(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeCategoryOverride(t *testing.T) {
	got, err := Merge(&PartialConfig{
		Keywords: map[Severity][]string{SeverityCritical: {"x"}},
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if diff := cmp.Diff([]string{"x"}, got.Keywords[SeverityCritical]); diff != "" {
		t.Errorf("critical mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Defaults().Keywords[SeverityHigh], got.Keywords[SeverityHigh]); diff != "" {
		t.Errorf("high should keep defaults (-want +got):\n%s", diff)
	}
}

func TestMergeSemantics(t *testing.T) {
	score := 9.0

	tests := []struct {
		name   string
		remote *PartialConfig
		check  func(t *testing.T, got *ResolvedConfig)
	}{
		{
			name:   "weights per category",
			remote: &PartialConfig{Weights: map[Severity]float64{SeverityCritical: 12}},
			check: func(t *testing.T, got *ResolvedConfig) {
				if got.Weights[SeverityCritical] != 12 || got.Weights[SeverityHigh] != 7 {
					t.Errorf("Unexpected weights %v", got.Weights)
				}
			},
		},
		{
			name:   "combinations replaced wholesale",
			remote: &PartialConfig{Combinations: []Combination{{"Pills", "Right Now"}}},
			check: func(t *testing.T, got *ResolvedConfig) {
				want := []Combination{{"pills", "right now"}}
				if diff := cmp.Diff(want, got.Combinations); diff != "" {
					t.Errorf("combinations mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:   "combination score",
			remote: &PartialConfig{CombinationScore: &score},
			check: func(t *testing.T, got *ResolvedConfig) {
				if got.CombinationScore != 9 {
					t.Errorf("Expected 9, got %v", got.CombinationScore)
				}
			},
		},
		{
			name:   "thresholds per key",
			remote: &PartialConfig{Thresholds: map[Tier]float64{TierLow: 2}},
			check: func(t *testing.T, got *ResolvedConfig) {
				if got.Thresholds[TierLow] != 2 || got.Thresholds[TierCritical] != 15 {
					t.Errorf("Unexpected thresholds %v", got.Thresholds)
				}
			},
		},
		{
			name: "resources per country",
			remote: &PartialConfig{Resources: map[string][]Resource{
				"au": {{ID: "au-lifeline", Name: "Lifeline", Number: "13 11 14", Type: ResourceVoice, Priority: 1, Country: "AU"}},
			}},
			check: func(t *testing.T, got *ResolvedConfig) {
				if len(got.Resources["AU"]) != 1 {
					t.Errorf("Expected AU catalog to be added")
				}
				if diff := cmp.Diff(Defaults().Resources["US"], got.Resources["US"]); diff != "" {
					t.Errorf("US catalog should be preserved (-want +got):\n%s", diff)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.remote)
			if err != nil {
				t.Fatalf("Merge failed: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestMergeRejectsInvalidOverride(t *testing.T) {
	low := 1.0

	tests := []struct {
		name   string
		remote *PartialConfig
	}{
		{"duplicate phrase across categories", &PartialConfig{Keywords: map[Severity][]string{SeverityCritical: {"plan"}}}},
		{"unknown category", &PartialConfig{Keywords: map[Severity][]string{"mild": {"meh"}}}},
		{"weight ordering", &PartialConfig{Weights: map[Severity]float64{SeverityModerate: 20}}},
		{"non-positive weight", &PartialConfig{Weights: map[Severity]float64{SeverityModerate: 0}}},
		{"threshold ordering", &PartialConfig{Thresholds: map[Tier]float64{TierLow: 30}}},
		{"combination score below high weight", &PartialConfig{CombinationScore: &low}},
		{"critical weight below high threshold", &PartialConfig{Weights: map[Severity]float64{SeverityCritical: 9}}},
		{"thresholds above critical weight", &PartialConfig{Thresholds: map[Tier]float64{TierCritical: 40, TierHigh: 30, TierModerate: 20, TierLow: 15}}},
		{"combination with same phrase", &PartialConfig{Combinations: []Combination{{"plan", "plan"}}}},
		{"resource without contact", &PartialConfig{Resources: map[string][]Resource{"US": {{ID: "x", Type: ResourceVoice}}}}},
		{"resource with unknown type", &PartialConfig{Resources: map[string][]Resource{"US": {{ID: "x", Number: "1", Type: "fax"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.remote)
			if !errors.Is(err, apperrors.ErrConfig) {
				t.Fatalf("Expected ErrConfig, got %v", err)
			}
			if diff := cmp.Diff(Defaults(), got); diff != "" {
				t.Errorf("Invalid override should fall back to defaults (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOverlayDoesNotMutateBase(t *testing.T) {
	base := Defaults()
	_, err := Overlay(base, &PartialConfig{Keywords: map[Severity][]string{SeverityModerate: {"sad"}}}, "test")
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	if diff := cmp.Diff(Defaults(), base); diff != "" {
		t.Errorf("base was mutated (-want +got):\n%s", diff)
	}
}

func TestRemoteLoader(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantNil bool
	}{
		{
			name: "ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/config/crisis-keywords" {
					http.NotFound(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"keywords":{"critical":["x"]},"thresholds":{"low":2}}`))
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantNil: true,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"keywords":`))
			},
			wantNil: true,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			loader := NewRemoteLoader(srv.URL+"/", 100*time.Millisecond, nil)
			got := loader.Load(context.Background())

			if tt.wantNil {
				if got != nil {
					t.Errorf("Expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Expected a payload")
			}
			if diff := cmp.Diff([]string{"x"}, got.Keywords[SeverityCritical]); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemoteLoaderCallerCancelKeepsSharedFetch(t *testing.T) {
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	var requests atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		arrived <- struct{}{}
		<-release
		w.Write([]byte(`{"thresholds":{"low":2}}`))
	}))
	defer srv.Close()
	releaseOnce := sync.OnceFunc(func() { close(release) })
	defer releaseOnce()

	loader := NewRemoteLoader(srv.URL, 5*time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan *PartialConfig, 1)
	go func() { first <- loader.Load(ctx) }()

	<-arrived
	cancel()
	if got := <-first; got != nil {
		t.Errorf("Cancelled caller should get nil, got %+v", got)
	}

	second := make(chan *PartialConfig, 1)
	go func() { second <- loader.Load(context.Background()) }()
	time.Sleep(50 * time.Millisecond) // let the second caller join the in-flight fetch
	releaseOnce()

	got := <-second
	if got == nil {
		t.Fatal("Second caller lost the payload when the first caller cancelled")
	}
	if got.Thresholds[TierLow] != 2 {
		t.Errorf("Unexpected payload %+v", got)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("Expected one shared request, got %d", n)
	}
}

func TestRemoteLoaderWithoutBaseURL(t *testing.T) {
	if got := NewRemoteLoader("", time.Second, nil).Load(context.Background()); got != nil {
		t.Errorf("Expected nil without base URL, got %+v", got)
	}

	var loader *RemoteLoader
	if got := loader.Load(context.Background()); got != nil {
		t.Errorf("Expected nil from nil loader, got %+v", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crisis.yaml")
	writeFile(t, path, `
keywords:
  moderate: ["Hopeless", "numb"]
combinations:
  - [plan, pills]
resources:
  AU:
    - id: au-lifeline
      name: Lifeline
      number: "13 11 14"
      type: voice
      priority: 1
      country: AU
`)

	partial, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	got, err := Merge(partial)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if diff := cmp.Diff([]string{"hopeless", "numb"}, got.Keywords[SeverityModerate]); diff != "" {
		t.Errorf("moderate mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Combination{{"plan", "pills"}}, got.Combinations); diff != "" {
		t.Errorf("combinations mismatch (-want +got):\n%s", diff)
	}
	if len(got.Resources["AU"]) != 1 {
		t.Errorf("Expected AU resource, got %v", got.Resources["AU"])
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestStoreReloadLayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"thresholds":{"low":2}}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "crisis.yaml")
	writeFile(t, path, "keywords:\n  moderate: [numb]\n")

	store := NewStore(
		WithOverrideFile(path),
		WithRemote(NewRemoteLoader(srv.URL, time.Second, nil)),
	)

	var notified *ResolvedConfig
	store.OnChange(func(cfg *ResolvedConfig) { notified = cfg })

	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg := store.Current()
	if diff := cmp.Diff([]string{"numb"}, cfg.Keywords[SeverityModerate]); diff != "" {
		t.Errorf("file layer missing (-want +got):\n%s", diff)
	}
	if cfg.Thresholds[TierLow] != 2 {
		t.Errorf("remote layer missing, low threshold %v", cfg.Thresholds[TierLow])
	}
	if notified != cfg {
		t.Error("OnChange listener should receive the installed config")
	}

	// A broken file keeps the last valid file layer
	writeFile(t, path, "keywords:\n  critical: [plan]\n")
	err := store.Reload(context.Background())
	if !errors.Is(err, apperrors.ErrConfig) {
		t.Fatalf("Expected ErrConfig, got %v", err)
	}
	if diff := cmp.Diff([]string{"numb"}, store.Current().Keywords[SeverityModerate]); diff != "" {
		t.Errorf("previous file layer should be kept (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Defaults().Keywords[SeverityCritical], store.Current().Keywords[SeverityCritical]); diff != "" {
		t.Errorf("invalid layer leaked into config (-want +got):\n%s", diff)
	}
}

func TestStoreWatchPicksUpFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crisis.yaml")
	writeFile(t, path, "keywords:\n  moderate: [numb]\n")

	store := NewStore(WithOverrideFile(path), WithDebounce(20*time.Millisecond))
	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	changed := make(chan *ResolvedConfig, 4)
	store.OnChange(func(cfg *ResolvedConfig) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, path, "keywords:\n  moderate: [numb, drained]\n")

	select {
	case cfg := <-changed:
		if diff := cmp.Diff([]string{"numb", "drained"}, cfg.Keywords[SeverityModerate]); diff != "" {
			t.Errorf("reloaded config mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
