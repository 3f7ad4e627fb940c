package privacy

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// --- Sealer Tests ---

func TestSealOpenRoundTrip(t *testing.T) {
	sealer, err := NewSealerFromPassphrase("not-a-valid-aes-length")
	if err != nil {
		t.Fatalf("NewSealerFromPassphrase failed: %v", err)
	}

	plaintext := []byte(`[{"riskLevel":"high"}]`)
	sealed, err := sealer.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("riskLevel")) {
		t.Error("Sealed value should not contain plaintext")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Expected %s, got %s", plaintext, opened)
	}
}

func TestSealerRejectsBadInput(t *testing.T) {
	if _, err := NewAESGCMSealer([]byte("short")); err == nil {
		t.Error("Expected error for invalid key length")
	}
	if _, err := NewSealerFromPassphrase(""); err == nil {
		t.Error("Expected error for empty passphrase")
	}

	sealer, _ := NewAESGCMSealer(bytes.Repeat([]byte{1}, 32))
	if _, err := sealer.Open(nil); err == nil {
		t.Error("Expected error for empty ciphertext")
	}
	if _, err := sealer.Open([]byte("tiny")); err == nil {
		t.Error("Expected error for short ciphertext")
	}

	other, _ := NewAESGCMSealer(bytes.Repeat([]byte{2}, 32))
	sealed, _ := other.Seal([]byte("data"))
	if _, err := sealer.Open(sealed); err == nil {
		t.Error("Expected error when opening with the wrong key")
	}
}

// --- Pseudonymizer Tests ---

func TestPseudonymizeDeterministic(t *testing.T) {
	p := NewPseudonymizer([]byte("key"), "LOCAL-001")

	a := p.Pseudonymize("Jane.Doe@example.org")
	b := p.Pseudonymize(" jane.doe@example.org ")
	if a != b {
		t.Errorf("Expected normalized inputs to match: %s vs %s", a, b)
	}
	if !IsPseudonym(a) {
		t.Errorf("Expected pseudonym shape, got %s", a)
	}
	if strings.Contains(a, "jane") {
		t.Error("Pseudonym must not contain the input")
	}

	other := NewPseudonymizer([]byte("key"), "LOCAL-002")
	if other.Pseudonymize("jane.doe@example.org") == a {
		t.Error("Different facilities should produce different pseudonyms")
	}
}

func TestIsPseudonym(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"PSE-0123456789abcdef0123456789abcdef", true},
		{"PSE-xyz", false},
		{"user-42", false},
		{"PSE-0123456789abcdef0123456789abcdeg", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if IsPseudonym(tt.value) != tt.expected {
				t.Errorf("Expected IsPseudonym=%v", tt.expected)
			}
		})
	}
}

// --- PII Tests ---

func TestScanForPII(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []PIIField
	}{
		{"email", "reach me at jane@example.org", []PIIField{PIIFieldEmail}},
		{"phone", "call (555) 123-4567 later", []PIIField{PIIFieldPhone}},
		{"intl phone", "+44 207 946 0958", []PIIField{PIIFieldPhone}},
		{"ssn", "ssn 123-45-6789", []PIIField{PIIFieldSSN}},
		{"service numbers", "call 988 or text HOME to 741741", nil},
		{"clean", "hopeless, tonight", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScanForPII(tt.content)
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestRedactPII(t *testing.T) {
	out := RedactPII("jane@example.org / 555-123-4567 / 123-45-6789")
	if ContainsPII(out) {
		t.Errorf("Expected all PII redacted, got %q", out)
	}
	for _, marker := range []string{"[REDACTED-EMAIL]", "[REDACTED-PHONE]", "[REDACTED-SSN]"} {
		if !strings.Contains(out, marker) {
			t.Errorf("Expected %s in %q", marker, out)
		}
	}
}

// --- Guard Tests ---

func TestGuardRedactsResponses(t *testing.T) {
	guard := NewGuard(nil)
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"notes":"patient email jane@example.org"}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/followups", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected status to pass through, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "jane@example.org") {
		t.Error("Expected email to be redacted")
	}
	if rec.Header().Get("X-PII-Redacted") != "true" {
		t.Error("Expected redaction header")
	}
}

func TestGuardPassesCleanResponses(t *testing.T) {
	guard := NewGuard(nil)
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"riskLevel":"high"}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if rec.Body.String() != `{"riskLevel":"high"}` {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
	if rec.Header().Get("X-PII-Redacted") != "" {
		t.Error("Clean response should not be marked redacted")
	}
}
