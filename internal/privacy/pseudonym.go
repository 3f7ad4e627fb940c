package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PseudonymPrefix marks user keys produced by Pseudonymizer.
const PseudonymPrefix = "PSE-"

// Pseudonymizer replaces identifying user keys with a deterministic HMAC-SHA256
// pseudonym. The same input always maps to the same pseudonym within a facility,
// so follow-up reporting still groups events per user.
type Pseudonymizer struct {
	key          []byte
	facilityCode string
}

// NewPseudonymizer creates a pseudonymizer. The key should come from a KMS in production.
func NewPseudonymizer(key []byte, facilityCode string) *Pseudonymizer {
	return &Pseudonymizer{key: key, facilityCode: facilityCode}
}

// Pseudonymize returns "PSE-" followed by 32 hex characters.
func (p *Pseudonymizer) Pseudonymize(value string) string {
	mac := hmac.New(sha256.New, p.key)
	mac.Write([]byte(p.facilityCode))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(value))))
	return PseudonymPrefix + hex.EncodeToString(mac.Sum(nil))[:32]
}

// IsPseudonym reports whether value already has the pseudonym shape.
func IsPseudonym(value string) bool {
	if !strings.HasPrefix(value, PseudonymPrefix) || len(value) != len(PseudonymPrefix)+32 {
		return false
	}
	_, err := hex.DecodeString(value[len(PseudonymPrefix):])
	return err == nil
}
