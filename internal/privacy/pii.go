package privacy

import "regexp"

// PIIField identifies a detected class of personal data.
type PIIField string

const (
	PIIFieldEmail PIIField = "email"
	PIIFieldPhone PIIField = "phone"
	PIIFieldSSN   PIIField = "ssn"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// NANP and international numbers with at least 7 digits. Short codes such as
	// 988 or 741741 are service numbers, not personal data, and do not match.
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?\(?\b\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)

	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// ScanForPII returns all detected PII classes in content.
func ScanForPII(content string) []PIIField {
	var fields []PIIField
	if emailPattern.MatchString(content) {
		fields = append(fields, PIIFieldEmail)
	}
	if ssnPattern.MatchString(content) {
		fields = append(fields, PIIFieldSSN)
	}
	if phonePattern.MatchString(content) {
		fields = append(fields, PIIFieldPhone)
	}
	return fields
}

// ContainsPII checks if a string contains any PII.
func ContainsPII(content string) bool {
	return len(ScanForPII(content)) > 0
}

// RedactPII replaces PII with redaction markers.
func RedactPII(content string) string {
	content = emailPattern.ReplaceAllString(content, "[REDACTED-EMAIL]")
	content = ssnPattern.ReplaceAllString(content, "[REDACTED-SSN]")
	content = phonePattern.ReplaceAllString(content, "[REDACTED-PHONE]")
	return content
}
