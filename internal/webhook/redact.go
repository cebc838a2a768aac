package webhook

import "strings"

// RedactedValue replaces sensitive header values before logging or
// persistence.
const RedactedValue = "[REDACTED]"

// sensitive header names (exact, lowercased) and substrings.
var (
	sensitiveExact = map[string]struct{}{
		"authorization": {},
		"x-api-key":     {},
		"cookie":        {},
	}
	sensitiveSubstrings = []string{"secret", "token", "password"}
)

// SensitiveHeader reports whether a header name must never be logged or
// persisted in clear. signatureHeader is the connector's configured
// signature header, which is always sensitive.
func SensitiveHeader(name, signatureHeader string) bool {
	lower := strings.ToLower(name)
	if signatureHeader != "" && lower == strings.ToLower(signatureHeader) {
		return true
	}
	if _, ok := sensitiveExact[lower]; ok {
		return true
	}
	if strings.HasPrefix(lower, "x-auth") {
		return true
	}
	for _, sub := range sensitiveSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// RedactHeaders returns a copy of headers with sensitive values replaced.
// The input map is not modified.
func RedactHeaders(headers map[string]string, signatureHeader string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if SensitiveHeader(name, signatureHeader) {
			out[name] = RedactedValue
			continue
		}
		out[name] = value
	}
	return out
}
