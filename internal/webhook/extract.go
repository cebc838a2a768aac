package webhook

import "strings"

// Alias lists for canonical field extraction. First string match wins.
var (
	eventTypeAliases = []string{"event", "event_type", "type", "action"}

	correlationAliases = []string{"correlation_id", "correlationId", "request_id", "requestId", "trace_id"}
	idempotencyAliases = []string{"idempotency_key", "idempotencyKey", "dedupe_key", "nonce"}
	externalAliases    = []string{"external_id", "externalId", "id", "uid"}
)

// ExtractEventType resolves the detected event type from the parsed payload,
// falling back to the last non-empty segment of the request path.
func ExtractEventType(parsed map[string]any, path string) string {
	if v := firstStringMatch(parsed, eventTypeAliases); v != "" {
		return v
	}

	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// ExtractIdentifiers resolves the canonical identifiers from their alias
// lists. Each is optional.
func ExtractIdentifiers(parsed map[string]any) Identifiers {
	return Identifiers{
		CorrelationID:  firstStringMatch(parsed, correlationAliases),
		IdempotencyKey: firstStringMatch(parsed, idempotencyAliases),
		ExternalID:     firstStringMatch(parsed, externalAliases),
	}
}

func firstStringMatch(parsed map[string]any, aliases []string) string {
	if parsed == nil {
		return ""
	}
	for _, alias := range aliases {
		if v, ok := parsed[alias]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Completeness returns the fraction of top-level keys carrying a non-null,
// non-empty value. Non-object payloads score 1.0 when the body is non-empty
// and 0.0 otherwise, as does an empty object.
func Completeness(parsed map[string]any, bodyLen int) float64 {
	if parsed == nil {
		if bodyLen > 0 {
			return 1.0
		}
		return 0.0
	}
	if len(parsed) == 0 {
		return 0.0
	}

	filled := 0
	for _, v := range parsed {
		if !emptyValue(v) {
			filled++
		}
	}
	return float64(filled) / float64(len(parsed))
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
