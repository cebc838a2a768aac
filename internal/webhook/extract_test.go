package webhook

import "testing"

func TestExtractEventType(t *testing.T) {
	tests := []struct {
		name   string
		parsed map[string]any
		path   string
		want   string
	}{
		{"event alias", map[string]any{"event": "push"}, "/hooks/github", "push"},
		{"event_type alias", map[string]any{"event_type": "user.created"}, "/hooks/x", "user.created"},
		{"type alias", map[string]any{"type": "invoice.paid"}, "/hooks/x", "invoice.paid"},
		{"action alias", map[string]any{"action": "opened"}, "/hooks/x", "opened"},
		{"alias order, event wins", map[string]any{"event": "a", "type": "b"}, "/hooks/x", "a"},
		{"non-string alias skipped", map[string]any{"event": 42, "type": "b"}, "/hooks/x", "b"},
		{"empty string alias skipped", map[string]any{"event": "", "action": "closed"}, "/hooks/x", "closed"},
		{"path fallback", map[string]any{"other": "v"}, "/hooks/github", "github"},
		{"path fallback with trailing slash", nil, "/hooks/stripe/", "stripe"},
		{"nil payload, root path", nil, "/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractEventType(tt.parsed, tt.path); got != tt.want {
				t.Errorf("ExtractEventType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		parsed map[string]any
		want   Identifiers
	}{
		{
			name: "all identifiers",
			parsed: map[string]any{
				"correlation_id":  "corr-1",
				"idempotency_key": "idem-1",
				"external_id":     "ext-1",
			},
			want: Identifiers{CorrelationID: "corr-1", IdempotencyKey: "idem-1", ExternalID: "ext-1"},
		},
		{
			name:   "id alias maps to external id",
			parsed: map[string]any{"id": "abc"},
			want:   Identifiers{ExternalID: "abc"},
		},
		{
			name:   "camel case aliases",
			parsed: map[string]any{"requestId": "r-1", "idempotencyKey": "k-1"},
			want:   Identifiers{CorrelationID: "r-1", IdempotencyKey: "k-1"},
		},
		{
			name:   "nonce maps to idempotency key",
			parsed: map[string]any{"nonce": "n-1"},
			want:   Identifiers{IdempotencyKey: "n-1"},
		},
		{
			name:   "external_id preferred over id",
			parsed: map[string]any{"external_id": "e-1", "id": "abc"},
			want:   Identifiers{ExternalID: "e-1"},
		},
		{"nil payload", nil, Identifiers{}},
		{"no matches", map[string]any{"foo": "bar"}, Identifiers{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIdentifiers(tt.parsed)
			if got != tt.want {
				t.Errorf("ExtractIdentifiers = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIdentifiersEmpty(t *testing.T) {
	if !(Identifiers{}).Empty() {
		t.Error("zero value should be empty")
	}
	if (Identifiers{ExternalID: "x"}).Empty() {
		t.Error("identifiers with an external id should not be empty")
	}
}

func TestCompleteness(t *testing.T) {
	tests := []struct {
		name    string
		parsed  map[string]any
		bodyLen int
		want    float64
	}{
		{"all fields filled", map[string]any{"a": "x", "b": float64(1)}, 20, 1.0},
		{"half filled", map[string]any{"a": "x", "b": nil}, 20, 0.5},
		{"empty string counts as empty", map[string]any{"a": ""}, 10, 0.0},
		{"empty array counts as empty", map[string]any{"a": []any{}}, 10, 0.0},
		{"empty object counts as empty", map[string]any{"a": map[string]any{}}, 10, 0.0},
		{"false and zero count as filled", map[string]any{"a": false, "b": float64(0)}, 20, 1.0},
		{"empty object payload", map[string]any{}, 2, 0.0},
		{"non-object body", nil, 10, 1.0},
		{"empty body", nil, 0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Completeness(tt.parsed, tt.bodyLen); got != tt.want {
				t.Errorf("Completeness = %v, want %v", got, tt.want)
			}
		})
	}
}
