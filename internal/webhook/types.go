package webhook

import (
	"net/textproto"
	"net/url"
	"time"
)

// IncomingRequest is the transport-agnostic view of one inbound webhook call.
// It exists only for the duration of a pipeline run; the raw body is never
// persisted.
type IncomingRequest struct {
	Method      string
	Path        string
	Headers     map[string]string
	Body        []byte
	ParsedBody  map[string]any
	Query       url.Values
	SourceIP    string
	ReceivedAt  time.Time
	ContentType string
}

// Header returns the value for a header name, case-insensitively.
func (r *IncomingRequest) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	if v, ok := r.Headers[canonical]; ok {
		return v
	}
	for k, v := range r.Headers {
		if textproto.CanonicalMIMEHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}

// SignatureOutcome is the result of verifying one request's authenticity.
type SignatureOutcome struct {
	Valid          bool   `json:"valid"`
	Method         string `json:"method"`
	TimestampValid bool   `json:"timestamp_valid"`
	Error          string `json:"error,omitempty"`
}

// ValidationIssue describes a single payload validation problem.
type ValidationIssue struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Issue codes produced by the payload guard.
const (
	IssueContentTypeNotAllowed = "CONTENT_TYPE_NOT_ALLOWED"
	IssuePayloadTooLarge       = "PAYLOAD_TOO_LARGE"
	IssueMalformedJSON         = "MALFORMED_JSON"
	IssueRequiredFieldMissing  = "REQUIRED_FIELD_MISSING"
)

// ValidationResult aggregates all verification outcomes for one request.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Signature   SignatureOutcome  `json:"signature"`
	SchemaValid bool              `json:"schema_valid"`
	Issues      []ValidationIssue `json:"issues,omitempty"`
	Duration    time.Duration     `json:"-"`
}

// Auth assurance tiers, coarsest to strongest.
const (
	AssuranceNone     = "none"
	AssuranceLow      = "low"
	AssuranceMedium   = "medium"
	AssuranceHigh     = "high"
	AssuranceVerified = "verified"
)

// ConfidenceRecord scores how much the audit trail can trust this request.
type ConfidenceRecord struct {
	Score               float64 `json:"score"`
	AuthAssurance       string  `json:"auth_assurance"`
	PayloadCompleteness float64 `json:"payload_completeness"`
	SchemaValidation    bool    `json:"schema_validation"`
}

// Identifiers are canonical IDs extracted from the payload, each resolved
// from an alias list with first string match winning.
type Identifiers struct {
	CorrelationID  string `json:"correlation_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
}

// Empty reports whether no identifier was extracted.
func (i Identifiers) Empty() bool {
	return i.CorrelationID == "" && i.IdempotencyKey == "" && i.ExternalID == ""
}

// WebhookArtifact is the normalized output of a successful pipeline run.
type WebhookArtifact struct {
	SourceID            string         `json:"source_id"`
	EventType           string         `json:"event_type,omitempty"`
	Payload             map[string]any `json:"payload"`
	OriginalPayloadHash string         `json:"original_payload_hash"`
	Identifiers         *Identifiers   `json:"identifiers,omitempty"`
}

// ConstraintsApplied records the limits that were in force during the run.
type ConstraintsApplied struct {
	ConnectorScope   string   `json:"connector_scope"`
	SchemaBoundaries []string `json:"schema_boundaries"`
	RateLimitApplied bool     `json:"rate_limit_applied"`
	SizeLimitBytes   int64    `json:"size_limit_bytes"`
	TimeoutMS        int64    `json:"timeout_ms"`
}

// DecisionType emitted for every successful webhook ingest.
const DecisionTypeWebhookIngest = "webhook_ingest_event"

// DecisionEvent is the single canonical audit record emitted per successful
// pipeline run. Failed runs produce a typed error and no DecisionEvent.
type DecisionEvent struct {
	AgentID            string             `json:"agent_id"`
	AgentVersion       string             `json:"agent_version"`
	DecisionType       string             `json:"decision_type"`
	InputsHash         string             `json:"inputs_hash"`
	Outputs            WebhookArtifact    `json:"outputs"`
	Confidence         ConfidenceRecord   `json:"confidence"`
	ConstraintsApplied ConstraintsApplied `json:"constraints_applied"`
	ExecutionRef       string             `json:"execution_ref"`
	Timestamp          string             `json:"timestamp"`
}

// Decision is what gets handed to the persistence sink: the DecisionEvent
// plus sanitized request metadata and the verification summary. It never
// carries raw signatures, secrets, or auth headers.
type Decision struct {
	Connector      string         `json:"connector"`
	Event          *DecisionEvent `json:"event"`
	Path           string         `json:"path"`
	ContentType    string         `json:"content_type"`
	SourceIPHash   string         `json:"source_ip_hash,omitempty"`
	ReceivedAt     time.Time      `json:"received_at"`
	SignatureValid bool           `json:"signature_valid"`
	SchemaValid    bool           `json:"schema_valid"`
	ErrorCount     int            `json:"error_count"`
}
