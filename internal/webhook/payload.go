package webhook

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// PayloadGuard enforces content-type, size, and JSON well-formedness rules
// for one connector.
type PayloadGuard struct {
	allowedTypes   []string
	maxBytes       int64
	requiredFields []string
}

// NewPayloadGuard builds a guard. allowedTypes entries are matched against
// the request media type with parameters stripped, case-insensitively.
func NewPayloadGuard(allowedTypes []string, maxBytes int64, requiredFields []string) *PayloadGuard {
	normalized := make([]string, 0, len(allowedTypes))
	for _, ct := range allowedTypes {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(ct)))
	}
	return &PayloadGuard{
		allowedTypes:   normalized,
		maxBytes:       maxBytes,
		requiredFields: requiredFields,
	}
}

// Validate checks the request payload. Structural failures (content type,
// size) short-circuit; JSON-parse and required-field issues accumulate
// together when both are evaluable. On a successful JSON parse of an object
// body, req.ParsedBody is populated for downstream extraction.
func (g *PayloadGuard) Validate(req *IncomingRequest) []ValidationIssue {
	mediaType := req.ContentType
	if mt, _, err := mime.ParseMediaType(req.ContentType); err == nil {
		mediaType = mt
	}
	mediaType = strings.ToLower(mediaType)

	allowed := false
	for _, ct := range g.allowedTypes {
		if ct == mediaType {
			allowed = true
			break
		}
	}
	if !allowed {
		return []ValidationIssue{{
			Field:    "content_type",
			Code:     IssueContentTypeNotAllowed,
			Message:  "content type is not allowed for this connector",
			Expected: strings.Join(g.allowedTypes, ", "),
			Actual:   mediaType,
		}}
	}

	if int64(len(req.Body)) > g.maxBytes {
		return []ValidationIssue{{
			Field:    "body",
			Code:     IssuePayloadTooLarge,
			Message:  "payload exceeds the configured size limit",
			Expected: fmt.Sprintf("<= %d bytes", g.maxBytes),
			Actual:   fmt.Sprintf("%d bytes", len(req.Body)),
		}}
	}

	var issues []ValidationIssue
	if mediaType == "application/json" {
		var parsed any
		if err := json.Unmarshal(req.Body, &parsed); err != nil {
			issues = append(issues, ValidationIssue{
				Field:   "body",
				Code:    IssueMalformedJSON,
				Message: "body is not well-formed JSON",
			})
		} else if obj, ok := parsed.(map[string]any); ok {
			req.ParsedBody = obj
		}

		for _, field := range g.requiredFields {
			if req.ParsedBody == nil {
				break
			}
			if _, ok := req.ParsedBody[field]; !ok {
				issues = append(issues, ValidationIssue{
					Field:   field,
					Code:    IssueRequiredFieldMissing,
					Message: "required field is missing from the payload",
				})
			}
		}
	}

	return issues
}

// RequiredFields returns the schema boundary field list (for audit records).
func (g *PayloadGuard) RequiredFields() []string { return g.requiredFields }
