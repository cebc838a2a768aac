package webhook

import (
	"strings"
	"testing"
)

func TestPayloadGuardValidate(t *testing.T) {
	tests := []struct {
		name           string
		allowedTypes   []string
		maxBytes       int64
		requiredFields []string
		contentType    string
		body           string
		wantCodes      []string
	}{
		{
			name:         "valid json object",
			allowedTypes: []string{"application/json"},
			maxBytes:     1024,
			contentType:  "application/json",
			body:         `{"event":"push"}`,
		},
		{
			name:         "content type with charset parameter",
			allowedTypes: []string{"application/json"},
			maxBytes:     1024,
			contentType:  "application/json; charset=utf-8",
			body:         `{}`,
		},
		{
			name:         "content type case insensitive",
			allowedTypes: []string{"application/json"},
			maxBytes:     1024,
			contentType:  "Application/JSON",
			body:         `{}`,
		},
		{
			name:         "disallowed content type",
			allowedTypes: []string{"application/json"},
			maxBytes:     1024,
			contentType:  "text/plain",
			body:         "hello",
			wantCodes:    []string{IssueContentTypeNotAllowed},
		},
		{
			name:         "oversized body",
			allowedTypes: []string{"application/json"},
			maxBytes:     10,
			contentType:  "application/json",
			body:         `{"key":"` + strings.Repeat("x", 100) + `"}`,
			wantCodes:    []string{IssuePayloadTooLarge},
		},
		{
			name:         "body exactly at limit",
			allowedTypes: []string{"application/json"},
			maxBytes:     2,
			contentType:  "application/json",
			body:         `{}`,
		},
		{
			name:         "malformed json",
			allowedTypes: []string{"application/json"},
			maxBytes:     1024,
			contentType:  "application/json",
			body:         `{"unclosed":`,
			wantCodes:    []string{IssueMalformedJSON},
		},
		{
			name:           "missing required fields",
			allowedTypes:   []string{"application/json"},
			maxBytes:       1024,
			requiredFields: []string{"event", "id"},
			contentType:    "application/json",
			body:           `{"event":"push"}`,
			wantCodes:      []string{IssueRequiredFieldMissing},
		},
		{
			name:           "all required fields present",
			allowedTypes:   []string{"application/json"},
			maxBytes:       1024,
			requiredFields: []string{"event", "id"},
			contentType:    "application/json",
			body:           `{"event":"push","id":"1"}`,
		},
		{
			name:           "required field present but null counts as present",
			allowedTypes:   []string{"application/json"},
			maxBytes:       1024,
			requiredFields: []string{"event"},
			contentType:    "application/json",
			body:           `{"event":null}`,
		},
		{
			name:         "non-json content type skips parsing",
			allowedTypes: []string{"text/plain"},
			maxBytes:     1024,
			contentType:  "text/plain",
			body:         "not json at all",
		},
		{
			name:         "json array accepted but not parsed as object",
			allowedTypes: []string{"application/json"},
			maxBytes:     1024,
			contentType:  "application/json",
			body:         `[1,2,3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewPayloadGuard(tt.allowedTypes, tt.maxBytes, tt.requiredFields)
			req := newTestRequest(nil, []byte(tt.body))
			req.ContentType = tt.contentType

			issues := g.Validate(req)

			var codes []string
			for _, issue := range issues {
				codes = append(codes, issue.Code)
			}
			if len(codes) != len(tt.wantCodes) {
				t.Fatalf("issue codes = %v, want %v", codes, tt.wantCodes)
			}
			for i, want := range tt.wantCodes {
				if codes[i] != want {
					t.Errorf("issue[%d].Code = %q, want %q", i, codes[i], want)
				}
			}
		})
	}
}

func TestPayloadGuardChecksContentTypeBeforeSize(t *testing.T) {
	g := NewPayloadGuard([]string{"application/json"}, 4, nil)
	req := newTestRequest(nil, []byte(strings.Repeat("x", 100)))
	req.ContentType = "text/plain"

	issues := g.Validate(req)
	if len(issues) != 1 || issues[0].Code != IssueContentTypeNotAllowed {
		t.Fatalf("issues = %+v, want single content-type rejection", issues)
	}
}

func TestPayloadGuardPopulatesParsedBody(t *testing.T) {
	g := NewPayloadGuard([]string{"application/json"}, 1024, nil)
	req := newTestRequest(nil, []byte(`{"event":"push","id":"42"}`))

	if issues := g.Validate(req); len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
	if req.ParsedBody == nil {
		t.Fatal("ParsedBody not populated")
	}
	if req.ParsedBody["event"] != "push" {
		t.Errorf("ParsedBody[event] = %v, want %q", req.ParsedBody["event"], "push")
	}
}

func TestPayloadGuardAccumulatesMultipleMissingFields(t *testing.T) {
	g := NewPayloadGuard([]string{"application/json"}, 1024, []string{"a", "b", "c"})
	req := newTestRequest(nil, []byte(`{"a":1}`))

	issues := g.Validate(req)
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2: %+v", len(issues), issues)
	}
	for _, issue := range issues {
		if issue.Code != IssueRequiredFieldMissing {
			t.Errorf("unexpected code %q", issue.Code)
		}
	}
	if issues[0].Field != "b" || issues[1].Field != "c" {
		t.Errorf("fields = %q, %q; want b, c", issues[0].Field, issues[1].Field)
	}
}
