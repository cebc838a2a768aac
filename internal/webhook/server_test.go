package webhook

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hookgate/hookgate/internal/config"
)

func newTestIngress(t *testing.T, cfg config.ConnectorConfig, deps Deps) *httptest.Server {
	t.Helper()
	p, err := New("github", cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Stop)

	s := NewServer("127.0.0.1:0", 5*time.Second, []*Pipeline{p}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s.setupRoutes())
	t.Cleanup(ts.Close)
	return ts
}

func ingressConnector() config.ConnectorConfig {
	return config.ConnectorConfig{
		Path:                "/hooks/github",
		Scope:               "repo events",
		AllowedContentTypes: []string{"application/json"},
		MaxPayloadBytes:     256,
		Signature: &config.SignatureSettings{
			Method: config.MethodHMACSHA256,
			Header: "X-Webhook-Signature",
			Secret: "shh",
		},
	}
}

func postWebhook(t *testing.T, url string, headers map[string]string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return resp, respBody
}

func TestIngressAcceptsSignedWebhook(t *testing.T) {
	ts := newTestIngress(t, ingressConnector(), Deps{})

	body := []byte(`{"event_type":"user.created","id":"abc"}`)
	sig := "sha256=" + hmacSHA256Hex(body, "shh")

	resp, respBody := postWebhook(t, ts.URL+"/hooks/github", map[string]string{"X-Webhook-Signature": sig}, body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", resp.StatusCode, respBody)
	}

	var accepted AcceptResponse
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if accepted.ExecutionRef == "" {
		t.Error("empty execution_ref")
	}
	if accepted.EventType != "user.created" {
		t.Errorf("event_type = %q, want %q", accepted.EventType, "user.created")
	}
	if accepted.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", accepted.Confidence)
	}
}

func TestIngressRejectsInvalidSignature(t *testing.T) {
	ts := newTestIngress(t, ingressConnector(), Deps{})

	body := []byte(`{"event_type":"user.created"}`)
	resp, respBody := postWebhook(t, ts.URL+"/hooks/github",
		map[string]string{"X-Webhook-Signature": "sha256=" + strings.Repeat("0", 64)}, body)

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if errResp.Code != string(FailSignatureVerification) {
		t.Errorf("code = %q, want %q", errResp.Code, FailSignatureVerification)
	}
	// The body must stay generic; no secrets or computed values.
	if errResp.Error != "forbidden" {
		t.Errorf("error = %q, want generic message", errResp.Error)
	}
}

func TestIngressRejectsReplay(t *testing.T) {
	cfg := ingressConnector()
	cfg.ReplayProtection = true
	cfg.Signature.TimestampHeader = "X-Timestamp"
	cfg.Signature.ToleranceSeconds = 300

	ts := newTestIngress(t, cfg, Deps{})

	body := []byte(`{"event":"push"}`)
	headers := map[string]string{
		"X-Webhook-Signature": "sha256=" + hmacSHA256Hex(body, "shh"),
		"X-Timestamp":         strconv.FormatInt(time.Now().Unix(), 10),
	}

	resp, _ := postWebhook(t, ts.URL+"/hooks/github", headers, body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first delivery status = %d, want 202", resp.StatusCode)
	}

	resp, respBody := postWebhook(t, ts.URL+"/hooks/github", headers, body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay status = %d, want 409 (body: %s)", resp.StatusCode, respBody)
	}
	var errResp ErrorResponse
	json.Unmarshal(respBody, &errResp)
	if errResp.Code != string(FailReplayDetected) {
		t.Errorf("code = %q, want %q", errResp.Code, FailReplayDetected)
	}
}

func TestIngressStatusMapping(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantStatus  int
	}{
		{
			name:        "oversized payload",
			contentType: "application/json",
			body:        []byte(`{"pad":"` + strings.Repeat("x", 512) + `"}`),
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
		{
			name:        "unsupported content type",
			contentType: "text/plain",
			body:        []byte("hello"),
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        []byte(`{"unclosed":`),
			wantStatus:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestIngress(t, ingressConnector(), Deps{})

			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/hooks/github", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestIngressUnknownPath(t *testing.T) {
	ts := newTestIngress(t, ingressConnector(), Deps{})
	resp, _ := postWebhook(t, ts.URL+"/hooks/unknown", nil, []byte(`{}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestIngressMethodNotAllowed(t *testing.T) {
	ts := newTestIngress(t, ingressConnector(), Deps{})
	resp, err := http.Get(ts.URL + "/hooks/github")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
