package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/hookgate/hookgate/internal/config"
)

func hmacSHA256Hex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacSHA512Hex(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestRequest(headers map[string]string, body []byte) *IncomingRequest {
	return &IncomingRequest{
		Method:      "POST",
		Path:        "/hooks/test",
		Headers:     headers,
		Body:        body,
		ReceivedAt:  time.Now().UTC(),
		ContentType: "application/json",
	}
}

func TestVerifyHMACSHA256(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"event":"push","repository":"test"}`)
	expectedSig := hmacSHA256Hex(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantValid bool
	}{
		{
			name:      "valid signature - plain hex",
			body:      body,
			signature: expectedSig,
			secret:    secret,
			wantValid: true,
		},
		{
			name:      "valid signature - sha256= prefix",
			body:      body,
			signature: "sha256=" + expectedSig,
			secret:    secret,
			wantValid: true,
		},
		{
			name:      "valid signature - v1= prefix",
			body:      body,
			signature: "v1=" + expectedSig,
			secret:    secret,
			wantValid: true,
		},
		{
			name:      "valid signature - uppercase prefix",
			body:      body,
			signature: "SHA256=" + expectedSig,
			secret:    secret,
			wantValid: true,
		},
		{
			name:      "invalid - wrong signature",
			body:      body,
			signature: "0000000000000000000000000000000000000000000000000000000000000000",
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "invalid - tampered body",
			body:      []byte(`{"event":"push","repository":"hacked"}`),
			signature: expectedSig,
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "invalid - flipped signature byte",
			body:      body,
			signature: flipHexByte(expectedSig),
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "invalid - wrong secret",
			body:      body,
			signature: expectedSig,
			secret:    "wrong-secret",
			wantValid: false,
		},
		{
			name:      "invalid - empty signature",
			body:      body,
			signature: "",
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "invalid - empty secret",
			body:      body,
			signature: expectedSig,
			secret:    "",
			wantValid: false,
		},
		{
			name:      "invalid - malformed hex",
			body:      body,
			signature: "not-valid-hex",
			secret:    secret,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(&config.SignatureSettings{
				Method: config.MethodHMACSHA256,
				Header: "X-Webhook-Signature",
				Secret: tt.secret,
			}, nil)
			if err != nil {
				t.Fatalf("NewVerifier: %v", err)
			}

			req := newTestRequest(map[string]string{"X-Webhook-Signature": tt.signature}, tt.body)
			out := v.Verify(context.Background(), req, time.Now())

			if out.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (error: %q)", out.Valid, tt.wantValid, out.Error)
			}
			if out.Method != config.MethodHMACSHA256 {
				t.Errorf("Method = %q, want %q", out.Method, config.MethodHMACSHA256)
			}
			if !tt.wantValid && out.Error == "" {
				t.Error("invalid outcome carries no error message")
			}
		})
	}
}

// flipHexByte flips one bit in the first hex digit.
func flipHexByte(hexSig string) string {
	decoded, _ := hex.DecodeString(hexSig)
	decoded[0] ^= 0x01
	return hex.EncodeToString(decoded)
}

func TestVerifyHMACSHA512(t *testing.T) {
	secret := "another-secret"
	body := []byte(`{"n":1}`)

	v, err := NewVerifier(&config.SignatureSettings{
		Method: config.MethodHMACSHA512,
		Header: "X-Signature",
		Secret: secret,
	}, nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	req := newTestRequest(map[string]string{"X-Signature": "sha512=" + hmacSHA512Hex(body, secret)}, body)
	if out := v.Verify(context.Background(), req, time.Now()); !out.Valid {
		t.Fatalf("expected valid outcome, got error %q", out.Error)
	}

	req = newTestRequest(map[string]string{"X-Signature": "sha512=" + hmacSHA512Hex([]byte(`{"n":2}`), secret)}, body)
	if out := v.Verify(context.Background(), req, time.Now()); out.Valid {
		t.Fatal("expected invalid outcome for tampered body")
	}
}

func TestVerifyTimestampTolerance(t *testing.T) {
	secret := "shh"
	body := []byte(`{}`)
	now := time.Unix(1700000000, 0)
	const tolerance = 300

	tests := []struct {
		name      string
		ts        string
		wantValid bool
	}{
		{"exactly now", strconv.FormatInt(now.Unix(), 10), true},
		{"lower bound now-T", strconv.FormatInt(now.Unix()-tolerance, 10), true},
		{"upper bound now+T", strconv.FormatInt(now.Unix()+tolerance, 10), true},
		{"just past lower bound", strconv.FormatInt(now.Unix()-tolerance-1, 10), false},
		{"just past upper bound", strconv.FormatInt(now.Unix()+tolerance+1, 10), false},
		{"missing timestamp", "", false},
		{"garbage timestamp", "not-a-number", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(&config.SignatureSettings{
				Method:           config.MethodHMACSHA256,
				Header:           "X-Signature",
				TimestampHeader:  "X-Timestamp",
				Secret:           secret,
				ToleranceSeconds: tolerance,
			}, nil)
			if err != nil {
				t.Fatalf("NewVerifier: %v", err)
			}

			headers := map[string]string{
				"X-Signature": hmacSHA256Hex(body, secret),
			}
			if tt.ts != "" {
				headers["X-Timestamp"] = tt.ts
			}

			out := v.Verify(context.Background(), newTestRequest(headers, body), now)
			if out.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (error: %q)", out.Valid, tt.wantValid, out.Error)
			}
			if !tt.wantValid && out.TimestampValid {
				t.Error("TimestampValid = true on a timestamp rejection")
			}
		})
	}
}

func TestVerifyToleranceZeroSkipsTimestampCheck(t *testing.T) {
	secret := "shh"
	body := []byte(`{}`)

	v, err := NewVerifier(&config.SignatureSettings{
		Method: config.MethodHMACSHA256,
		Header: "X-Signature",
		Secret: secret,
	}, nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	// No timestamp header at all; tolerance 0 disables the precheck.
	req := newTestRequest(map[string]string{"X-Signature": hmacSHA256Hex(body, secret)}, body)
	out := v.Verify(context.Background(), req, time.Now())
	if !out.Valid || !out.TimestampValid {
		t.Fatalf("expected valid outcome, got %+v", out)
	}
	if v.UsesTimestamp() {
		t.Error("UsesTimestamp = true with tolerance 0")
	}
}

func TestVerifyAPIKey(t *testing.T) {
	v, err := NewVerifier(&config.SignatureSettings{
		Method: config.MethodAPIKey,
		Header: "X-Api-Key",
		Secret: "expected-key",
	}, nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	tests := []struct {
		name      string
		key       string
		wantValid bool
	}{
		{"matching key", "expected-key", true},
		{"wrong key", "other-key!!!", false},
		{"missing key", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers["X-Api-Key"] = tt.key
			}
			out := v.Verify(context.Background(), newTestRequest(headers, nil), time.Now())
			if out.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", out.Valid, tt.wantValid)
			}
		})
	}
}

func TestVerifyBasicAuth(t *testing.T) {
	v, err := NewVerifier(&config.SignatureSettings{
		Method:   config.MethodBasicAuth,
		Username: "svc",
		Password: "hunter2",
	}, nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	encode := func(cred string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(cred))
	}

	tests := []struct {
		name      string
		auth      string
		wantValid bool
	}{
		{"matching credentials", encode("svc:hunter2"), true},
		{"wrong password", encode("svc:wrong!!"), false},
		{"missing header", "", false},
		{"not basic", "Bearer abc", false},
		{"malformed base64", "Basic %%%%", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.auth != "" {
				headers["Authorization"] = tt.auth
			}
			out := v.Verify(context.Background(), newTestRequest(headers, nil), time.Now())
			if out.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (error: %q)", out.Valid, tt.wantValid, out.Error)
			}
		})
	}
}

func TestVerifyNoneScheme(t *testing.T) {
	v, err := NewVerifier(nil, nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	out := v.Verify(context.Background(), newTestRequest(nil, []byte("anything")), time.Now())
	if !out.Valid || out.Method != config.MethodNone {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestNewVerifierRejectsUnknownMethod(t *testing.T) {
	if _, err := NewVerifier(&config.SignatureSettings{Method: "rot13"}, nil); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestHeaderLookupCaseInsensitive(t *testing.T) {
	req := newTestRequest(map[string]string{"x-webhook-signature": "abc"}, nil)
	if got := req.Header("X-Webhook-Signature"); got != "abc" {
		t.Errorf("Header lookup = %q, want %q", got, "abc")
	}
	if got := req.Header("X-WEBHOOK-SIGNATURE"); got != "abc" {
		t.Errorf("Header lookup = %q, want %q", got, "abc")
	}
}
