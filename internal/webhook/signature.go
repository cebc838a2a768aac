package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hookgate/hookgate/internal/config"
)

// scheme is the sum type over signature methods. Each variant carries only
// the fields its method needs; construction in NewVerifier dispatches
// exhaustively over the configured method name.
type scheme interface {
	method() string
	verify(ctx context.Context, req *IncomingRequest, now time.Time) SignatureOutcome
}

// Verifier validates a request's authenticity against one configured scheme.
// It is immutable for the lifetime of a pipeline instance.
type Verifier struct {
	scheme          scheme
	timestampHeader string
	tolerance       time.Duration
}

// NewVerifier builds a Verifier from raw signature settings. A nil settings
// value means no verification (method "none"). The httpClient is used only
// for remote RS256 key retrieval and may be nil otherwise.
func NewVerifier(sig *config.SignatureSettings, httpClient *http.Client) (*Verifier, error) {
	if sig == nil {
		return &Verifier{scheme: noneScheme{}}, nil
	}

	v := &Verifier{
		timestampHeader: sig.TimestampHeader,
		tolerance:       time.Duration(sig.ToleranceSeconds) * time.Second,
	}

	switch sig.Method {
	case config.MethodNone:
		v.scheme = noneScheme{}
	case config.MethodHMACSHA256:
		v.scheme = hmacScheme{name: sig.Method, newHash: sha256.New, header: sig.Header, secret: sig.Secret}
	case config.MethodHMACSHA512:
		v.scheme = hmacScheme{name: sig.Method, newHash: sha512.New, header: sig.Header, secret: sig.Secret}
	case config.MethodJWTHS256:
		v.scheme = &jwtScheme{name: sig.Method, alg: "HS256", secret: []byte(sig.Secret)}
	case config.MethodJWTRS256:
		js := &jwtScheme{name: sig.Method, alg: "RS256", keyURL: sig.PublicKeyURL, client: httpClient}
		if sig.PublicKeyPEM != "" {
			key, err := parseRSAPublicKey([]byte(sig.PublicKeyPEM))
			if err != nil {
				return nil, fmt.Errorf("parse rs256 public key: %w", err)
			}
			js.key = key
		}
		if js.client == nil {
			js.client = http.DefaultClient
		}
		v.scheme = js
	case config.MethodAPIKey:
		v.scheme = apiKeyScheme{header: sig.Header, key: sig.Secret}
	case config.MethodBasicAuth:
		v.scheme = basicAuthScheme{expected: sig.Username + ":" + sig.Password}
	default:
		return nil, fmt.Errorf("unknown signature method %q", sig.Method)
	}
	return v, nil
}

// Method returns the configured scheme name.
func (v *Verifier) Method() string { return v.scheme.method() }

// UsesTimestamp reports whether this verifier performs the timestamp-bounded
// precheck, which is what makes replay detection possible.
func (v *Verifier) UsesTimestamp() bool {
	return v.tolerance > 0 && v.timestampHeader != ""
}

// TimestampHeader returns the configured timestamp header name ("" if none).
func (v *Verifier) TimestampHeader() string { return v.timestampHeader }

// Verify checks the request signature. It never panics past this boundary;
// malformed input of any kind produces an invalid outcome with a safe,
// non-leaking error message.
func (v *Verifier) Verify(ctx context.Context, req *IncomingRequest, now time.Time) SignatureOutcome {
	// Timestamp precheck. Tolerance 0 disables it entirely (schemes like
	// JWT carry their own expiry).
	if v.tolerance > 0 {
		raw := req.Header(v.timestampHeader)
		ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return SignatureOutcome{
				Method:         v.scheme.method(),
				TimestampValid: false,
				Error:          "missing or unparseable timestamp header",
			}
		}
		delta := now.Unix() - ts
		if delta < 0 {
			delta = -delta
		}
		if delta > int64(v.tolerance/time.Second) {
			return SignatureOutcome{
				Method:         v.scheme.method(),
				TimestampValid: false,
				Error:          "timestamp outside tolerance window",
			}
		}
	}

	out := v.scheme.verify(ctx, req, now)
	out.TimestampValid = true
	return out
}

// --- none ---

type noneScheme struct{}

func (noneScheme) method() string { return config.MethodNone }

func (noneScheme) verify(context.Context, *IncomingRequest, time.Time) SignatureOutcome {
	return SignatureOutcome{Valid: true, Method: config.MethodNone}
}

// --- hmac_sha256 / hmac_sha512 ---

type hmacScheme struct {
	name    string
	newHash func() hash.Hash
	header  string
	secret  string
}

func (s hmacScheme) method() string { return s.name }

// signaturePrefixes are the known provider framings stripped (one only,
// case-insensitively) before hex-decoding the signature value.
var signaturePrefixes = []string{
	"sha256=", "sha512=", "v1=", "v0=",
	"hmac_sha256=", "hmac_sha512=", "hmac-sha256=", "hmac-sha512=",
}

func (s hmacScheme) verify(_ context.Context, req *IncomingRequest, _ time.Time) SignatureOutcome {
	invalid := func(msg string) SignatureOutcome {
		return SignatureOutcome{Method: s.name, Error: msg}
	}

	if s.secret == "" {
		return invalid("no signing secret configured")
	}
	provided := req.Header(s.header)
	if provided == "" {
		return invalid("missing signature header")
	}

	supplied, err := decodeSignature(provided)
	if err != nil {
		// Generic message; never echo the supplied or computed value.
		return invalid("malformed signature")
	}

	mac := hmac.New(s.newHash, []byte(s.secret))
	mac.Write(req.Body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, supplied) != 1 {
		return invalid("signature mismatch")
	}
	return SignatureOutcome{Valid: true, Method: s.name}
}

// decodeSignature strips one known prefix and hex-decodes the remainder.
func decodeSignature(signature string) ([]byte, error) {
	lower := strings.ToLower(signature)
	for _, prefix := range signaturePrefixes {
		if strings.HasPrefix(lower, prefix) {
			signature = signature[len(prefix):]
			break
		}
	}
	return hex.DecodeString(strings.TrimSpace(signature))
}

// --- api_key ---

type apiKeyScheme struct {
	header string
	key    string
}

func (apiKeyScheme) method() string { return config.MethodAPIKey }

func (s apiKeyScheme) verify(_ context.Context, req *IncomingRequest, _ time.Time) SignatureOutcome {
	provided := req.Header(s.header)
	if provided == "" {
		return SignatureOutcome{Method: config.MethodAPIKey, Error: "missing api key header"}
	}
	if !constantTimeEqual(provided, s.key) {
		return SignatureOutcome{Method: config.MethodAPIKey, Error: "api key mismatch"}
	}
	return SignatureOutcome{Valid: true, Method: config.MethodAPIKey}
}

// --- basic_auth ---

type basicAuthScheme struct {
	// expected is the configured "user:password" credential.
	expected string
}

func (basicAuthScheme) method() string { return config.MethodBasicAuth }

func (s basicAuthScheme) verify(_ context.Context, req *IncomingRequest, _ time.Time) SignatureOutcome {
	invalid := func(msg string) SignatureOutcome {
		return SignatureOutcome{Method: config.MethodBasicAuth, Error: msg}
	}

	auth := req.Header("Authorization")
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return invalid("missing basic auth credentials")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		return invalid("malformed basic auth credentials")
	}
	if !constantTimeEqual(string(decoded), s.expected) {
		return invalid("credential mismatch")
	}
	return SignatureOutcome{Valid: true, Method: config.MethodBasicAuth}
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
