package webhook

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// jwtScheme verifies JWT bearer tokens for jwt_hs256 and jwt_rs256. The
// token's alg header must match the configured algorithm exactly: a token
// that verifies under a different algorithm is still rejected, which closes
// the usual algorithm-confusion hole.
type jwtScheme struct {
	name   string
	alg    string // "HS256" or "RS256"
	secret []byte // HS256 only

	// RS256 key material: a static key from PEM config, or lazily fetched
	// from keyURL bounded by the request context.
	key    *rsa.PublicKey
	keyURL string
	client *http.Client
	mu     sync.Mutex
}

func (s *jwtScheme) method() string { return s.name }

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type jwtClaims struct {
	Exp *int64 `json:"exp"`
}

func (s *jwtScheme) verify(ctx context.Context, req *IncomingRequest, now time.Time) SignatureOutcome {
	invalid := func(msg string) SignatureOutcome {
		return SignatureOutcome{Method: s.name, Error: msg}
	}

	auth := req.Header("Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return invalid("missing bearer token")
	}
	token := strings.TrimSpace(auth[len(prefix):])

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return invalid("malformed token")
	}

	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return invalid("malformed token header")
	}
	var header jwtHeader
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return invalid("malformed token header")
	}
	if header.Alg != s.alg {
		return invalid("token algorithm mismatch")
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return invalid("malformed token signature")
	}
	signingInput := []byte(parts[0] + "." + parts[1])

	switch s.alg {
	case "HS256":
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(signingInput)
		if !hmac.Equal(mac.Sum(nil), signature) {
			return invalid("token signature mismatch")
		}
	case "RS256":
		key, err := s.publicKey(ctx)
		if err != nil {
			return invalid("verification key unavailable")
		}
		digest := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
			return invalid("token signature mismatch")
		}
	default:
		return invalid("unsupported token algorithm")
	}

	claimsRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return invalid("malformed token claims")
	}
	var claims jwtClaims
	if err := json.Unmarshal(claimsRaw, &claims); err != nil {
		return invalid("malformed token claims")
	}
	// exp is checked with no grace period.
	if claims.Exp != nil && now.Unix() >= *claims.Exp {
		return invalid("token expired")
	}

	return SignatureOutcome{Valid: true, Method: s.name}
}

// publicKey returns the RS256 verification key, fetching it from keyURL on
// first use. The fetch is bounded by the caller's context deadline.
func (s *jwtScheme) publicKey(ctx context.Context) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.key, nil
	}
	if s.keyURL == "" {
		return nil, fmt.Errorf("no verification key configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.keyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build key request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch verification key: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch verification key: status %d", resp.StatusCode)
	}

	pemBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read verification key: %w", err)
	}
	key, err := parseRSAPublicKey(pemBytes)
	if err != nil {
		return nil, err
	}
	s.key = key
	return key, nil
}

// parseRSAPublicKey accepts PKIX ("PUBLIC KEY"), PKCS#1 ("RSA PUBLIC KEY"),
// and certificate PEM blocks.
func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		key, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate does not carry an RSA key")
		}
		return key, nil
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA")
		}
		return key, nil
	}
}
