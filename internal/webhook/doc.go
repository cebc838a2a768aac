// Package webhook implements the inbound webhook verification pipeline:
// multi-scheme signature verification, payload validation, replay
// protection, source-IP filtering, and confidence scoring, producing one
// canonical DecisionEvent per accepted request.
//
// # Security Model
//
//   - All secret comparisons use crypto/subtle (constant-time)
//   - JWT verification pins the configured algorithm; a token signed under a
//     different alg is rejected even if cryptographically valid
//   - Body size limits enforced before any cryptographic work
//   - Verification never panics past its boundary; malformed input becomes
//     an invalid outcome with a generic, non-leaking message
//   - Sensitive headers (authorization, api keys, cookies, the signature
//     header, anything named *secret*/*token*/*password*) are redacted
//     before logging or persistence
//
// # Replay Protection
//
// The replay cache keys on a digest of (body, timestamp-header-value) and is
// scoped to a single process. Two consequences are deliberate and
// documented rather than worked around:
//
//   - a resent body with a freshly forged timestamp is bounded only by the
//     tolerance window, not caught by the cache
//   - horizontally scaled deployments get best-effort protection only; no
//     hidden distributed state is kept
//
// # Request Flow
//
//  1. Payload guard: content-type allow-list, size cap, JSON parse
//  2. Signature verification under the connector's configured scheme
//  3. Replay check (timestamp-bound schemes only)
//  4. Source IP allow-list (fail closed when configured)
//  5. Canonical field extraction (event type, identifiers)
//  6. Confidence scoring and DecisionEvent assembly
//  7. Fire-and-forget persistence; sink failures never change the response
//
// Every failure is one of the typed codes in errors.go; success returns the
// DecisionEvent. The pipeline never returns both, and never neither.
package webhook
