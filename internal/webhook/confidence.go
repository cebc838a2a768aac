package webhook

import "github.com/hookgate/hookgate/internal/config"

// Confidence score weights. The sum is 1.0, so the score is bounded to
// [0, 1] by construction.
const (
	weightSignature    = 0.4
	weightSchema       = 0.3
	weightCompleteness = 0.3
)

// Score computes the deterministic confidence score from the three boolean
// verification outcomes.
func Score(signatureValid, schemaValid, payloadComplete bool) float64 {
	score := 0.0
	if signatureValid {
		score += weightSignature
	}
	if schemaValid {
		score += weightSchema
	}
	if payloadComplete {
		score += weightCompleteness
	}
	return score
}

// AssuranceTier derives the auth assurance tier purely from the signature
// scheme actually used and whether it passed.
func AssuranceTier(method string, valid bool) string {
	if !valid {
		return AssuranceNone
	}
	switch method {
	case config.MethodHMACSHA256, config.MethodHMACSHA512:
		return AssuranceHigh
	case config.MethodJWTRS256:
		return AssuranceVerified
	case config.MethodJWTHS256:
		return AssuranceMedium
	case config.MethodAPIKey:
		return AssuranceLow
	default:
		return AssuranceNone
	}
}

// ScoreConfidence aggregates verification outcomes into the audit confidence
// record. A payload counts as complete only when every top-level key carries
// a non-null, non-empty value (completeness ratio of exactly 1).
func ScoreConfidence(sig SignatureOutcome, schemaValid bool, completeness float64) ConfidenceRecord {
	return ConfidenceRecord{
		Score:               Score(sig.Valid, schemaValid, completeness >= 1.0),
		AuthAssurance:       AssuranceTier(sig.Method, sig.Valid),
		PayloadCompleteness: completeness,
		SchemaValidation:    schemaValid,
	}
}
