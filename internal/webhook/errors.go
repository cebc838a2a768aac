package webhook

import (
	"errors"
	"fmt"
)

// FailureCode classifies a terminal pipeline failure.
type FailureCode string

const (
	// Validation class: non-retryable, client error.
	FailPayloadValidation FailureCode = "PAYLOAD_VALIDATION_FAILED"

	// Auth class: non-retryable, client error, no DecisionEvent emitted.
	FailSignatureVerification FailureCode = "SIGNATURE_VERIFICATION_FAILED"
	FailReplayDetected        FailureCode = "REPLAY_DETECTED"
	FailSourceIPNotAllowed    FailureCode = "SOURCE_IP_NOT_ALLOWED"
)

// AuthClass reports whether the code belongs to the auth failure class.
func (c FailureCode) AuthClass() bool {
	switch c {
	case FailSignatureVerification, FailReplayDetected, FailSourceIPNotAllowed:
		return true
	}
	return false
}

// PipelineError is the typed failure returned by Pipeline.Process. Messages
// are safe to return to callers; they never echo secrets or computed digests.
type PipelineError struct {
	Code   FailureCode
	Issues []ValidationIssue
	msg    string
}

func (e *PipelineError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.msg)
	}
	return string(e.Code)
}

func failf(code FailureCode, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, msg: fmt.Sprintf(format, args...)}
}

// FailureCodeOf extracts the failure code from err, or "" if err is not a
// pipeline failure.
func FailureCodeOf(err error) FailureCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
