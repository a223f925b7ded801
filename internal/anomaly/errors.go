package anomaly

import "fmt"

// ErrorCode identifies the stage of the detection pipeline that failed.
type ErrorCode string

const (
	ErrInvalidThreshold ErrorCode = "INVALID_THRESHOLD"
	ErrFeatureBuild     ErrorCode = "FEATURE_BUILD_FAILED"
	ErrScaling          ErrorCode = "SCALING_FAILED"
	ErrModelFit         ErrorCode = "MODEL_FIT_FAILED"
)

// DetectionError is a structured error for anomaly detection failures.
type DetectionError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DetectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DetectionError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string, cause error) *DetectionError {
	return &DetectionError{Code: code, Message: message, Cause: cause}
}
