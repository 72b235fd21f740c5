package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidInput    = errors.New("invalid input")
	ErrFeatureDisabled = errors.New("feature disabled")
)

// Stable machine-readable codes surfaced to callers.
const (
	CodeDiffJobNotFound         = "DIFF_JOB_NOT_FOUND"
	CodeTenantAccessDenied      = "TENANT_ACCESS_DENIED"
	CodeExportAccessDenied      = "EXPORT_ACCESS_DENIED"
	CodeRevisionRowsUnavailable = "DIFF_JOB_REVISION_ROWS_UNAVAILABLE"
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeDiffEngineDisabled      = "DIFF_ENGINE_DISABLED"
	CodeProgressiveAPIDisabled  = "DIFF_PROGRESSIVE_API_DISABLED"
)

// Error is a caller-visible failure with a stable code and a human-readable message.
// It wraps one of the package sentinels so callers can branch with errors.Is.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error wrapping the given sentinel.
func New(sentinel error, code, message string) *Error {
	return &Error{Code: code, Message: message, Err: sentinel}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
