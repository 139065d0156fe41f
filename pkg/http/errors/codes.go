package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound      = "not_found"
	ErrCodeAlreadyExists = "already_exists"
	ErrCodeConflict      = "conflict"

	// Session errors
	ErrCodeSessionNotFound    = "session_not_found"
	ErrCodeSessionClosed      = "session_closed"
	ErrCodeInvalidSessionCode = "invalid_session_code"
	ErrCodeJoinFailed         = "join_failed"
	ErrCodeSubmitFailed       = "submit_failed"
	ErrCodeCloseFailed        = "close_failed"
	ErrCodeMalformedAnswers   = "malformed_answers"
	ErrCodeNoQuestions        = "no_questions"

	// Generator errors
	ErrCodeContentRejected      = "content_rejected"
	ErrCodeGeneratorUnavailable = "generator_unavailable"
	ErrCodeUpstreamTimeout      = "upstream_timeout"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
