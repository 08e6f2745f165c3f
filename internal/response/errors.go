package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrInvalidSessionStatus ErrCode = "INVALID_SESSION_STATUS"
	ErrSessionNotJoinable   ErrCode = "SESSION_NOT_JOINABLE"
	ErrNoStudentsConnected  ErrCode = "NO_STUDENTS_CONNECTED"
	ErrCannotCancelActive   ErrCode = "CANNOT_CANCEL_ACTIVE_SESSION"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrInvalidAttemptStatus ErrCode = "INVALID_ATTEMPT_STATUS"
	ErrQuestionNotInTest    ErrCode = "QUESTION_NOT_IN_TEST"
	ErrHighlightLimit       ErrCode = "HIGHLIGHT_LIMIT_REACHED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to perform this action."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrInvalidSessionStatus:
		return "The session is not in the right state for this operation."
	case ErrSessionNotJoinable:
		return "This session is not accepting participants."
	case ErrNoStudentsConnected:
		return "The session cannot start without a connected student."
	case ErrCannotCancelActive:
		return "A running session cannot be cancelled."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrInvalidAttemptStatus:
		return "The attempt has already been submitted or abandoned."
	case ErrQuestionNotInTest:
		return "The question does not belong to this test."
	case ErrHighlightLimit:
		return "The maximum number of highlights for this attempt was reached."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again shortly."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
