package model

import "errors"

// Not-found sentinels. Repositories translate their driver's no-rows error
// into these so services and handlers never depend on the storage engine.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrClassNotFound   = errors.New("class not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrTestNotFound    = errors.New("test not found")
)

// Authorization sentinels, surfaced as 403.
var (
	ErrNotSessionManager = errors.New("caller may not manage this session")
	ErrNotAttemptOwner   = errors.New("caller does not own this attempt")
	ErrSubmitNotAllowed  = errors.New("caller may not submit with this reason")
	ErrNotRosterStudent  = errors.New("student is not on the session roster")
)

// ErrQuestionNotInTest is returned when an answer references a question id
// outside the attempt's test.
var ErrQuestionNotInTest = errors.New("question does not belong to test")

// ErrInvalidHighlightRange is returned when a highlight's end position does
// not come after its start.
var ErrInvalidHighlightRange = errors.New("highlight end must be after start")
