package errors

import "fmt"

// Error codes for the community challenge service.
const (
	// Domain errors
	ErrCodeChallengeNotFound  = "CHALLENGE_NOT_FOUND"
	ErrCodeChallengeDisabled  = "CHALLENGE_DISABLED"
	ErrCodeChallengeNotActive = "CHALLENGE_NOT_ACTIVE"
	ErrCodeDuplicateReport    = "DUPLICATE_REPORT"
	ErrCodeInvalidStatus      = "INVALID_STATUS"

	// Database errors
	ErrCodeDatabaseError = "DATABASE_ERROR"

	// Config errors
	ErrCodeConfigInvalid = "CONFIG_INVALID"

	// Completion workflow errors
	ErrCodeRewardGrantFailed  = "REWARD_GRANT_FAILED"
	ErrCodeAnnouncementFailed = "ANNOUNCEMENT_FAILED"

	// Validation errors
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// ChallengeError represents an error in the community challenge service.
type ChallengeError struct {
	Code    string
	Message string
	Err     error
}

func (e *ChallengeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ChallengeError) Unwrap() error {
	return e.Err
}

// NewChallengeError creates a new ChallengeError.
func NewChallengeError(code, message string, err error) *ChallengeError {
	return &ChallengeError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode reports whether err is a ChallengeError carrying the given code.
// Wrapped errors are not unwrapped: the repository and engine return
// ChallengeError values directly.
func IsCode(err error, code string) bool {
	ce, ok := err.(*ChallengeError)
	return ok && ce.Code == code
}

// Domain-specific error constructors

// ErrChallengeNotFound returns an error when a challenge is not found.
func ErrChallengeNotFound(challengeID string) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeChallengeNotFound,
		Message: fmt.Sprintf("challenge not found: %s", challengeID),
		Err:     nil,
	}
}

// ErrChallengeDisabled returns an error when reporting progress to a disabled challenge.
func ErrChallengeDisabled(challengeID string) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeChallengeDisabled,
		Message: fmt.Sprintf("challenge is disabled: %s", challengeID),
		Err:     nil,
	}
}

// ErrChallengeNotActive returns an error when reporting progress to a challenge
// that has left the active status (completing or completed).
func ErrChallengeNotActive(challengeID string) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeChallengeNotActive,
		Message: fmt.Sprintf("challenge is not accepting progress: %s", challengeID),
		Err:     nil,
	}
}

// ErrDuplicateReport returns an error when an idempotency key was already seen
// for a (challenge, contributor) pair. Callers absorb this as a no-op rather
// than surfacing it to the event source.
func ErrDuplicateReport(challengeID, contributorID string) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeDuplicateReport,
		Message: fmt.Sprintf("duplicate report for challenge %s by contributor %s", challengeID, contributorID),
		Err:     nil,
	}
}

// ErrInvalidStatus returns an error for a status transition that is not allowed.
func ErrInvalidStatus(challengeID, expected string) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeInvalidStatus,
		Message: fmt.Sprintf("challenge %s is not in expected status %s", challengeID, expected),
		Err:     nil,
	}
}

// ErrDatabaseError wraps database errors.
func ErrDatabaseError(operation string, err error) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeDatabaseError,
		Message: fmt.Sprintf("database error during %s", operation),
		Err:     err,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(reason string) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeConfigInvalid,
		Message: fmt.Sprintf("invalid configuration: %s", reason),
		Err:     nil,
	}
}

// ErrRewardGrantFailed returns an error when a contributor's reward dispatch fails.
func ErrRewardGrantFailed(contributorID, rewardItem string, err error) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeRewardGrantFailed,
		Message: fmt.Sprintf("failed to grant reward %s to contributor %s", rewardItem, contributorID),
		Err:     err,
	}
}

// ErrAnnouncementFailed returns an error when posting a completion notice fails.
func ErrAnnouncementFailed(channelID string, err error) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeAnnouncementFailed,
		Message: fmt.Sprintf("failed to announce completion to channel %s", channelID),
		Err:     err,
	}
}

// ErrValidationFailed returns a validation error.
func ErrValidationFailed(field, reason string) *ChallengeError {
	return &ChallengeError{
		Code:    ErrCodeValidationFailed,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Err:     nil,
	}
}
