package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound  = errors.New("player not found")
	ErrPlayerExists    = errors.New("player already exists")
	ErrRankingNotFound = errors.New("ranking record not found")
	ErrReplayNotFound  = errors.New("replay not found")
	ErrInvalidMode     = errors.New("invalid game mode")
	ErrInvalidScore    = errors.New("invalid score value")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrArtifactMissing = errors.New("replay artifact missing")
	ErrPersistence     = errors.New("persistence failure")
	ErrWrongPassword   = errors.New("wrong password")
	ErrRegistrationOff = errors.New("registration disabled")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrRankingNotFound) ||
		errors.Is(err, ErrReplayNotFound)
}

// IsValidationError reports whether err was caused by malformed input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidScore)
}
