package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrEmptyQuery    = errors.New("query and genre filter are both empty")
	ErrInvalidRating = errors.New("rating must be between 1 and 10")
	ErrNoCandidates  = errors.New("no unrated candidates available")

	// ErrProviderDisabled marks a provider that rejected our key or
	// exhausted its quota; the session stops calling it.
	ErrProviderDisabled = errors.New("provider disabled for session")

	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrStoreUnavailable    = errors.New("store unavailable")
)
