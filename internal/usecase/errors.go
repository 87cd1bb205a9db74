package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// Provider error classes. The adapter wraps these so the batch
	// scheduler can decide retry vs abort without matching message text.
	ErrProviderRateLimited    = errors.New("provider rate limited")
	ErrProviderQuotaExhausted = errors.New("provider quota exhausted")
)
