package domain

import "errors"

var (
	// ErrInvalidRequest rejects a malformed RequestContext; never retried.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoEligibleProviders means every candidate was excluded by
	// availability or an open breaker before any attempt was made.
	ErrNoEligibleProviders = errors.New("no eligible providers")
	// ErrAllProvidersExhausted means every eligible candidate was tried and
	// failed, or the request deadline elapsed mid-fallback.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	// ErrProviderNotFound means the catalog has no provider under that ID.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrDuplicateProvider rejects a second registration for the same
	// identity or chain+protocol pair.
	ErrDuplicateProvider = errors.New("provider already registered")
	// ErrChainUnsupported means no chain read access is configured for the
	// provider's network.
	ErrChainUnsupported = errors.New("chain not supported")
)
