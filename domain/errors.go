// ABOUTME: Domain-level sentinel errors for the enrichment pipeline
// ABOUTME: These errors are used with errors.Is() for error type checking
package domain

import "errors"

// Credential and upstream errors
var (
	// ErrRateLimit indicates a credential hit its provider-side rate limit.
	// The balancer quarantines the credential until the next UTC midnight.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrExhaustedAllCredentials indicates no credential in the pool can
	// serve another request today.
	ErrExhaustedAllCredentials = errors.New("all credentials exhausted")

	// ErrAuth indicates an authentication failure (401/403). Permanent for
	// the process lifetime.
	ErrAuth = errors.New("authentication failed")

	// ErrUpstreamTransient indicates a retryable upstream failure (5xx,
	// timeout).
	ErrUpstreamTransient = errors.New("transient upstream failure")
)

// Store errors
var (
	// ErrArticleNotFound indicates the requested article does not exist.
	ErrArticleNotFound = errors.New("article not found")

	// ErrStoreUnavailable indicates the document store cannot be reached.
	ErrStoreUnavailable = errors.New("document store unavailable")
)

// Queue admission errors
var (
	// ErrInvalidJob indicates a submission without an article id.
	ErrInvalidJob = errors.New("invalid enrichment job")

	// ErrDuplicateJob indicates the job id is already waiting, active or
	// delayed. Submission is a no-op.
	ErrDuplicateJob = errors.New("duplicate enrichment job")

	// ErrJobAlreadyDone indicates the article's commentary already exists in
	// the store or could be back-filled from the cache. Nothing was enqueued.
	ErrJobAlreadyDone = errors.New("enrichment already done")
)

// Cache errors
var (
	// ErrCacheMiss indicates the key is absent from every cache tier.
	ErrCacheMiss = errors.New("cache miss")

	// ErrShardQuotaExceeded indicates a shard exhausted its daily command
	// quota and is dead until the next UTC midnight.
	ErrShardQuotaExceeded = errors.New("shard daily quota exceeded")
)
