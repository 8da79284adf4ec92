package pipeline

import "errors"

// Error classes for pipeline failures. Callers branch on these to decide
// between retrying the cycle, reconciling state, and fixing configuration.
var (
	// ErrTransientProvider marks failures of external collaborators (feed
	// aggregator, embedding endpoint, vector index, mail provider) that a
	// later cycle may succeed at. The cycle aborts cleanly; already
	// persisted articles are picked up again because dedup is idempotent.
	ErrTransientProvider = errors.New("transient provider failure")

	// ErrDataInconsistency marks states that should not occur, such as a
	// vector index hit whose article is missing from the store. Requires
	// reconciliation rather than retry.
	ErrDataInconsistency = errors.New("data inconsistency")

	// ErrConfiguration marks fatal misconfiguration detected at startup.
	ErrConfiguration = errors.New("invalid configuration")
)
