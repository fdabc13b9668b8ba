package models

import "errors"

// ----------------- sync pipeline ------------------
var (
	// ErrNotFound means the supplier explicitly reported the item does not
	// exist. Terminal: retries must not be attempted.
	ErrNotFound = errors.New("supplier reports product not found")

	// ErrCancelled rejects work discarded by a cooperative cancellation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrAlreadyRunning guards the one-run-per-store invariant.
	ErrAlreadyRunning = errors.New("a sync is already running for this store")
)

// ----------------- feed publishing ------------------
var (
	// ErrSubmissionFailed means the platform could not accept a batch after
	// bounded retries; fatal to the run.
	ErrSubmissionFailed = errors.New("feed submission failed")

	// ErrPollTimeout means the feed never reached a terminal state within
	// the polling budget; the run ends with an unknown outcome and dirty
	// flags are left untouched.
	ErrPollTimeout = errors.New("feed status polling budget exhausted")
)

// ----------------- storage ------------------
var (
	ErrStoreNotFound = errors.New("store not found")
)
