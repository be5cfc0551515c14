package ledger

import "errors"

// Authorization errors.
var (
	// ErrNotAdmin is returned when a caller other than the current
	// administrator invokes an admin-only operation.
	ErrNotAdmin = errors.New("caller is not the administrator")

	// ErrNotProvider is returned when a caller that is not an authorized
	// provider invokes a provider-only operation.
	ErrNotProvider = errors.New("caller is not an authorized provider")
)

// Availability errors.
var (
	// ErrPaused is returned by mutating operations while the system is paused.
	ErrPaused = errors.New("system is paused")

	// ErrNotPaused is returned by Unpause when the system is not paused, and
	// by Pause when invoked twice.
	ErrNotPaused = errors.New("system is not paused")
)

// ErrRateLimited is returned when a caller's per-class cooldown window has
// not elapsed. No state changes on this rejection.
var ErrRateLimited = errors.New("cooldown active")

// Batch state errors.
var (
	// ErrUnknownBatch is returned for a batch id that was never opened.
	ErrUnknownBatch = errors.New("unknown batch")

	// ErrBatchNotOpen is returned when the target batch exists but is closed.
	ErrBatchNotOpen = errors.New("batch is not open")

	// ErrBatchEmpty is returned by RequestCalculation when the batch has no
	// recorded submissions from any provider.
	ErrBatchEmpty = errors.New("batch has no submissions")
)

// Protocol integrity errors. These abort a callback invocation and leave the
// request in its awaiting state.
var (
	// ErrRequestReplay is returned when a callback names a request that does
	// not exist or has already been processed.
	ErrRequestReplay = errors.New("request unknown or already processed")

	// ErrFingerprintMismatch is returned when the aggregate recomputed at
	// callback time no longer hashes to the fingerprint recorded at request
	// time, meaning the underlying submissions changed in flight.
	ErrFingerprintMismatch = errors.New("ledger state drifted since request")

	// ErrInvalidProof is returned when the engine rejects the authenticity
	// proof for a callback's cleartext.
	ErrInvalidProof = errors.New("decryption proof did not verify")
)

// Validation errors.
var (
	// ErrEmptySubmission is returned for a submission with no handles.
	ErrEmptySubmission = errors.New("submission must contain at least one handle")

	// ErrZeroCooldown is returned when the administrator attempts to set the
	// cooldown to zero.
	ErrZeroCooldown = errors.New("cooldown must be non-zero")

	// ErrEmptyIdentity is returned when an operation names an empty identity.
	ErrEmptyIdentity = errors.New("identity must not be empty")
)
