package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cipherstack/genemarket/ledger"
	"github.com/cipherstack/genemarket/metrics"
)

// Error classes returned alongside rejections so callers can react to the
// category without parsing messages.
const (
	ClassAuthorization     = "authorization"
	ClassAvailability      = "availability"
	ClassRateLimited       = "rate_limited"
	ClassBatchState        = "batch_state"
	ClassValidation        = "validation"
	ClassProtocolIntegrity = "protocol_integrity"
	ClassInternal          = "internal"
)

// classify maps a ledger error to its taxonomy class and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, ledger.ErrNotAdmin), errors.Is(err, ledger.ErrNotProvider):
		return ClassAuthorization, http.StatusForbidden
	case errors.Is(err, ledger.ErrPaused), errors.Is(err, ledger.ErrNotPaused):
		return ClassAvailability, http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrRateLimited):
		return ClassRateLimited, http.StatusTooManyRequests
	case errors.Is(err, ledger.ErrUnknownBatch):
		return ClassBatchState, http.StatusNotFound
	case errors.Is(err, ledger.ErrBatchNotOpen), errors.Is(err, ledger.ErrBatchEmpty):
		return ClassBatchState, http.StatusBadRequest
	case errors.Is(err, ledger.ErrEmptySubmission), errors.Is(err, ledger.ErrZeroCooldown), errors.Is(err, ledger.ErrEmptyIdentity):
		return ClassValidation, http.StatusBadRequest
	case errors.Is(err, ledger.ErrRequestReplay), errors.Is(err, ledger.ErrFingerprintMismatch), errors.Is(err, ledger.ErrInvalidProof):
		return ClassProtocolIntegrity, http.StatusConflict
	default:
		return ClassInternal, http.StatusInternalServerError
	}
}

// writeLedgerError encodes a rejection with its class and counts it.
func writeLedgerError(w http.ResponseWriter, err error) {
	class, status := classify(err)
	metrics.RejectedCalls.WithLabelValues(class).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&ErrorResponse{Error: err.Error(), Class: class})
}

// mapRemoteError reconstructs ledger sentinels from a remote rejection, so
// clients observe the same error identities as in-process callers. The
// message carries the sentinel text; unmatched errors pass through as-is.
func mapRemoteError(resp *ErrorResponse) error {
	sentinels := []error{
		ledger.ErrNotAdmin,
		ledger.ErrNotProvider,
		ledger.ErrPaused,
		ledger.ErrNotPaused,
		ledger.ErrRateLimited,
		ledger.ErrUnknownBatch,
		ledger.ErrBatchNotOpen,
		ledger.ErrBatchEmpty,
		ledger.ErrRequestReplay,
		ledger.ErrFingerprintMismatch,
		ledger.ErrInvalidProof,
		ledger.ErrEmptySubmission,
		ledger.ErrZeroCooldown,
		ledger.ErrEmptyIdentity,
	}
	for _, sentinel := range sentinels {
		if strings.Contains(resp.Error, sentinel.Error()) {
			return sentinel
		}
	}
	return errors.New(resp.Error)
}
