package services

import (
	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
)

// TransferAdminRequest reassigns the administrator identity.
type TransferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// ProviderUpdateRequest adds or removes a provider flag.
type ProviderUpdateRequest struct {
	Provider string `json:"provider"`
}

// PauseRequest toggles the availability flag. The same body is used by the
// pause and unpause routes; the route determines the direction.
type PauseRequest struct{}

// CooldownRequest updates the global cooldown.
type CooldownRequest struct {
	Seconds uint64 `json:"seconds"`
}

// OpenBatchRequest opens the next submission batch.
type OpenBatchRequest struct{}

// CloseBatchRequest closes an open batch.
type CloseBatchRequest struct {
	BatchID uint64 `json:"batch_id"`
}

// SubmitRequest stores a provider's encrypted contribution.
type SubmitRequest struct {
	BatchID uint64                    `json:"batch_id"`
	Handles []engine.CiphertextHandle `json:"handles"`
}

// CalculationRequest schedules decryption of the caller's batch aggregate.
type CalculationRequest struct {
	BatchID uint64 `json:"batch_id"`
}

// CallbackRequest delivers an asynchronous decryption result.
type CallbackRequest struct {
	RequestID uint64 `json:"request_id"`
	Cleartext []byte `json:"cleartext"`
	Proof     []byte `json:"proof"`
}

// OracleRegistrationRequest pins the oracle callback identity after
// attestation verification. The attestation's report data binds PublicKey and
// Endpoint.
type OracleRegistrationRequest struct {
	PublicKey   string `json:"public_key"`
	Endpoint    string `json:"endpoint"`
	Attestation []byte `json:"attestation,omitempty"`
}

// StatusResponse acknowledges a mutating call.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse carries a rejection with its taxonomy class.
type ErrorResponse struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

// OpenBatchResponse returns the allocated batch id.
type OpenBatchResponse struct {
	BatchID uint64 `json:"batch_id"`
}

// CalculationResponse returns the engine-assigned request id.
type CalculationResponse struct {
	RequestID uint64 `json:"request_id"`
}

// CallbackResponse returns the decoded result accepted by the ledger.
type CallbackResponse struct {
	Result uint64 `json:"result"`
}

// LedgerStateResponse is the read-only state surface.
type LedgerStateResponse struct {
	Admin           string `json:"admin"`
	Paused          bool   `json:"paused"`
	CooldownSeconds uint64 `json:"cooldown_seconds"`
	CurrentBatchID  uint64 `json:"current_batch_id"`
	OraclePinned    bool   `json:"oracle_pinned"`
}

// RequestStateResponse is the read-only view of a decryption request.
type RequestStateResponse struct {
	RequestID   uint64 `json:"request_id"`
	BatchID     uint64 `json:"batch_id"`
	Requester   string `json:"requester"`
	Fingerprint string `json:"fingerprint"`
	Processed   bool   `json:"processed"`
	Result      uint64 `json:"result,omitempty"`
}

// EventsResponse returns retained ledger events after a sequence number.
type EventsResponse struct {
	Events []ledger.Event `json:"events"`
}
