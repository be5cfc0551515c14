package services

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
	"github.com/cipherstack/genemarket/metrics"
	"github.com/cipherstack/genemarket/tdx"
)

// LedgerServiceConfig configures the HTTP surface over a ledger.
type LedgerServiceConfig struct {
	// Ledger is the protocol state machine all routes operate on.
	Ledger *ledger.Ledger

	// Archive receives accepted state transitions. Optional; archive write
	// failures are logged and never fail the request.
	Archive ArchiveStore

	// AttestationProvider verifies oracle registration attestations. Nil skips
	// attestation verification, which is only acceptable in tests.
	AttestationProvider tdx.Provider

	// Log is the structured logger.
	Log *slog.Logger
}

// LedgerService exposes the ledger's operations as signed HTTP endpoints and
// pins the oracle callback identity through attested registration.
type LedgerService struct {
	ledger      *ledger.Ledger
	archive     ArchiveStore
	attestation tdx.Provider
	log         *slog.Logger

	mu             sync.RWMutex
	oracleKey      crypto.PublicKey
	oracleEndpoint string
}

// NewLedgerService creates the HTTP service over a ledger.
func NewLedgerService(cfg *LedgerServiceConfig) (*LedgerService, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &LedgerService{
		ledger:      cfg.Ledger,
		archive:     cfg.Archive,
		attestation: cfg.AttestationProvider,
		log:         log,
	}, nil
}

// RegisterRoutes registers all ledger endpoints.
func (s *LedgerService) RegisterRoutes(r chi.Router) {
	r.Post("/admin/transfer", s.handleTransferAdmin)
	r.Post("/admin/providers/add", s.handleAddProvider)
	r.Post("/admin/providers/remove", s.handleRemoveProvider)
	r.Post("/admin/pause", s.handlePause)
	r.Post("/admin/unpause", s.handleUnpause)
	r.Post("/admin/cooldown", s.handleSetCooldown)
	r.Post("/admin/batches/open", s.handleOpenBatch)
	r.Post("/admin/batches/close", s.handleCloseBatch)

	r.Post("/submit", s.handleSubmit)
	r.Post("/request-calculation", s.handleRequestCalculation)

	r.Post("/oracle/register", s.handleOracleRegister)
	r.Post("/oracle/callback", s.handleOracleCallback)

	r.Get("/state", s.handleGetState)
	r.Get("/batches/{batch_id}", s.handleGetBatch)
	r.Get("/requests/{request_id}", s.handleGetRequest)
	r.Get("/events", s.handleGetEvents)
}

// recoverSigned decodes a signed envelope from the request body and returns
// the verified object and signer. A nil object means the response was already
// written.
func recoverSigned[T any](w http.ResponseWriter, r *http.Request) (*T, crypto.PublicKey) {
	var signedReq ledger.Signed[T]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil
	}

	obj, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return nil, nil
	}
	return obj, signer
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *LedgerService) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[TransferAdminRequest](w, r)
	if req == nil {
		return
	}

	newAdmin, err := crypto.NewPublicKeyFromString(req.NewAdmin)
	if err != nil {
		http.Error(w, "invalid admin public key", http.StatusBadRequest)
		return
	}

	if err := s.ledger.TransferAdmin(signer, newAdmin); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[ProviderUpdateRequest](w, r)
	if req == nil {
		return
	}

	provider, err := crypto.NewPublicKeyFromString(req.Provider)
	if err != nil {
		http.Error(w, "invalid provider public key", http.StatusBadRequest)
		return
	}

	if err := s.ledger.AddProvider(signer, provider); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleRemoveProvider(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[ProviderUpdateRequest](w, r)
	if req == nil {
		return
	}

	provider, err := crypto.NewPublicKeyFromString(req.Provider)
	if err != nil {
		http.Error(w, "invalid provider public key", http.StatusBadRequest)
		return
	}

	if err := s.ledger.RemoveProvider(signer, provider); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handlePause(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[PauseRequest](w, r)
	if req == nil {
		return
	}

	if err := s.ledger.Pause(signer); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleUnpause(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[PauseRequest](w, r)
	if req == nil {
		return
	}

	if err := s.ledger.Unpause(signer); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[CooldownRequest](w, r)
	if req == nil {
		return
	}

	if err := s.ledger.SetCooldownSeconds(signer, req.Seconds); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleOpenBatch(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[OpenBatchRequest](w, r)
	if req == nil {
		return
	}

	batchID, err := s.ledger.OpenBatch(signer)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	s.archiveBatch(batchID)
	writeJSON(w, &OpenBatchResponse{BatchID: batchID})
}

func (s *LedgerService) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[CloseBatchRequest](w, r)
	if req == nil {
		return
	}

	if err := s.ledger.CloseBatch(signer, req.BatchID); err != nil {
		writeLedgerError(w, err)
		return
	}

	s.archiveBatch(req.BatchID)
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[SubmitRequest](w, r)
	if req == nil {
		return
	}

	if err := s.ledger.Submit(signer, req.BatchID, req.Handles); err != nil {
		writeLedgerError(w, err)
		return
	}
	metrics.SubmissionsAccepted.Inc()

	s.archiveBatch(req.BatchID)
	s.archiveSubmission(req.BatchID, signer)
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleRequestCalculation(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[CalculationRequest](w, r)
	if req == nil {
		return
	}

	requestID, err := s.ledger.RequestCalculation(signer, req.BatchID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	metrics.CalculationsRequested.Inc()

	s.archiveRequest(requestID)
	writeJSON(w, &CalculationResponse{RequestID: uint64(requestID)})
}

// ReportDataForOracle computes the attestation report data binding the
// oracle's callback signing key and endpoint.
func ReportDataForOracle(pubKey crypto.PublicKey, endpoint string) [64]byte {
	hash := sha256.New()
	hash.Write(pubKey.Bytes())
	hash.Write([]byte(endpoint))

	var reportData [64]byte
	copy(reportData[:], hash.Sum(nil))
	return reportData
}

func (s *LedgerService) handleOracleRegister(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[OracleRegistrationRequest](w, r)
	if req == nil {
		return
	}

	pubKey, err := crypto.NewPublicKeyFromString(req.PublicKey)
	if err != nil {
		http.Error(w, "invalid public key", http.StatusBadRequest)
		return
	}
	if signer.String() != pubKey.String() {
		http.Error(w, "signer does not match claimed public key", http.StatusForbidden)
		return
	}

	if s.attestation != nil {
		if len(req.Attestation) == 0 {
			http.Error(w, "missing attestation", http.StatusForbidden)
			return
		}
		reportData := ReportDataForOracle(pubKey, req.Endpoint)
		if _, err := s.attestation.Verify(req.Attestation, reportData); err != nil {
			http.Error(w, fmt.Sprintf("attestation verification failed: %v", err), http.StatusForbidden)
			return
		}
	}

	s.mu.Lock()
	s.oracleKey = pubKey
	s.oracleEndpoint = req.Endpoint
	s.mu.Unlock()

	s.log.Info("oracle registered", "oracle", pubKey.String(), "endpoint", req.Endpoint)
	writeJSON(w, &StatusResponse{Success: true})
}

func (s *LedgerService) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	req, signer := recoverSigned[CallbackRequest](w, r)
	if req == nil {
		return
	}

	s.mu.RLock()
	oracleKey := s.oracleKey
	s.mu.RUnlock()

	if len(oracleKey) == 0 || !signer.Equal(oracleKey) {
		metrics.CallbacksProcessed.WithLabelValues("unauthorized").Inc()
		http.Error(w, "caller is not the registered oracle", http.StatusForbidden)
		return
	}

	result, err := s.ledger.OnDecryptionCallback(engine.RequestID(req.RequestID), req.Cleartext, req.Proof)
	if err != nil {
		metrics.CallbacksProcessed.WithLabelValues("rejected").Inc()
		writeLedgerError(w, err)
		return
	}
	metrics.CallbacksProcessed.WithLabelValues("accepted").Inc()

	s.archiveRequest(engine.RequestID(req.RequestID))
	writeJSON(w, &CallbackResponse{Result: result})
}

func (s *LedgerService) handleGetState(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	oraclePinned := len(s.oracleKey) != 0
	s.mu.RUnlock()

	writeJSON(w, &LedgerStateResponse{
		Admin:           s.ledger.Admin().String(),
		Paused:          s.ledger.Paused(),
		CooldownSeconds: s.ledger.CooldownSeconds(),
		CurrentBatchID:  s.ledger.CurrentBatchID(),
		OraclePinned:    oraclePinned,
	})
}

func (s *LedgerService) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseUint(chi.URLParam(r, "batch_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid batch id", http.StatusBadRequest)
		return
	}

	batch, err := s.ledger.Batch(batchID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, &batch)
}

func (s *LedgerService) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseUint(chi.URLParam(r, "request_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	req, err := s.ledger.Request(engine.RequestID(requestID))
	if err != nil {
		http.Error(w, "unknown request", http.StatusNotFound)
		return
	}
	writeJSON(w, &RequestStateResponse{
		RequestID:   uint64(req.ID),
		BatchID:     req.BatchID,
		Requester:   req.Requester.String(),
		Fingerprint: req.Fingerprint.String(),
		Processed:   req.Processed,
		Result:      req.Result,
	})
}

func (s *LedgerService) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid after parameter", http.StatusBadRequest)
			return
		}
		after = parsed
	}

	writeJSON(w, &EventsResponse{Events: s.ledger.EventsAfter(after)})
}

// OracleEndpoint returns the registered oracle's callback endpoint, empty if
// no oracle is pinned.
func (s *LedgerService) OracleEndpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oracleEndpoint
}

func (s *LedgerService) archiveBatch(batchID uint64) {
	if s.archive == nil {
		return
	}
	batch, err := s.ledger.Batch(batchID)
	if err != nil {
		return
	}
	rec := &BatchRecord{ID: batch.ID, Open: batch.Open, SubmissionCount: batch.SubmissionCount}
	if err := s.archive.SaveBatch(rec); err != nil {
		s.log.Error("archiving batch failed", "batch", batchID, "err", err)
	}
}

func (s *LedgerService) archiveSubmission(batchID uint64, provider crypto.PublicKey) {
	if s.archive == nil {
		return
	}
	handles, ok := s.ledger.Submission(batchID, provider)
	if !ok {
		return
	}
	raw := make([][]byte, len(handles))
	for i, h := range handles {
		raw[i] = h
	}
	rec := &SubmissionRecord{BatchID: batchID, Provider: provider.String(), Handles: raw}
	if err := s.archive.SaveSubmission(rec); err != nil {
		s.log.Error("archiving submission failed", "batch", batchID, "provider", provider.String(), "err", err)
	}
}

func (s *LedgerService) archiveRequest(requestID engine.RequestID) {
	if s.archive == nil {
		return
	}
	req, err := s.ledger.Request(requestID)
	if err != nil {
		return
	}
	rec := &RequestRecord{
		ID:          uint64(req.ID),
		BatchID:     req.BatchID,
		Requester:   req.Requester.String(),
		Fingerprint: req.Fingerprint.String(),
		Processed:   req.Processed,
		Result:      req.Result,
	}
	if err := s.archive.SaveRequest(rec); err != nil {
		s.log.Error("archiving request failed", "request", requestID, "err", err)
	}
}
