package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
)

// Config parameterizes a Ledger instance.
type Config struct {
	// Admin is the initial administrator identity.
	Admin crypto.PublicKey

	// CooldownSeconds is the initial global cooldown. Must be non-zero.
	CooldownSeconds uint64

	// InstanceID is the protocol instance identity bound into every request
	// fingerprint. Generated randomly when empty.
	InstanceID []byte

	// Engine performs all ciphertext operations.
	Engine engine.Engine

	// Clock supplies ledger time for rate limiting. Defaults to the wall clock.
	Clock Clock

	// Log is the structured logger. Defaults to slog.Default().
	Log *slog.Logger
}

// Ledger is the process-wide protocol state object. All mutating entry points
// run to completion under a single lock; there is no partial interleaving of
// effects between calls.
type Ledger struct {
	engine     engine.Engine
	clock      Clock
	log        *slog.Logger
	instanceID []byte

	mu          sync.Mutex
	access      *accessRegistry
	limiter     *rateLimiter
	batches     *batchLedger
	submissions *submissionStore
	requests    map[engine.RequestID]*DecryptionRequest
	events      *eventLog
}

// New creates a ledger with the given configuration.
func New(cfg *Config) (*Ledger, error) {
	if len(cfg.Admin) == 0 {
		return nil, ErrEmptyIdentity
	}
	if cfg.CooldownSeconds == 0 {
		return nil, ErrZeroCooldown
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}

	instanceID := cfg.InstanceID
	if len(instanceID) == 0 {
		instanceID = make([]byte, 32)
		if _, err := rand.Read(instanceID); err != nil {
			return nil, fmt.Errorf("generating instance id: %w", err)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = WallClock()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Ledger{
		engine:      cfg.Engine,
		clock:       clock,
		log:         log,
		instanceID:  instanceID,
		access:      newAccessRegistry(cfg.Admin),
		limiter:     newRateLimiter(cfg.CooldownSeconds),
		batches:     newBatchLedger(),
		submissions: newSubmissionStore(),
		requests:    make(map[engine.RequestID]*DecryptionRequest),
		events:      newEventLog(),
	}, nil
}

// InstanceID returns the protocol instance identity bound into fingerprints.
func (l *Ledger) InstanceID() []byte {
	return l.instanceID
}

// TransferAdmin reassigns the administrator. Admin-only.
func (l *Ledger) TransferAdmin(caller, newAdmin crypto.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if len(newAdmin) == 0 {
		return ErrEmptyIdentity
	}

	l.access.admin = crypto.NewPublicKeyFromBytes(newAdmin)
	l.events.emit(Event{Type: EventAdminTransferred, Time: l.clock.Now(), Identity: newAdmin.String()})
	l.log.Info("admin transferred", "new_admin", newAdmin.String())
	return nil
}

// AddProvider flags an identity as an authorized provider. Admin-only.
// Idempotent: adding an existing provider is a no-op and emits no event.
func (l *Ledger) AddProvider(caller, provider crypto.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if len(provider) == 0 {
		return ErrEmptyIdentity
	}

	if l.access.addProvider(provider) {
		l.events.emit(Event{Type: EventProviderAdded, Time: l.clock.Now(), Identity: provider.String()})
		l.log.Info("provider added", "provider", provider.String())
	}
	return nil
}

// RemoveProvider clears an identity's provider flag. Admin-only.
// Idempotent: removing an unknown provider is a no-op and emits no event.
func (l *Ledger) RemoveProvider(caller, provider crypto.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}

	if l.access.removeProvider(provider) {
		l.events.emit(Event{Type: EventProviderRemoved, Time: l.clock.Now(), Identity: provider.String()})
		l.log.Info("provider removed", "provider", provider.String())
	}
	return nil
}

// Pause stops all provider and batch operations. Admin-only; fails if the
// system is already paused.
func (l *Ledger) Pause(caller crypto.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if l.access.paused {
		return ErrPaused
	}

	l.access.paused = true
	l.events.emit(Event{Type: EventPaused, Time: l.clock.Now()})
	l.log.Warn("system paused")
	return nil
}

// Unpause resumes operations. Admin-only; fails if not paused.
func (l *Ledger) Unpause(caller crypto.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if !l.access.paused {
		return ErrNotPaused
	}

	l.access.paused = false
	l.events.emit(Event{Type: EventUnpaused, Time: l.clock.Now()})
	l.log.Info("system unpaused")
	return nil
}

// SetCooldownSeconds updates the global cooldown. Admin-only; zero is rejected
// with no change.
func (l *Ledger) SetCooldownSeconds(caller crypto.PublicKey, seconds uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if err := l.limiter.setCooldownSeconds(seconds); err != nil {
		return err
	}

	l.events.emit(Event{Type: EventCooldownUpdated, Time: l.clock.Now(), CooldownSeconds: seconds})
	l.log.Info("cooldown updated", "seconds", seconds)
	return nil
}

// OpenBatch allocates the next batch id and marks it open. Admin-only,
// system must be unpaused.
func (l *Ledger) OpenBatch(caller crypto.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return 0, err
	}
	if err := l.access.requireUnpaused(); err != nil {
		return 0, err
	}

	batch := l.batches.open()
	l.events.emit(Event{Type: EventBatchOpened, Time: l.clock.Now(), BatchID: batch.ID})
	l.log.Info("batch opened", "batch", batch.ID)
	return batch.ID, nil
}

// CloseBatch marks an open batch closed. Admin-only, unpaused; fails if the
// batch is unknown or already closed. A closed batch is never reopened.
func (l *Ledger) CloseBatch(caller crypto.PublicKey, batchID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if err := l.access.requireUnpaused(); err != nil {
		return err
	}

	batch, err := l.batches.close(batchID)
	if err != nil {
		return err
	}

	l.events.emit(Event{Type: EventBatchClosed, Time: l.clock.Now(), BatchID: batch.ID, SubmissionCount: batch.SubmissionCount})
	l.log.Info("batch closed", "batch", batch.ID, "submissions", batch.SubmissionCount)
	return nil
}

// Submit stores a provider's encrypted contribution to an open batch,
// replacing any prior submission by the same provider. Unrecognized handles
// are normalized to the canonical encrypted zero. The batch's submission
// counter increments on every accepted call, including replacements.
//
// The rate-limit timestamp is recorded at admission: a call that clears the
// cooldown but fails a later precondition still consumes its slot.
func (l *Ledger) Submit(caller crypto.PublicKey, batchID uint64, handles []engine.CiphertextHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireProvider(caller); err != nil {
		return err
	}
	if err := l.access.requireUnpaused(); err != nil {
		return err
	}
	if err := l.limiter.admit(classSubmission, caller.String(), l.clock.Now()); err != nil {
		return err
	}
	batch, err := l.batches.requireOpen(batchID)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return ErrEmptySubmission
	}

	l.submissions.put(batchID, caller, normalizeHandles(l.engine, handles))
	batch.SubmissionCount++

	l.events.emit(Event{Type: EventSubmissionStored, Time: l.clock.Now(), Identity: caller.String(), BatchID: batchID, SubmissionCount: batch.SubmissionCount})
	l.log.Info("submission stored", "provider", caller.String(), "batch", batchID, "handles", len(handles))
	return nil
}

// RequestCalculation aggregates the caller's stored handles for a batch and
// schedules their decryption with the engine. The batch must exist and hold
// at least one submission from any provider. The request record stores the
// caller identity and the fingerprint of the exact handle list scheduled, so
// the eventual callback can detect state drift.
func (l *Ledger) RequestCalculation(caller crypto.PublicKey, batchID uint64) (engine.RequestID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireProvider(caller); err != nil {
		return 0, err
	}
	if err := l.access.requireUnpaused(); err != nil {
		return 0, err
	}
	if err := l.limiter.admit(classDecryption, caller.String(), l.clock.Now()); err != nil {
		return 0, err
	}
	batch, err := l.batches.get(batchID)
	if err != nil {
		return 0, err
	}
	if batch.SubmissionCount == 0 {
		return 0, ErrBatchEmpty
	}

	handleList, err := l.deriveHandleList(batchID, caller)
	if err != nil {
		return 0, err
	}
	fp := fingerprintHandles(handleList, l.instanceID)

	requestID, err := l.engine.RequestDecryption(handleList)
	if err != nil {
		return 0, fmt.Errorf("scheduling decryption: %w", err)
	}

	l.requests[requestID] = &DecryptionRequest{
		ID:          requestID,
		BatchID:     batchID,
		Requester:   crypto.NewPublicKeyFromBytes(caller),
		Fingerprint: fp,
	}

	l.events.emit(Event{Type: EventDecryptionRequested, Time: l.clock.Now(), Identity: caller.String(), BatchID: batchID, RequestID: uint64(requestID), Fingerprint: fp.String()})
	l.log.Info("decryption requested", "request", requestID, "batch", batchID, "provider", caller.String())
	return requestID, nil
}

// deriveHandleList computes the single-element handle list covering a
// provider's aggregate for a batch. Used identically at request time and at
// callback verification time.
func (l *Ledger) deriveHandleList(batchID uint64, provider crypto.PublicKey) ([]engine.CiphertextHandle, error) {
	stored, _ := l.submissions.get(batchID, provider)
	aggregate, err := aggregateHandles(l.engine, stored)
	if err != nil {
		return nil, fmt.Errorf("aggregating provider handles: %w", err)
	}
	return []engine.CiphertextHandle{aggregate}, nil
}

// OnDecryptionCallback accepts the oracle's asynchronous result for a
// scheduled request. The invocation succeeds at most once per request:
//
//  1. unknown or already-processed requests are rejected as replays,
//  2. the aggregate is re-derived from current ledger state and its
//     fingerprint must equal the one recorded at request time,
//  3. the proof must authenticate the cleartext for this request id.
//
// Any rejection aborts the whole invocation with no state change, leaving the
// request awaiting a callback that may never validly arrive. That is
// deliberate: an unverifiable result is never accepted.
func (l *Ledger) OnDecryptionCallback(requestID engine.RequestID, cleartext, proof []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[requestID]
	if !ok || req.Processed {
		return 0, ErrRequestReplay
	}

	handleList, err := l.deriveHandleList(req.BatchID, req.Requester)
	if err != nil {
		return 0, err
	}
	if fingerprintHandles(handleList, l.instanceID) != req.Fingerprint {
		l.log.Warn("callback fingerprint mismatch", "request", requestID, "batch", req.BatchID)
		return 0, ErrFingerprintMismatch
	}

	if err := l.engine.VerifyProof(requestID, cleartext, proof); err != nil {
		l.log.Warn("callback proof rejected", "request", requestID, "err", err)
		return 0, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}

	result, err := engine.DecodeCleartext(cleartext)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}

	req.Processed = true
	req.Result = result

	l.events.emit(Event{Type: EventRequestCompleted, Time: l.clock.Now(), BatchID: req.BatchID, RequestID: uint64(requestID), Result: result})
	l.log.Info("request completed", "request", requestID, "batch", req.BatchID)
	return result, nil
}

// Admin returns the current administrator identity.
func (l *Ledger) Admin() crypto.PublicKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	return crypto.NewPublicKeyFromBytes(l.access.admin)
}

// IsProvider reports whether id is an authorized provider.
func (l *Ledger) IsProvider(id crypto.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.access.isProvider(id)
}

// Paused reports the pause flag.
func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.access.paused
}

// CooldownSeconds returns the current global cooldown.
func (l *Ledger) CooldownSeconds() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter.cooldownSeconds()
}

// CurrentBatchID returns the most recently allocated batch id, zero if none.
func (l *Ledger) CurrentBatchID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batches.current
}

// Batch returns the observable state of a batch.
func (l *Ledger) Batch(id uint64) (BatchInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch, err := l.batches.get(id)
	if err != nil {
		return BatchInfo{}, err
	}
	return *batch, nil
}

// Request returns the persisted state of a decryption request.
func (l *Ledger) Request(id engine.RequestID) (DecryptionRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[id]
	if !ok {
		return DecryptionRequest{}, ErrRequestReplay
	}
	return req.snapshot(), nil
}

// Submission returns the stored (normalized) handle list for a provider in a
// batch.
func (l *Ledger) Submission(batchID uint64, provider crypto.PublicKey) ([]engine.CiphertextHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.submissions.get(batchID, provider)
	if !ok {
		return nil, false
	}
	out := make([]engine.CiphertextHandle, len(stored))
	for i, h := range stored {
		out[i] = h.Clone()
	}
	return out, true
}

// EventsAfter returns all events with sequence numbers greater than after.
func (l *Ledger) EventsAfter(after uint64) []Event {
	return l.events.After(after)
}

// SubscribeEvents delivers future events on the returned channel until ctx is
// done. Slow subscribers may miss deliveries and should catch up with
// EventsAfter.
func (l *Ledger) SubscribeEvents(ctx context.Context) <-chan Event {
	return l.events.Subscribe(ctx)
}
