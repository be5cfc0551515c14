package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// InMemoryEngine simulates the confidential-computing engine by keeping
// plaintext values behind opaque handles. It implements both the ledger-facing
// Engine interface and the oracle-facing DecryptionOracle interface, so a
// single instance can back an end-to-end deployment.
//
// Authenticity proofs are HMAC-SHA256 tags keyed by an instance secret; only
// the instance that scheduled a request can produce a proof its own
// VerifyProof accepts.
type InMemoryEngine struct {
	// Secrets derived from the instance seed
	handleKey []byte
	proofKey  []byte

	mu      sync.Mutex
	values  map[string]uint64
	pending map[RequestID]*scheduledDecryption
	nextID  RequestID
}

type scheduledDecryption struct {
	handles []CiphertextHandle
	claimed bool
}

// NewInMemoryEngine creates a simulated engine. All instance secrets are
// derived from seed, so two engines built from the same seed accept each
// other's proofs.
func NewInMemoryEngine(seed []byte) (*InMemoryEngine, error) {
	kdf := hkdf.New(sha256.New, seed, nil, []byte("genemarket/engine/v1"))

	handleKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, handleKey); err != nil {
		return nil, fmt.Errorf("deriving handle key: %w", err)
	}
	proofKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, proofKey); err != nil {
		return nil, fmt.Errorf("deriving proof key: %w", err)
	}

	eng := &InMemoryEngine{
		handleKey: handleKey,
		proofKey:  proofKey,
		values:    make(map[string]uint64),
		pending:   make(map[RequestID]*scheduledDecryption),
	}
	eng.values[eng.ZeroHandle().String()] = 0
	return eng, nil
}

// EncryptUint64 encrypts a value and returns a fresh handle for it. This is
// the provider-side entry point used by tests and demos; real deployments
// encrypt client-side and submit the resulting handles.
func (e *InMemoryEngine) EncryptUint64(value uint64) (CiphertextHandle, error) {
	handle := make(CiphertextHandle, HandleSize)
	if _, err := rand.Read(handle); err != nil {
		return nil, fmt.Errorf("generating handle: %w", err)
	}

	e.mu.Lock()
	e.values[handle.String()] = value
	e.mu.Unlock()
	return handle, nil
}

// ValidateHandle reports whether h was issued by this instance.
func (e *InMemoryEngine) ValidateHandle(h CiphertextHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.values[h.String()]
	return ok
}

// ZeroHandle returns the canonical encrypted-zero handle. It is the same for
// every instance derived from the same seed.
func (e *InMemoryEngine) ZeroHandle() CiphertextHandle {
	mac := hmac.New(sha256.New, e.handleKey)
	mac.Write([]byte("zero"))
	return CiphertextHandle(mac.Sum(nil)[:HandleSize])
}

// Add returns a handle holding the homomorphic sum of a and b. The result
// handle is derived deterministically from the operands, so re-deriving an
// aggregate over unchanged inputs yields the same handle. The ledger relies
// on this when it recomputes a request's fingerprint at callback time.
// Addition wraps around at 2^64 like the underlying encrypted integers.
func (e *InMemoryEngine) Add(a, b CiphertextHandle) (CiphertextHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	va, okA := e.values[a.String()]
	vb, okB := e.values[b.String()]
	if !okA || !okB {
		return nil, ErrUnknownHandle
	}

	mac := hmac.New(sha256.New, e.handleKey)
	mac.Write([]byte("add"))
	mac.Write(a)
	mac.Write(b)
	handle := CiphertextHandle(mac.Sum(nil)[:HandleSize])

	e.values[handle.String()] = va + vb
	return handle, nil
}

// RequestDecryption schedules an asynchronous decryption and returns its
// request identifier. The result is delivered later by whatever oracle worker
// drains PendingRequests.
func (e *InMemoryEngine) RequestDecryption(handles []CiphertextHandle) (RequestID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, h := range handles {
		if _, ok := e.values[h.String()]; !ok {
			return 0, ErrUnknownHandle
		}
	}

	e.nextID++
	id := e.nextID

	copied := make([]CiphertextHandle, len(handles))
	for i, h := range handles {
		copied[i] = h.Clone()
	}
	e.pending[id] = &scheduledDecryption{handles: copied}
	return id, nil
}

// PendingRequests returns scheduled decryptions not yet claimed by an oracle
// worker and marks them claimed.
func (e *InMemoryEngine) PendingRequests() []ScheduledRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []ScheduledRequest
	for id, sched := range e.pending {
		if sched.claimed {
			continue
		}
		sched.claimed = true
		out = append(out, ScheduledRequest{ID: id, Handles: sched.handles})
	}
	return out
}

// Decrypt produces the cleartext for a scheduled request and a proof binding
// it to the request ID. Each handle contributes its 8-byte big-endian value;
// GeneMarket schedules single-element lists, so the cleartext is 8 bytes.
func (e *InMemoryEngine) Decrypt(id RequestID) ([]byte, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sched, ok := e.pending[id]
	if !ok {
		return nil, nil, ErrUnknownRequest
	}

	cleartext := make([]byte, 0, 8*len(sched.handles))
	for _, h := range sched.handles {
		v, ok := e.values[h.String()]
		if !ok {
			return nil, nil, ErrUnknownHandle
		}
		cleartext = append(cleartext, EncodeCleartext(v)...)
	}

	return cleartext, e.proofFor(id, cleartext), nil
}

// VerifyProof checks that proof authenticates cleartext for request id.
func (e *InMemoryEngine) VerifyProof(id RequestID, cleartext, proof []byte) error {
	e.mu.Lock()
	_, known := e.pending[id]
	e.mu.Unlock()
	if !known {
		return ErrUnknownRequest
	}
	if !hmac.Equal(proof, e.proofFor(id, cleartext)) {
		return ErrInvalidProof
	}
	return nil
}

func (e *InMemoryEngine) proofFor(id RequestID, cleartext []byte) []byte {
	mac := hmac.New(sha256.New, e.proofKey)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(id))
	mac.Write(idBuf[:])
	mac.Write(cleartext)
	return mac.Sum(nil)
}
