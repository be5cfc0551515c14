package engine

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// CiphertextHandle is an opaque reference to an encrypted unsigned integer
// held by the confidential-computing engine. Handles are only meaningful to
// the engine instance that issued them.
type CiphertextHandle []byte

// HandleSize is the length of every ciphertext handle in bytes.
const HandleSize = 32

// String returns a hex representation, used for logging and as a map key.
func (h CiphertextHandle) String() string {
	return hex.EncodeToString(h)
}

// Clone returns an independent copy of the handle.
func (h CiphertextHandle) Clone() CiphertextHandle {
	c := make(CiphertextHandle, len(h))
	copy(c, h)
	return c
}

// RequestID identifies a scheduled decryption. IDs are assigned by the engine
// and are never reused within an instance.
type RequestID uint64

// Engine is the ledger-facing surface of the confidential-computing engine.
//
// Implementations must guarantee that RequestDecryption returns a fresh
// RequestID for every call and that exactly one callback delivery is
// attempted per ID by the oracle side.
type Engine interface {
	// ValidateHandle reports whether h refers to an initialized ciphertext
	// known to this engine instance. The canonical zero handle is always
	// valid.
	ValidateHandle(h CiphertextHandle) bool

	// ZeroHandle returns the canonical encrypted-zero handle. Uninitialized
	// handles are normalized to it before storage.
	ZeroHandle() CiphertextHandle

	// Add returns a handle to the homomorphic sum of a and b.
	Add(a, b CiphertextHandle) (CiphertextHandle, error)

	// RequestDecryption schedules an asynchronous decryption of the given
	// handles and returns the identifier the eventual callback will carry.
	RequestDecryption(handles []CiphertextHandle) (RequestID, error)

	// VerifyProof checks that proof authenticates cleartext as the correct
	// decryption of the ciphertexts named by id.
	VerifyProof(id RequestID, cleartext, proof []byte) error
}

// ScheduledRequest is a decryption the engine has accepted but not yet
// delivered a result for.
type ScheduledRequest struct {
	ID      RequestID
	Handles []CiphertextHandle
}

// DecryptionOracle is the oracle-facing surface: the worker that drives
// callbacks pulls scheduled requests and produces cleartexts with proofs.
type DecryptionOracle interface {
	// PendingRequests lists scheduled decryptions that have not been
	// claimed by the oracle yet. Claimed requests are not returned again.
	PendingRequests() []ScheduledRequest

	// Decrypt produces the cleartext for a scheduled request together with
	// an authenticity proof accepted by VerifyProof.
	Decrypt(id RequestID) (cleartext, proof []byte, err error)
}

// ErrUnknownHandle is returned when an operation names a handle the engine
// has never issued.
var ErrUnknownHandle = errors.New("engine: unknown ciphertext handle")

// ErrUnknownRequest is returned when a request ID was never scheduled.
var ErrUnknownRequest = errors.New("engine: unknown decryption request")

// ErrInvalidProof is returned when a proof does not authenticate the
// cleartext for the named request.
var ErrInvalidProof = errors.New("engine: invalid decryption proof")

// EncodeCleartext serializes a decrypted value for callback transport.
func EncodeCleartext(value uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return buf
}

// DecodeCleartext parses a callback cleartext into the result value.
func DecodeCleartext(cleartext []byte) (uint64, error) {
	if len(cleartext) != 8 {
		return 0, errors.New("engine: cleartext must be 8 bytes")
	}
	return binary.BigEndian.Uint64(cleartext), nil
}
