package ledger

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
)

// FingerprintSize is the length of a request fingerprint in bytes.
const FingerprintSize = 32

// Fingerprint binds a decryption request to the exact ciphertext handles it
// covers and to the protocol instance that issued it.
type Fingerprint [FingerprintSize]byte

// String returns a hex representation for events and logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// fingerprintHandles hashes the serialized handle list together with the
// protocol instance identity. Recomputing it over the same ledger state must
// yield the same value; any change to the underlying submissions changes the
// aggregate handle and therefore the fingerprint.
func fingerprintHandles(handles []engine.CiphertextHandle, instanceID []byte) Fingerprint {
	h := sha3.New256()
	for _, handle := range handles {
		h.Write(handle)
	}
	h.Write(instanceID)

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// DecryptionRequest is the persisted record of one scheduled decryption.
//
// Requester is stored explicitly so that callback-time reconstruction targets
// the provider who actually asked for the calculation. Processed is monotone:
// it moves from false to true exactly once and the record is never deleted.
type DecryptionRequest struct {
	ID          engine.RequestID `json:"id"`
	BatchID     uint64           `json:"batch_id"`
	Requester   crypto.PublicKey `json:"requester"`
	Fingerprint Fingerprint      `json:"fingerprint"`
	Processed   bool             `json:"processed"`

	// Result holds the decoded cleartext once Processed is true.
	Result uint64 `json:"result,omitempty"`
}

// snapshot returns a copy safe to hand outside the ledger lock.
func (r *DecryptionRequest) snapshot() DecryptionRequest {
	cp := *r
	cp.Requester = crypto.NewPublicKeyFromBytes(r.Requester)
	return cp
}
