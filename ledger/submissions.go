package ledger

import (
	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
)

// submissionStore persists, per (batch, provider), the ordered handle list
// most recently submitted. A later submission fully replaces an earlier one.
type submissionStore struct {
	byBatch map[uint64]map[string][]engine.CiphertextHandle
}

func newSubmissionStore() *submissionStore {
	return &submissionStore{byBatch: make(map[uint64]map[string][]engine.CiphertextHandle)}
}

func (s *submissionStore) put(batchID uint64, provider crypto.PublicKey, handles []engine.CiphertextHandle) {
	perProvider, ok := s.byBatch[batchID]
	if !ok {
		perProvider = make(map[string][]engine.CiphertextHandle)
		s.byBatch[batchID] = perProvider
	}
	perProvider[provider.String()] = handles
}

func (s *submissionStore) get(batchID uint64, provider crypto.PublicKey) ([]engine.CiphertextHandle, bool) {
	perProvider, ok := s.byBatch[batchID]
	if !ok {
		return nil, false
	}
	handles, ok := perProvider[provider.String()]
	return handles, ok
}

// normalizeHandles replaces every handle the engine does not recognize as an
// initialized ciphertext with the canonical encrypted zero. This is a named,
// independently testable step rather than a silent fallback: an unrecognized
// handle is a defensive default, not an error.
func normalizeHandles(eng engine.Engine, handles []engine.CiphertextHandle) []engine.CiphertextHandle {
	normalized := make([]engine.CiphertextHandle, len(handles))
	for i, h := range handles {
		if eng.ValidateHandle(h) {
			normalized[i] = h.Clone()
			continue
		}
		normalized[i] = eng.ZeroHandle()
	}
	return normalized
}
