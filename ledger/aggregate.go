package ledger

import (
	"fmt"

	"github.com/cipherstack/genemarket/engine"
)

// aggregateHandles folds a handle list into a single ciphertext via the
// engine's homomorphic add, left to right, seeded by the first element. An
// empty list (possible only when the requesting provider never submitted to
// the batch) aggregates to the canonical encrypted zero.
//
// This is a pure derivation: it stores nothing and is recomputed verbatim
// during callback verification to detect state drift.
func aggregateHandles(eng engine.Engine, handles []engine.CiphertextHandle) (engine.CiphertextHandle, error) {
	if len(handles) == 0 {
		return eng.ZeroHandle(), nil
	}

	acc := handles[0]
	for i, h := range handles[1:] {
		sum, err := eng.Add(acc, h)
		if err != nil {
			return nil, fmt.Errorf("homomorphic add at position %d: %w", i+1, err)
		}
		acc = sum
	}
	return acc, nil
}
