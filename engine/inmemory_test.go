package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *InMemoryEngine {
	t.Helper()
	eng, err := NewInMemoryEngine([]byte("test seed"))
	require.NoError(t, err)
	return eng
}

func TestHomomorphicAdd(t *testing.T) {
	eng := newTestEngine(t)

	a, err := eng.EncryptUint64(40)
	require.NoError(t, err)
	b, err := eng.EncryptUint64(2)
	require.NoError(t, err)

	sum, err := eng.Add(a, b)
	require.NoError(t, err)
	require.True(t, eng.ValidateHandle(sum))

	id, err := eng.RequestDecryption([]CiphertextHandle{sum})
	require.NoError(t, err)

	cleartext, _, err := eng.Decrypt(id)
	require.NoError(t, err)

	value, err := DecodeCleartext(cleartext)
	require.NoError(t, err)
	require.Equal(t, uint64(42), value)
}

func TestAddRejectsForeignHandle(t *testing.T) {
	eng := newTestEngine(t)

	a, err := eng.EncryptUint64(1)
	require.NoError(t, err)

	foreign := make(CiphertextHandle, HandleSize)
	_, err = eng.Add(a, foreign)
	require.ErrorIs(t, err, ErrUnknownHandle)
	require.False(t, eng.ValidateHandle(foreign))
}

func TestZeroHandleIsStableAndValid(t *testing.T) {
	eng := newTestEngine(t)
	other := newTestEngine(t)

	require.Equal(t, eng.ZeroHandle(), other.ZeroHandle())
	require.True(t, eng.ValidateHandle(eng.ZeroHandle()))

	zero, err := eng.Add(eng.ZeroHandle(), eng.ZeroHandle())
	require.NoError(t, err)

	id, err := eng.RequestDecryption([]CiphertextHandle{zero})
	require.NoError(t, err)
	cleartext, _, err := eng.Decrypt(id)
	require.NoError(t, err)
	value, err := DecodeCleartext(cleartext)
	require.NoError(t, err)
	require.Zero(t, value)
}

func TestProofVerification(t *testing.T) {
	eng := newTestEngine(t)

	h, err := eng.EncryptUint64(7)
	require.NoError(t, err)
	id, err := eng.RequestDecryption([]CiphertextHandle{h})
	require.NoError(t, err)

	cleartext, proof, err := eng.Decrypt(id)
	require.NoError(t, err)
	require.NoError(t, eng.VerifyProof(id, cleartext, proof))

	// Tampered cleartext fails
	tampered := EncodeCleartext(8)
	require.ErrorIs(t, eng.VerifyProof(id, tampered, proof), ErrInvalidProof)

	// Proof from a different request fails
	h2, err := eng.EncryptUint64(7)
	require.NoError(t, err)
	id2, err := eng.RequestDecryption([]CiphertextHandle{h2})
	require.NoError(t, err)
	require.ErrorIs(t, eng.VerifyProof(id2, cleartext, proof), ErrInvalidProof)

	require.ErrorIs(t, eng.VerifyProof(999, cleartext, proof), ErrUnknownRequest)
}

func TestPendingRequestsClaimedOnce(t *testing.T) {
	eng := newTestEngine(t)

	h, err := eng.EncryptUint64(3)
	require.NoError(t, err)
	id, err := eng.RequestDecryption([]CiphertextHandle{h})
	require.NoError(t, err)

	pending := eng.PendingRequests()
	require.Len(t, pending, 1)
	require.Equal(t, id, pending[0].ID)

	require.Empty(t, eng.PendingRequests())
}
