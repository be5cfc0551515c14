package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupLedger(t *testing.T) (*ledger.Ledger, *engine.InMemoryEngine, engine.RequestID) {
	t.Helper()

	eng, err := engine.NewInMemoryEngine([]byte("oracle tests"))
	require.NoError(t, err)

	admin, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	provider, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	led, err := ledger.New(&ledger.Config{
		Admin:           admin,
		CooldownSeconds: 1,
		Engine:          eng,
		Clock:           clock,
		Log:             discardLog(),
	})
	require.NoError(t, err)
	require.NoError(t, led.AddProvider(admin, provider))

	batch, err := led.OpenBatch(admin)
	require.NoError(t, err)

	h, err := eng.EncryptUint64(42)
	require.NoError(t, err)
	require.NoError(t, led.Submit(provider, batch, []engine.CiphertextHandle{h}))

	clock.Advance(time.Second)
	id, err := led.RequestCalculation(provider, batch)
	require.NoError(t, err)

	return led, eng, id
}

func TestWorkerDeliversResult(t *testing.T) {
	led, eng, id := setupLedger(t)

	w, err := New(&Config{Oracle: eng, Sink: led, Log: discardLog()})
	require.NoError(t, err)

	w.DrainOnce(context.Background())

	req, err := led.Request(id)
	require.NoError(t, err)
	require.True(t, req.Processed)
	require.Equal(t, uint64(42), req.Result)
}

// flakySink fails transport-style a few times before succeeding.
type flakySink struct {
	mu        sync.Mutex
	led       *ledger.Ledger
	failures  int
	delivered int
}

func (s *flakySink) OnDecryptionCallback(id engine.RequestID, cleartext, proof []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("connection refused")
	}
	s.delivered++
	return s.led.OnDecryptionCallback(id, cleartext, proof)
}

func TestWorkerRetriesTransportFailures(t *testing.T) {
	led, eng, id := setupLedger(t)

	sink := &flakySink{led: led, failures: 2}
	w, err := New(&Config{Oracle: eng, Sink: sink, Log: discardLog(), MaxDeliveryElapsed: 5 * time.Second})
	require.NoError(t, err)

	w.DrainOnce(context.Background())

	req, err := led.Request(id)
	require.NoError(t, err)
	require.True(t, req.Processed)
	require.Equal(t, 1, sink.delivered)
}

// rejectingSink simulates a ledger that deterministically rejects.
type rejectingSink struct{ calls int }

func (s *rejectingSink) OnDecryptionCallback(engine.RequestID, []byte, []byte) (uint64, error) {
	s.calls++
	return 0, ledger.ErrFingerprintMismatch
}

func TestWorkerDoesNotRetryProtocolRejections(t *testing.T) {
	_, eng, _ := setupLedger(t)

	sink := &rejectingSink{}
	w, err := New(&Config{Oracle: eng, Sink: sink, Log: discardLog(), MaxDeliveryElapsed: 5 * time.Second})
	require.NoError(t, err)

	w.DrainOnce(context.Background())
	require.Equal(t, 1, sink.calls)
}

func TestNewValidatesConfig(t *testing.T) {
	eng, err := engine.NewInMemoryEngine([]byte("seed"))
	require.NoError(t, err)

	_, err = New(&Config{Sink: &rejectingSink{}})
	require.Error(t, err)
	_, err = New(&Config{Oracle: eng})
	require.Error(t, err)
}
