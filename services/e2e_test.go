package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
	"github.com/cipherstack/genemarket/oracle"
	"github.com/cipherstack/genemarket/tdx"
)

// TestEndToEndCalculationOverHTTP drives a full round through the HTTP
// surface: the administrator opens a batch, a provider submits encrypted
// values and requests their aggregate, and the oracle worker decrypts and
// delivers the result through the signed callback route.
func TestEndToEndCalculationOverHTTP(t *testing.T) {
	f := newServiceFixture(t)

	require.NoError(t, f.oracle.RegisterOracle("http://oracle.internal:9000", &tdx.DummyProvider{}))

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)

	handles := []engine.CiphertextHandle{f.encrypt(12), f.encrypt(30)}
	require.NoError(t, f.provider.Submit(batchID, handles))

	requestID, err := f.provider.RequestCalculation(batchID)
	require.NoError(t, err)

	// The oracle worker runs against the engine and delivers over HTTP using
	// the same client the remote deployment would.
	worker, err := oracle.New(&oracle.Config{
		Oracle: f.eng,
		Sink:   f.oracle,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	worker.DrainOnce(context.Background())

	reqState, err := f.provider.GetRequest(requestID)
	require.NoError(t, err)
	assert.True(t, reqState.Processed)
	assert.Equal(t, uint64(42), reqState.Result)

	events, err := f.provider.GetEventsAfter(0)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, ledger.EventRequestCompleted, last.Type)
	assert.Equal(t, uint64(42), last.Result)
}

// TestEndToEndClosedBatchCalculation verifies a provider can still request the
// aggregate of a batch that was closed after submission, and that the worker
// treats ledger rejections as final rather than retrying them.
func TestEndToEndClosedBatchCalculation(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.oracle.RegisterOracle("http://oracle.internal:9000", &tdx.DummyProvider{}))

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)
	require.NoError(t, f.provider.Submit(batchID, []engine.CiphertextHandle{f.encrypt(11)}))
	require.NoError(t, f.admin.CloseBatch(batchID))

	requestID, err := f.provider.RequestCalculation(batchID)
	require.NoError(t, err)

	worker, err := oracle.New(&oracle.Config{
		Oracle: f.eng,
		Sink:   f.oracle,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	worker.DrainOnce(context.Background())

	reqState, err := f.provider.GetRequest(requestID)
	require.NoError(t, err)
	assert.True(t, reqState.Processed)
	assert.Equal(t, uint64(11), reqState.Result)

	// A second drain finds nothing pending; the delivered request is not
	// replayed against the ledger.
	done := make(chan struct{})
	go func() {
		worker.DrainOnce(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second drain did not return")
	}

	reqState, err = f.provider.GetRequest(requestID)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), reqState.Result)
}
