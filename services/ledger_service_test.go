package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
	"github.com/cipherstack/genemarket/tdx"
)

const testCooldownSeconds = 30

type serviceFixture struct {
	t *testing.T

	eng     *engine.InMemoryEngine
	led     *ledger.Ledger
	svc     *LedgerService
	srv     *httptest.Server
	clock   *ledger.ManualClock
	archive *InMemoryArchive

	adminKey    crypto.PrivateKey
	providerKey crypto.PrivateKey
	oracleKey   crypto.PrivateKey

	admin    *Client
	provider *Client
	oracle   *Client
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	eng, err := engine.NewInMemoryEngine([]byte("service test seed"))
	require.NoError(t, err)

	adminPub, adminKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	providerPub, providerKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, oracleKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	led, err := ledger.New(&ledger.Config{
		Admin:           adminPub,
		CooldownSeconds: testCooldownSeconds,
		InstanceID:      []byte("service test instance"),
		Engine:          eng,
		Clock:           clock,
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, led.AddProvider(adminPub, providerPub))

	archive := NewInMemoryArchive()
	svc, err := NewLedgerService(&LedgerServiceConfig{
		Ledger:              led,
		Archive:             archive,
		AttestationProvider: &tdx.DummyProvider{},
		Log:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	mux := chi.NewRouter()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &serviceFixture{
		t:           t,
		eng:         eng,
		led:         led,
		svc:         svc,
		srv:         srv,
		clock:       clock,
		archive:     archive,
		adminKey:    adminKey,
		providerKey: providerKey,
		oracleKey:   oracleKey,
		admin:       NewClient(srv.URL, adminKey),
		provider:    NewClient(srv.URL, providerKey),
		oracle:      NewClient(srv.URL, oracleKey),
	}
}

func (f *serviceFixture) encrypt(value uint64) engine.CiphertextHandle {
	f.t.Helper()
	handle, err := f.eng.EncryptUint64(value)
	require.NoError(f.t, err)
	return handle
}

func TestAdminRoutes(t *testing.T) {
	f := newServiceFixture(t)

	require.NoError(t, f.admin.Pause())
	state, err := f.admin.GetState()
	require.NoError(t, err)
	assert.True(t, state.Paused)

	require.NoError(t, f.admin.Unpause())
	err = f.admin.Unpause()
	require.ErrorIs(t, err, ledger.ErrNotPaused)

	require.NoError(t, f.admin.SetCooldownSeconds(60))
	state, err = f.admin.GetState()
	require.NoError(t, err)
	assert.Equal(t, uint64(60), state.CooldownSeconds)

	err = f.admin.SetCooldownSeconds(0)
	require.ErrorIs(t, err, ledger.ErrZeroCooldown)
}

func TestAdminRoutesRejectNonAdminSigner(t *testing.T) {
	f := newServiceFixture(t)

	require.ErrorIs(t, f.provider.Pause(), ledger.ErrNotAdmin)
	require.ErrorIs(t, f.provider.SetCooldownSeconds(5), ledger.ErrNotAdmin)

	_, err := f.provider.OpenBatch()
	require.ErrorIs(t, err, ledger.ErrNotAdmin)
}

func TestAdminTransferOverHTTP(t *testing.T) {
	f := newServiceFixture(t)

	newAdminPub, newAdminKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, f.admin.TransferAdmin(newAdminPub))

	// The old admin key no longer authorizes admin operations.
	require.ErrorIs(t, f.admin.Pause(), ledger.ErrNotAdmin)

	newAdmin := NewClient(f.srv.URL, newAdminKey)
	require.NoError(t, newAdmin.Pause())
}

func TestSubmitAndQueryBatch(t *testing.T) {
	f := newServiceFixture(t)

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)

	require.NoError(t, f.provider.Submit(batchID, []engine.CiphertextHandle{f.encrypt(7)}))

	batch, err := f.provider.GetBatch(batchID)
	require.NoError(t, err)
	assert.True(t, batch.Open)
	assert.Equal(t, uint64(1), batch.SubmissionCount)

	_, err = f.provider.GetBatch(batchID + 1)
	require.ErrorIs(t, err, ledger.ErrUnknownBatch)

	// Accepted transitions land in the archive.
	batches, err := f.archive.LoadBatches()
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, uint64(1), batches[0].SubmissionCount)
}

func TestSubmitErrorMapping(t *testing.T) {
	f := newServiceFixture(t)

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)

	handle := f.encrypt(1)

	// Non-provider signer.
	require.ErrorIs(t, f.oracle.Submit(batchID, []engine.CiphertextHandle{handle}), ledger.ErrNotProvider)

	require.NoError(t, f.provider.Submit(batchID, []engine.CiphertextHandle{handle}))

	// Same provider again within the cooldown window.
	require.ErrorIs(t, f.provider.Submit(batchID, []engine.CiphertextHandle{handle}), ledger.ErrRateLimited)

	f.clock.Advance(testCooldownSeconds * time.Second)
	require.NoError(t, f.admin.CloseBatch(batchID))
	require.ErrorIs(t, f.provider.Submit(batchID, []engine.CiphertextHandle{handle}), ledger.ErrBatchNotOpen)
}

func TestTamperedEnvelopeRejected(t *testing.T) {
	f := newServiceFixture(t)

	signedReq, err := ledger.NewSigned(f.providerKey, &CooldownRequest{Seconds: 10})
	require.NoError(t, err)
	signedReq.Object.Seconds = 99

	body, err := json.Marshal(signedReq)
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/admin/cooldown", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOracleRegistration(t *testing.T) {
	f := newServiceFixture(t)

	state, err := f.admin.GetState()
	require.NoError(t, err)
	assert.False(t, state.OraclePinned)

	// Registration without attestation evidence is refused.
	err = f.oracle.RegisterOracle("http://oracle.internal:9000", nil)
	require.Error(t, err)

	require.NoError(t, f.oracle.RegisterOracle("http://oracle.internal:9000", &tdx.DummyProvider{}))

	state, err = f.admin.GetState()
	require.NoError(t, err)
	assert.True(t, state.OraclePinned)
	assert.Equal(t, "http://oracle.internal:9000", f.svc.OracleEndpoint())
}

func TestOracleRegistrationRejectsForeignKey(t *testing.T) {
	f := newServiceFixture(t)

	oraclePub, err := f.oracleKey.PublicKey()
	require.NoError(t, err)

	// Envelope signed by the provider key but claiming the oracle's identity.
	req := &OracleRegistrationRequest{
		PublicKey: oraclePub.String(),
		Endpoint:  "http://oracle.internal:9000",
	}
	signedReq, err := ledger.NewSigned(f.providerKey, req)
	require.NoError(t, err)

	body, err := json.Marshal(signedReq)
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/oracle/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCallbackRequiresPinnedOracle(t *testing.T) {
	f := newServiceFixture(t)

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)
	require.NoError(t, f.provider.Submit(batchID, []engine.CiphertextHandle{f.encrypt(5)}))
	requestID, err := f.provider.RequestCalculation(batchID)
	require.NoError(t, err)

	cleartext, proof, err := f.eng.Decrypt(requestID)
	require.NoError(t, err)

	// Valid result, but no oracle has registered yet.
	_, err = f.oracle.OnDecryptionCallback(requestID, cleartext, proof)
	require.Error(t, err)

	require.NoError(t, f.oracle.RegisterOracle("http://oracle.internal:9000", &tdx.DummyProvider{}))

	// A provider signer is still refused after registration.
	_, err = f.provider.OnDecryptionCallback(requestID, cleartext, proof)
	require.Error(t, err)

	result, err := f.oracle.OnDecryptionCallback(requestID, cleartext, proof)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), result)
}

func TestCallbackReplayMapsToSentinel(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.oracle.RegisterOracle("http://oracle.internal:9000", &tdx.DummyProvider{}))

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)
	require.NoError(t, f.provider.Submit(batchID, []engine.CiphertextHandle{f.encrypt(9)}))
	requestID, err := f.provider.RequestCalculation(batchID)
	require.NoError(t, err)

	cleartext, proof, err := f.eng.Decrypt(requestID)
	require.NoError(t, err)

	_, err = f.oracle.OnDecryptionCallback(requestID, cleartext, proof)
	require.NoError(t, err)

	_, err = f.oracle.OnDecryptionCallback(requestID, cleartext, proof)
	require.ErrorIs(t, err, ledger.ErrRequestReplay)

	_, err = f.oracle.OnDecryptionCallback(requestID+100, cleartext, proof)
	require.ErrorIs(t, err, ledger.ErrRequestReplay)
}

func TestRequestStateAndEventsRoutes(t *testing.T) {
	f := newServiceFixture(t)

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)
	require.NoError(t, f.provider.Submit(batchID, []engine.CiphertextHandle{f.encrypt(3)}))
	requestID, err := f.provider.RequestCalculation(batchID)
	require.NoError(t, err)

	providerPub, err := f.providerKey.PublicKey()
	require.NoError(t, err)

	reqState, err := f.provider.GetRequest(requestID)
	require.NoError(t, err)
	assert.Equal(t, batchID, reqState.BatchID)
	assert.Equal(t, providerPub.String(), reqState.Requester)
	assert.False(t, reqState.Processed)
	assert.NotEmpty(t, reqState.Fingerprint)

	_, err = f.provider.GetRequest(requestID + 100)
	require.Error(t, err)

	events, err := f.provider.GetEventsAfter(0)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, ledger.EventDecryptionRequested, last.Type)

	tail, err := f.provider.GetEventsAfter(last.Seq)
	require.NoError(t, err)
	assert.Empty(t, tail)
}

func TestArchiveRecordsRequestLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.oracle.RegisterOracle("http://oracle.internal:9000", &tdx.DummyProvider{}))

	batchID, err := f.admin.OpenBatch()
	require.NoError(t, err)
	require.NoError(t, f.provider.Submit(batchID, []engine.CiphertextHandle{f.encrypt(21)}))
	requestID, err := f.provider.RequestCalculation(batchID)
	require.NoError(t, err)

	cleartext, proof, err := f.eng.Decrypt(requestID)
	require.NoError(t, err)
	_, err = f.oracle.OnDecryptionCallback(requestID, cleartext, proof)
	require.NoError(t, err)

	records, err := f.archive.LoadRequests()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(requestID), records[0].ID)
	assert.True(t, records[0].Processed)
	assert.Equal(t, uint64(21), records[0].Result)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		err    error
		class  string
		status int
	}{
		{ledger.ErrNotAdmin, ClassAuthorization, http.StatusForbidden},
		{ledger.ErrPaused, ClassAvailability, http.StatusServiceUnavailable},
		{ledger.ErrRateLimited, ClassRateLimited, http.StatusTooManyRequests},
		{ledger.ErrUnknownBatch, ClassBatchState, http.StatusNotFound},
		{ledger.ErrBatchEmpty, ClassBatchState, http.StatusBadRequest},
		{ledger.ErrEmptySubmission, ClassValidation, http.StatusBadRequest},
		{ledger.ErrRequestReplay, ClassProtocolIntegrity, http.StatusConflict},
		{errors.New("disk on fire"), ClassInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		class, status := classify(tc.err)
		assert.Equal(t, tc.class, class, tc.err.Error())
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
