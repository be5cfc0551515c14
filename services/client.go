package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
	"github.com/cipherstack/genemarket/tdx"
)

// Client talks to a ledger service. Every mutating call is signed with the
// client's key; the service authorizes the recovered signer. The same type
// serves administrators, providers and the oracle, which simply hold
// different keys.
type Client struct {
	endpoint   string
	signingKey crypto.PrivateKey
	httpClient *http.Client
}

// NewClient creates a client for the ledger service at endpoint.
func NewClient(endpoint string, signingKey crypto.PrivateKey) *Client {
	return &Client{
		endpoint:   endpoint,
		signingKey: signingKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// postSigned signs obj, posts it to path and decodes the response into out.
// Rejections are mapped back to ledger sentinel errors.
func postSigned[T any](c *Client, path string, obj *T, out any) error {
	signedReq, err := ledger.NewSigned(c.signingKey, obj)
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}

	body, err := json.Marshal(signedReq)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.httpClient.Post(c.endpoint+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeRejection(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func decodeRejection(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var errResp ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
		return mapRemoteError(&errResp)
	}
	return fmt.Errorf("service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.endpoint + path)
	if err != nil {
		return fmt.Errorf("getting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeRejection(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TransferAdmin reassigns the administrator identity.
func (c *Client) TransferAdmin(newAdmin crypto.PublicKey) error {
	return postSigned(c, "/admin/transfer", &TransferAdminRequest{NewAdmin: newAdmin.String()}, nil)
}

// AddProvider authorizes a provider identity.
func (c *Client) AddProvider(provider crypto.PublicKey) error {
	return postSigned(c, "/admin/providers/add", &ProviderUpdateRequest{Provider: provider.String()}, nil)
}

// RemoveProvider revokes a provider identity.
func (c *Client) RemoveProvider(provider crypto.PublicKey) error {
	return postSigned(c, "/admin/providers/remove", &ProviderUpdateRequest{Provider: provider.String()}, nil)
}

// Pause stops all provider and batch operations.
func (c *Client) Pause() error {
	return postSigned(c, "/admin/pause", &PauseRequest{}, nil)
}

// Unpause resumes operations.
func (c *Client) Unpause() error {
	return postSigned(c, "/admin/unpause", &PauseRequest{}, nil)
}

// SetCooldownSeconds updates the global cooldown.
func (c *Client) SetCooldownSeconds(seconds uint64) error {
	return postSigned(c, "/admin/cooldown", &CooldownRequest{Seconds: seconds}, nil)
}

// OpenBatch opens the next batch and returns its id.
func (c *Client) OpenBatch() (uint64, error) {
	var resp OpenBatchResponse
	if err := postSigned(c, "/admin/batches/open", &OpenBatchRequest{}, &resp); err != nil {
		return 0, err
	}
	return resp.BatchID, nil
}

// CloseBatch closes an open batch.
func (c *Client) CloseBatch(batchID uint64) error {
	return postSigned(c, "/admin/batches/close", &CloseBatchRequest{BatchID: batchID}, nil)
}

// Submit stores the caller's encrypted contribution to a batch.
func (c *Client) Submit(batchID uint64, handles []engine.CiphertextHandle) error {
	return postSigned(c, "/submit", &SubmitRequest{BatchID: batchID, Handles: handles}, nil)
}

// RequestCalculation schedules decryption of the caller's batch aggregate.
func (c *Client) RequestCalculation(batchID uint64) (engine.RequestID, error) {
	var resp CalculationResponse
	if err := postSigned(c, "/request-calculation", &CalculationRequest{BatchID: batchID}, &resp); err != nil {
		return 0, err
	}
	return engine.RequestID(resp.RequestID), nil
}

// RegisterOracle pins the caller's key as the oracle callback identity,
// attaching attestation evidence when a provider is given.
func (c *Client) RegisterOracle(callbackEndpoint string, attestationProvider tdx.Provider) error {
	pubKey, err := c.signingKey.PublicKey()
	if err != nil {
		return err
	}

	req := &OracleRegistrationRequest{
		PublicKey: pubKey.String(),
		Endpoint:  callbackEndpoint,
	}

	if attestationProvider != nil {
		attestation, err := attestationProvider.Attest(ReportDataForOracle(pubKey, callbackEndpoint))
		if err != nil {
			return fmt.Errorf("generating attestation: %w", err)
		}
		req.Attestation = attestation
	}

	return postSigned(c, "/oracle/register", req, nil)
}

// OnDecryptionCallback delivers a decryption result over HTTP. Implements
// oracle.CallbackSink, so a remote oracle worker observes the same sentinel
// errors as an in-process one.
func (c *Client) OnDecryptionCallback(id engine.RequestID, cleartext, proof []byte) (uint64, error) {
	var resp CallbackResponse
	err := postSigned(c, "/oracle/callback", &CallbackRequest{
		RequestID: uint64(id),
		Cleartext: cleartext,
		Proof:     proof,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result, nil
}

// GetState fetches the ledger's observable state.
func (c *Client) GetState() (*LedgerStateResponse, error) {
	var resp LedgerStateResponse
	if err := c.getJSON("/state", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBatch fetches the observable state of a batch.
func (c *Client) GetBatch(batchID uint64) (*ledger.BatchInfo, error) {
	var resp ledger.BatchInfo
	if err := c.getJSON(fmt.Sprintf("/batches/%d", batchID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRequest fetches the persisted state of a decryption request.
func (c *Client) GetRequest(requestID engine.RequestID) (*RequestStateResponse, error) {
	var resp RequestStateResponse
	if err := c.getJSON(fmt.Sprintf("/requests/%d", uint64(requestID)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetEventsAfter fetches retained events with sequence numbers greater than
// after.
func (c *Client) GetEventsAfter(after uint64) ([]ledger.Event, error) {
	var resp EventsResponse
	if err := c.getJSON(fmt.Sprintf("/events?after=%d", after), &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}
