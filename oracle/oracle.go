package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
)

// CallbackSink receives decryption results. In-process deployments pass the
// Ledger directly; remote ones use the HTTP callback client in package
// services.
type CallbackSink interface {
	OnDecryptionCallback(id engine.RequestID, cleartext, proof []byte) (uint64, error)
}

// Config parameterizes a Worker.
type Config struct {
	// Oracle is the engine surface the worker drains.
	Oracle engine.DecryptionOracle

	// Sink receives completed decryptions.
	Sink CallbackSink

	// PollInterval is how often the worker checks for scheduled requests.
	// Defaults to one second.
	PollInterval time.Duration

	// MaxDeliveryElapsed bounds the backoff retries for one delivery.
	// Defaults to one minute.
	MaxDeliveryElapsed time.Duration

	// Log is the structured logger. Defaults to slog.Default().
	Log *slog.Logger
}

// Worker polls the engine and drives callbacks.
type Worker struct {
	oracle             engine.DecryptionOracle
	sink               CallbackSink
	pollInterval       time.Duration
	maxDeliveryElapsed time.Duration
	log                *slog.Logger
}

// New creates a worker from the given configuration.
func New(cfg *Config) (*Worker, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("callback sink is required")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = time.Second
	}
	maxElapsed := cfg.MaxDeliveryElapsed
	if maxElapsed == 0 {
		maxElapsed = time.Minute
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		oracle:             cfg.Oracle,
		sink:               cfg.Sink,
		pollInterval:       pollInterval,
		maxDeliveryElapsed: maxElapsed,
		log:                log,
	}, nil
}

// Run polls until ctx is done. Each scheduled request is decrypted and
// delivered; delivery transport failures are retried with backoff.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DrainOnce(ctx)
		}
	}
}

// DrainOnce claims all currently scheduled requests and delivers their
// results. Exposed separately so tests and demos can drive the worker
// deterministically.
func (w *Worker) DrainOnce(ctx context.Context) {
	for _, req := range w.oracle.PendingRequests() {
		if err := w.process(ctx, req); err != nil {
			w.log.Error("decryption delivery failed", "request", req.ID, "err", err)
		}
	}
}

func (w *Worker) process(ctx context.Context, req engine.ScheduledRequest) error {
	cleartext, proof, err := w.oracle.Decrypt(req.ID)
	if err != nil {
		return fmt.Errorf("decrypting request %d: %w", req.ID, err)
	}

	policy := backoff.WithContext(w.deliveryBackoff(), ctx)
	return backoff.Retry(func() error {
		result, err := w.sink.OnDecryptionCallback(req.ID, cleartext, proof)
		if err != nil {
			if isProtocolRejection(err) {
				// Deterministic rejection, retrying cannot help.
				w.log.Warn("callback rejected by ledger", "request", req.ID, "err", err)
				return backoff.Permanent(err)
			}
			return err
		}
		w.log.Info("decryption delivered", "request", req.ID, "result", result)
		return nil
	}, policy)
}

func (w *Worker) deliveryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = w.maxDeliveryElapsed
	return b
}

func isProtocolRejection(err error) bool {
	return errors.Is(err, ledger.ErrRequestReplay) ||
		errors.Is(err, ledger.ErrFingerprintMismatch) ||
		errors.Is(err, ledger.ErrInvalidProof)
}
