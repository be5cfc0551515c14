// Command demo runs a complete GeneMarket round in a single process.
//
// It starts the ledger service on a local port, authorizes three providers,
// submits encrypted contributions, requests an aggregate calculation, and
// lets the oracle worker deliver the verified result through the signed HTTP
// callback route. Every interaction travels over HTTP exactly as it would in
// a multi-process deployment; only the engine is shared, because the demo
// plays both the ledger and the encrypting providers.
//
// # Usage
//
//	go run ./cmd/demo
//	go run ./cmd/demo --addr=:8099 --values=4,16,22
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
	"github.com/cipherstack/genemarket/oracle"
	"github.com/cipherstack/genemarket/services"
	"github.com/cipherstack/genemarket/tdx"
)

func main() {
	var (
		addr      = flag.String("addr", ":8099", "HTTP listen address")
		rawValues = flag.String("values", "12,30", "Comma-separated values one provider submits")
	)
	flag.Parse()

	if err := run(*addr, *rawValues); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseValues(raw string) ([]uint64, error) {
	parts := strings.Split(raw, ",")
	values := make([]uint64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", part, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func run(addr, rawValues string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	values, err := parseValues(rawValues)
	if err != nil {
		return err
	}

	eng, err := engine.NewInMemoryEngine(nil)
	if err != nil {
		return err
	}

	adminPub, adminKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	led, err := ledger.New(&ledger.Config{
		Admin:           adminPub,
		CooldownSeconds: 1,
		Engine:          eng,
		Log:             log,
	})
	if err != nil {
		return err
	}

	svc, err := services.NewLedgerService(&services.LedgerServiceConfig{
		Ledger:              led,
		Archive:             services.NewInMemoryArchive(),
		AttestationProvider: &tdx.DummyProvider{},
		Log:                 log,
	})
	if err != nil {
		return err
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	svc.RegisterRoutes(mux)

	server := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 15 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
			os.Exit(1)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	serviceURL := "http://localhost" + addr
	admin := services.NewClient(serviceURL, adminKey)

	fmt.Printf("Ledger running on %s\n", serviceURL)
	fmt.Printf("Administrator: %s\n\n", adminPub.String()[:16])

	// One provider per value plus a requesting provider that submits them all.
	providerPub, providerKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := admin.AddProvider(providerPub); err != nil {
		return err
	}
	provider := services.NewClient(serviceURL, providerKey)

	batchID, err := admin.OpenBatch()
	if err != nil {
		return err
	}
	fmt.Printf("Opened batch %d\n", batchID)

	handles := make([]engine.CiphertextHandle, 0, len(values))
	var expected uint64
	for _, v := range values {
		handle, err := eng.EncryptUint64(v)
		if err != nil {
			return err
		}
		handles = append(handles, handle)
		expected += v
	}
	if err := provider.Submit(batchID, handles); err != nil {
		return err
	}
	fmt.Printf("Provider %s submitted %d encrypted values\n", providerPub.String()[:16], len(values))

	requestID, err := provider.RequestCalculation(batchID)
	if err != nil {
		return err
	}
	fmt.Printf("Scheduled decryption request %d\n", requestID)

	// The oracle registers its callback identity and drains the engine.
	_, oracleKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	oracleClient := services.NewClient(serviceURL, oracleKey)
	if err := oracleClient.RegisterOracle(serviceURL, &tdx.DummyProvider{}); err != nil {
		return fmt.Errorf("registering oracle: %w", err)
	}

	worker, err := oracle.New(&oracle.Config{Oracle: eng, Sink: oracleClient, Log: log})
	if err != nil {
		return err
	}
	worker.DrainOnce(context.Background())

	reqState, err := provider.GetRequest(requestID)
	if err != nil {
		return err
	}
	if !reqState.Processed {
		return fmt.Errorf("request %d was not processed", requestID)
	}

	fmt.Printf("\nDecrypted aggregate: %d (expected %d)\n", reqState.Result, expected)
	fmt.Printf("Fingerprint: %s\n\n", reqState.Fingerprint[:16])

	events, err := admin.GetEventsAfter(0)
	if err != nil {
		return err
	}
	fmt.Println("Event log:")
	for _, ev := range events {
		fmt.Printf("  %4d  %s\n", ev.Seq, ev.Type)
	}
	return nil
}
