// Command ledgerd runs the GeneMarket ledger daemon.
//
// The daemon hosts the confidential aggregation ledger behind its signed HTTP
// surface: administrator routes, provider submission and calculation routes,
// oracle registration and callback routes, and the read-only state endpoints.
// An optional in-process decryption worker registers as the oracle and
// delivers results through the same callback route a remote oracle would use.
//
// # Configuration File
//
// Create a YAML file with daemon settings:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	cooldown_seconds: 60
//	keys:
//	  signing_key: ""   # Hex-encoded Ed25519, generates if empty
//	  admin_key: ""     # Hex-encoded public key, defaults to signing key
//	attestation:
//	  use_tdx: false
//	postgres:
//	  host: localhost
//	  port: 5432
//	  user: genemarket
//	  password: secret
//	  database: genemarket
//	oracle:
//	  enabled: true
//	  callback_endpoint: "http://localhost:8080"
//
// # Usage
//
//	go run ./cmd/ledgerd --config=ledgerd.yaml
//	go run ./cmd/ledgerd --addr=:8080 --with-oracle
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cipherstack/genemarket/api/httpserver"
	"github.com/cipherstack/genemarket/cmd/common"
	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/engine"
	"github.com/cipherstack/genemarket/ledger"
	"github.com/cipherstack/genemarket/oracle"
	"github.com/cipherstack/genemarket/services"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		addr         = flag.String("addr", "", "HTTP listen address")
		metricsAddr  = flag.String("metrics-addr", "", "Prometheus listener address")
		enablePprof  = flag.Bool("pprof", false, "Enable the pprof debugging API")
		logJSON      = flag.Bool("log-json", false, "Log in JSON format")
		logDebug     = flag.Bool("log-debug", false, "Log at debug level")
		cooldown     = flag.Uint64("cooldown", 0, "Initial cooldown in seconds")
		withOracle   = flag.Bool("with-oracle", false, "Run the decryption worker in-process")
		useTDX       = flag.Bool("tdx", false, "Use real TDX attestation")
		remoteTDXURL = flag.String("tdx-url", "", "Remote TDX quoting service URL")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}
	if *logJSON {
		cfg.LogJSON = true
	}
	if *logDebug {
		cfg.LogDebug = true
	}
	if *cooldown != 0 {
		cfg.CooldownSeconds = *cooldown
	}
	if *withOracle {
		cfg.Oracle.Enabled = true
	}
	if *useTDX {
		cfg.Attestation.UseTDX = true
	}
	if *remoteTDXURL != "" {
		cfg.Attestation.TDXRemoteURL = *remoteTDXURL
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func newLogger(cfg *common.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg *common.Config) error {
	log := newLogger(cfg)

	signingKey, err := common.LoadOrGenerateSigningKey(cfg.Keys.SigningKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	selfPub, err := signingKey.PublicKey()
	if err != nil {
		return err
	}

	adminPub := selfPub
	if cfg.Keys.AdminKey != "" {
		adminPub, err = crypto.NewPublicKeyFromString(cfg.Keys.AdminKey)
		if err != nil {
			return fmt.Errorf("admin key: %w", err)
		}
	}
	log.Info("ledger identity", "self", selfPub.String(), "admin", adminPub.String())

	engineSeed, err := common.DecodeHexOrNil(cfg.EngineSeed, "engine seed")
	if err != nil {
		return err
	}
	eng, err := engine.NewInMemoryEngine(engineSeed)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	instanceID, err := common.DecodeHexOrNil(cfg.InstanceID, "instance id")
	if err != nil {
		return err
	}

	led, err := ledger.New(&ledger.Config{
		Admin:           adminPub,
		CooldownSeconds: cfg.CooldownSeconds,
		InstanceID:      instanceID,
		Engine:          eng,
		Log:             log,
	})
	if err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}

	var archive services.ArchiveStore
	if cfg.Postgres != nil {
		pgArchive, err := services.NewPostgresArchive(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting archive: %w", err)
		}
		defer pgArchive.Close()
		archive = pgArchive
		log.Info("postgres archive connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	attestationProvider := common.NewAttestationProvider(cfg.Attestation.UseTDX, cfg.Attestation.TDXRemoteURL)

	svc, err := services.NewLedgerService(&services.LedgerServiceConfig{
		Ledger:              led,
		Archive:             archive,
		AttestationProvider: attestationProvider,
		Log:                 log,
	})
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, svc)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.RunInBackground()

	if cfg.Oracle.Enabled {
		if err := startOracle(ctx, cfg, eng, log); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down ledgerd")
	cancel()
	srv.Shutdown()
	return nil
}

// startOracle registers an oracle identity with the local service and runs
// the decryption worker against it. Delivery goes through the HTTP callback
// route, exercising the same path a remote oracle deployment would.
func startOracle(ctx context.Context, cfg *common.Config, eng *engine.InMemoryEngine, log *slog.Logger) error {
	_, oracleKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating oracle key: %w", err)
	}

	serviceURL := cfg.Oracle.CallbackEndpoint
	if serviceURL == "" {
		serviceURL = "http://localhost" + cfg.ListenAddr
	}

	client := services.NewClient(serviceURL, oracleKey)
	attestationProvider := common.NewAttestationProvider(cfg.Attestation.UseTDX, cfg.Attestation.TDXRemoteURL)

	// The server needs a moment to start listening before registration.
	registered := false
	for attempt := 0; attempt < 10; attempt++ {
		if err = client.RegisterOracle(serviceURL, attestationProvider); err == nil {
			registered = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	if !registered {
		return fmt.Errorf("registering oracle: %w", err)
	}
	log.Info("oracle registered", "endpoint", serviceURL)

	worker, err := oracle.New(&oracle.Config{
		Oracle:       eng,
		Sink:         client,
		PollInterval: cfg.Oracle.PollInterval,
		Log:          log,
	})
	if err != nil {
		return fmt.Errorf("creating oracle worker: %w", err)
	}

	go worker.Run(ctx)
	return nil
}
