// Package common provides shared utilities for GeneMarket CLI commands:
// YAML configuration loading, Ed25519 key loading and generation, and
// attestation provider construction.
package common

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cipherstack/genemarket/crypto"
	"github.com/cipherstack/genemarket/services"
	"github.com/cipherstack/genemarket/tdx"
)

// Config holds the YAML configuration shared by the GeneMarket binaries.
type Config struct {
	// ListenAddr is the main HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the Prometheus listener address. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// EnablePprof enables the pprof debugging API.
	EnablePprof bool `yaml:"enable_pprof"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json"`

	// LogDebug lowers the log level to debug.
	LogDebug bool `yaml:"log_debug"`

	// CooldownSeconds is the initial per-identity cooldown.
	CooldownSeconds uint64 `yaml:"cooldown_seconds"`

	// InstanceID is the hex-encoded protocol instance identity. Generated
	// randomly when empty.
	InstanceID string `yaml:"instance_id"`

	// EngineSeed is the hex-encoded engine key seed. Generated randomly when
	// empty; a fixed seed keeps handles stable across restarts.
	EngineSeed string `yaml:"engine_seed"`

	Keys struct {
		// SigningKey is the hex-encoded Ed25519 private key. Generated when
		// empty.
		SigningKey string `yaml:"signing_key"`

		// AdminKey is the hex-encoded admin public key. Defaults to the
		// signing key's public key.
		AdminKey string `yaml:"admin_key"`
	} `yaml:"keys"`

	Attestation struct {
		// UseTDX enables real DCAP attestation instead of the dummy provider.
		UseTDX bool `yaml:"use_tdx"`

		// TDXRemoteURL points at a quoting service when the process cannot
		// reach the TDX device directly.
		TDXRemoteURL string `yaml:"tdx_remote_url"`
	} `yaml:"attestation"`

	Postgres *services.PostgresConfig `yaml:"postgres"`

	Oracle struct {
		// Enabled runs the decryption worker inside the ledger daemon.
		Enabled bool `yaml:"enabled"`

		// CallbackEndpoint is the URL the oracle registers for callbacks.
		CallbackEndpoint string `yaml:"callback_endpoint"`

		// PollInterval is how often the worker checks for scheduled requests.
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"oracle"`
}

// DefaultConfig returns a configuration with development defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		ListenAddr:      ":8080",
		CooldownSeconds: 60,
	}
	cfg.Oracle.PollInterval = time.Second
	return cfg
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// DecodeHexOrNil decodes a hex string, returning nil for an empty input.
func DecodeHexOrNil(hexValue, what string) ([]byte, error) {
	if hexValue == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(hexValue)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %w", what, err)
	}
	return decoded, nil
}

// NewAttestationProvider creates a TEE provider based on configuration flags.
// Returns LocalProvider or RemoteProvider when useTDX is true, otherwise the
// DummyProvider for development deployments.
func NewAttestationProvider(useTDX bool, remoteTDXURL string) tdx.Provider {
	if useTDX {
		if remoteTDXURL != "" {
			return &tdx.RemoteProvider{URL: remoteTDXURL, Timeout: 30 * time.Second}
		}
		return &tdx.LocalProvider{}
	}
	return &tdx.DummyProvider{}
}
