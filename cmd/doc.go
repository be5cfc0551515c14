// Package cmd provides CLI commands for GeneMarket services.
//
// # Commands
//
// ledgerd: Runs the ledger daemon with its signed HTTP surface, Prometheus
// metrics listener, optional Postgres archive and an optional in-process
// decryption worker.
//
//	go run ./cmd/ledgerd --addr=:8080 --with-oracle
//	go run ./cmd/ledgerd --config=ledgerd.yaml
//
// genemarket-cli: CLI for operating a deployed ledger: status, event log,
// pause control, provider authorization and batch lifecycle.
//
//	go run ./cmd/genemarket-cli status --ledger=http://localhost:8080
//	go run ./cmd/genemarket-cli open-batch --ledger=http://localhost:8080 --key=<admin-key-hex>
//
// demo: Runs a complete aggregation round in one process, from provider
// submission through the oracle's verified callback.
//
//	go run ./cmd/demo --values=4,16,22
//
// # Configuration
//
// The ledgerd command supports YAML configuration files via the --config
// flag. Command-line flags override config file values.
//
// Example config:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	cooldown_seconds: 60
//	keys:
//	  signing_key: ""
//	  admin_key: ""
//	attestation:
//	  use_tdx: false
//	oracle:
//	  enabled: true
package cmd
