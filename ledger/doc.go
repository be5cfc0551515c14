// Package ledger implements the GeneMarket on-ledger protocol: access
// control, rate limiting, submission batches, per-provider encrypted data
// storage, homomorphic aggregation and the verified asynchronous decryption
// request protocol.
//
// The Ledger is a single globally sequential state machine. Every mutating
// entry point takes the caller identity explicitly, executes to completion
// under one lock, and either applies all of its effects or none of them. The
// only asynchrony in the system is the decryption round-trip: RequestCalculation
// returns after scheduling, and the external oracle later delivers exactly one
// OnDecryptionCallback per request identifier. The processed flag on each
// request makes that delivery idempotent from the ledger's perspective.
package ledger
