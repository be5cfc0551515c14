// Package services exposes the GeneMarket ledger over HTTP.
//
// Every mutating request travels as a ledger.Signed envelope; the recovered
// signer is the caller identity the ledger authorizes against. The decryption
// callback route additionally requires the signer to be the pinned oracle
// identity, which the oracle establishes once through an attested
// registration.
//
// Accepted state transitions are mirrored into an archive store (Postgres in
// deployments, in-memory in tests). The ledger's own maps remain the source
// of truth; the archive is a queryable history and is never consulted for
// fingerprint reconstruction.
package services
