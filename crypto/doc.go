// Package crypto provides the identity primitives used across GeneMarket.
//
// Every participant in the protocol (the administrator, data providers and
// the decryption oracle) is identified by an Ed25519 public key. Mutating
// ledger calls are authenticated by recovering the signer of a signed request
// envelope and treating that key as the caller identity.
//
// Ciphertext handling is deliberately absent from this package: encrypted
// values are only ever manipulated through the confidential-computing engine
// (see package engine).
package crypto
