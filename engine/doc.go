// Package engine defines the contract between the GeneMarket ledger and the
// external confidential-computing engine that performs all ciphertext
// arithmetic and asynchronous decryption.
//
// The ledger never observes plaintext gene data and never inspects ciphertext
// contents. It holds opaque handles, asks the engine to fold them with
// homomorphic addition, and schedules decryptions that complete later through
// a single oracle callback carrying an authenticity proof.
//
// InMemoryEngine simulates the engine for tests and demos: plaintexts live
// behind random handles inside the engine instance, addition is performed on
// the hidden values, and proofs are HMACs keyed by instance secrets. It makes
// no attempt at real confidentiality.
package engine
