// Package oracle implements the decryption worker that completes the
// asynchronous half of the protocol: it drains scheduled decryptions from the
// confidential-computing engine, produces cleartexts with authenticity
// proofs, and delivers each result to the ledger's callback exactly once from
// its own perspective.
//
// Delivery is at-least-once from the transport's perspective: a delivery that
// fails is retried with exponential backoff, and the ledger's processed flag
// makes duplicate deliveries harmless. A delivery the ledger rejects for
// protocol-integrity reasons (replay, state drift, bad proof) is not retried,
// since the rejection is deterministic.
package oracle
