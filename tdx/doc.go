// Package tdx provides attestation for the decryption oracle.
//
// The ledger service only accepts decryption callbacks from a pinned oracle
// identity. Before pinning, the oracle proves it runs the expected code inside
// a TDX trust domain: it generates a DCAP quote whose report data binds its
// callback signing key, and the service verifies the quote before accepting
// the registration. DummyProvider stands in for hardware during tests.
package tdx
