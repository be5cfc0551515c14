package services

import (
	"sync"
)

// BatchRecord is the archived view of a batch.
type BatchRecord struct {
	ID              uint64
	Open            bool
	SubmissionCount uint64
}

// SubmissionRecord archives a provider's latest accepted submission. Handles
// are the normalized list the ledger stored, not the raw request payload.
type SubmissionRecord struct {
	BatchID  uint64
	Provider string
	Handles  [][]byte
}

// RequestRecord is the archived view of a decryption request.
type RequestRecord struct {
	ID          uint64
	BatchID     uint64
	Requester   string
	Fingerprint string
	Processed   bool
	Result      uint64
}

// ArchiveStore persists accepted state transitions for querying and audit.
// Writes are upserts keyed on the record identity; the ledger remains the
// source of truth and archive failures never roll back a ledger operation.
type ArchiveStore interface {
	SaveBatch(rec *BatchRecord) error
	SaveSubmission(rec *SubmissionRecord) error
	SaveRequest(rec *RequestRecord) error

	LoadBatches() ([]*BatchRecord, error)
	LoadRequests() ([]*RequestRecord, error)

	Close() error
}

// InMemoryArchive implements ArchiveStore for tests without a database.
type InMemoryArchive struct {
	mu          sync.Mutex
	batches     map[uint64]*BatchRecord
	submissions map[uint64]map[string]*SubmissionRecord
	requests    map[uint64]*RequestRecord
}

// NewInMemoryArchive creates an in-memory archive.
func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{
		batches:     make(map[uint64]*BatchRecord),
		submissions: make(map[uint64]map[string]*SubmissionRecord),
		requests:    make(map[uint64]*RequestRecord),
	}
}

// SaveBatch upserts a batch record.
func (s *InMemoryArchive) SaveBatch(rec *BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.batches[rec.ID] = &clone
	return nil
}

// SaveSubmission upserts a provider's submission record.
func (s *InMemoryArchive) SaveSubmission(rec *SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submissions[rec.BatchID] == nil {
		s.submissions[rec.BatchID] = make(map[string]*SubmissionRecord)
	}
	clone := *rec
	s.submissions[rec.BatchID][rec.Provider] = &clone
	return nil
}

// SaveRequest upserts a decryption request record.
func (s *InMemoryArchive) SaveRequest(rec *RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.requests[rec.ID] = &clone
	return nil
}

// LoadBatches returns all archived batches.
func (s *InMemoryArchive) LoadBatches() ([]*BatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*BatchRecord, 0, len(s.batches))
	for _, rec := range s.batches {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

// LoadRequests returns all archived decryption requests.
func (s *InMemoryArchive) LoadRequests() ([]*RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*RequestRecord, 0, len(s.requests))
	for _, rec := range s.requests {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

// Close is a no-op for the in-memory archive.
func (s *InMemoryArchive) Close() error {
	return nil
}
