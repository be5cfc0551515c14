package ledger

// BatchInfo is the observable state of a submission batch.
type BatchInfo struct {
	ID              uint64 `json:"id"`
	Open            bool   `json:"open"`
	SubmissionCount uint64 `json:"submission_count"`
}

// batchLedger owns batch lifecycle. Batch ids increase monotonically from 1,
// are assigned once and never reused; closed batches are retained forever.
type batchLedger struct {
	current uint64
	batches map[uint64]*BatchInfo
}

func newBatchLedger() *batchLedger {
	return &batchLedger{batches: make(map[uint64]*BatchInfo)}
}

func (b *batchLedger) open() *BatchInfo {
	b.current++
	batch := &BatchInfo{ID: b.current, Open: true}
	b.batches[b.current] = batch
	return batch
}

func (b *batchLedger) get(id uint64) (*BatchInfo, error) {
	batch, ok := b.batches[id]
	if !ok {
		return nil, ErrUnknownBatch
	}
	return batch, nil
}

func (b *batchLedger) close(id uint64) (*BatchInfo, error) {
	batch, err := b.get(id)
	if err != nil {
		return nil, err
	}
	if !batch.Open {
		return nil, ErrBatchNotOpen
	}
	batch.Open = false
	return batch, nil
}

// requireOpen verifies the batch exists and is accepting submissions.
func (b *batchLedger) requireOpen(id uint64) (*BatchInfo, error) {
	batch, err := b.get(id)
	if err != nil {
		return nil, err
	}
	if !batch.Open {
		return nil, ErrBatchNotOpen
	}
	return batch, nil
}
