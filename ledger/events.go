package ledger

import (
	"context"
	"slices"
	"sync"
	"time"
)

// EventType discriminates ledger event payloads.
type EventType string

const (
	EventAdminTransferred    EventType = "admin_transferred"
	EventProviderAdded       EventType = "provider_added"
	EventProviderRemoved     EventType = "provider_removed"
	EventPaused              EventType = "paused"
	EventUnpaused            EventType = "unpaused"
	EventCooldownUpdated     EventType = "cooldown_updated"
	EventBatchOpened         EventType = "batch_opened"
	EventBatchClosed         EventType = "batch_closed"
	EventSubmissionStored    EventType = "submission_stored"
	EventDecryptionRequested EventType = "decryption_requested"
	EventRequestCompleted    EventType = "request_completed"
)

// Event is an observable ledger state transition. Fields beyond Seq, Type and
// Time are populated per type: Identity for access-control events, BatchID and
// SubmissionCount for batch events, RequestID/Fingerprint/Result for the
// decryption protocol.
type Event struct {
	Seq  uint64    `json:"seq"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	Identity        string `json:"identity,omitempty"`
	BatchID         uint64 `json:"batch_id,omitempty"`
	SubmissionCount uint64 `json:"submission_count,omitempty"`
	CooldownSeconds uint64 `json:"cooldown_seconds,omitempty"`
	RequestID       uint64 `json:"request_id,omitempty"`
	Fingerprint     string `json:"fingerprint,omitempty"`
	Result          uint64 `json:"result,omitempty"`
}

type eventSubscriber struct {
	ctx context.Context
	ch  chan Event
}

// eventLog retains all emitted events for polling and fans them out to
// channel subscribers. Callers that miss channel delivery (full buffer) can
// always catch up via After.
type eventLog struct {
	mu          sync.RWMutex
	events      []Event
	nextSeq     uint64
	subscribers []eventSubscriber
}

func newEventLog() *eventLog {
	return &eventLog{nextSeq: 1}
}

func (l *eventLog) emit(ev Event) Event {
	l.mu.Lock()
	ev.Seq = l.nextSeq
	l.nextSeq++
	l.events = append(l.events, ev)

	toRemove := []int{}
	for i, sub := range l.subscribers {
		select {
		case <-sub.ctx.Done():
			close(sub.ch)
			toRemove = append(toRemove, i)
		case sub.ch <- ev:
		default:
			// Skip if channel is full; subscriber catches up via After.
		}
	}
	slices.Reverse(toRemove)
	for _, i := range toRemove {
		l.subscribers = slices.Delete(l.subscribers, i, i+1)
	}
	l.mu.Unlock()

	return ev
}

// After returns all events with Seq > after, oldest first.
func (l *eventLog) After(after uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := len(l.events)
	for i, ev := range l.events {
		if ev.Seq > after {
			idx = i
			break
		}
	}
	out := make([]Event, len(l.events)-idx)
	copy(out, l.events[idx:])
	return out
}

// Subscribe registers a channel receiving future events until ctx is done.
func (l *eventLog) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)
	l.mu.Lock()
	l.subscribers = append(l.subscribers, eventSubscriber{ctx, ch})
	l.mu.Unlock()
	return ch
}
