package flags

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
)

// MutationEvent is published whenever a flag config changes, so connected
// SDKs can refresh instead of polling.
type MutationEvent struct {
	FlagID        string `json:"flag_id"`
	EnvironmentID string `json:"environment_id"`
	Revision      int64  `json:"revision"`
}

// Broadcaster fans mutation events out to per-environment SSE subscriber
// channels: a per-channel subscriber map feeding one-way Server-Sent-Event
// streams, with a monotonic revision token subscribers use to resume
// after a reconnect.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan MutationEvent // environment -> subscriber id -> channel
	revision    atomic.Int64
	history     []MutationEvent // ring of recent events, for reconnect replay
	historyCap  int
}

// NewBroadcaster constructs a Broadcaster. historyCap bounds how many past
// events are retained for reconnect replay; 0 selects a sensible default.
func NewBroadcaster(historyCap int) *Broadcaster {
	if historyCap <= 0 {
		historyCap = 500
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan MutationEvent),
		historyCap:  historyCap,
	}
}

// Subscribe registers a subscriber for an environment and returns its
// channel plus an unsubscribe function the caller must call on disconnect.
// Retained events for the environment numbered after sinceRevision are
// replayed before live events start flowing, so a sinceRevision of 0
// replays the whole retained history; a non-zero value is the reconnect
// path.
func (b *Broadcaster) Subscribe(environmentID, subscriberID string, sinceRevision int64) (<-chan MutationEvent, func()) {
	ch := make(chan MutationEvent, 64)

	b.mu.Lock()
	if _, ok := b.subscribers[environmentID]; !ok {
		b.subscribers[environmentID] = make(map[string]chan MutationEvent)
	}
	b.subscribers[environmentID][subscriberID] = ch
	replay := b.replayLocked(environmentID, sinceRevision)
	b.mu.Unlock()

	for _, evt := range replay {
		ch <- evt
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[environmentID]; ok {
			delete(subs, subscriberID)
			if len(subs) == 0 {
				delete(b.subscribers, environmentID)
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}

func (b *Broadcaster) replayLocked(environmentID string, sinceRevision int64) []MutationEvent {
	var replay []MutationEvent
	for _, evt := range b.history {
		if evt.EnvironmentID == environmentID && evt.Revision > sinceRevision {
			replay = append(replay, evt)
		}
	}
	return replay
}

// Publish stamps evt with the next revision and delivers it to every
// subscriber of its environment. A slow subscriber's channel is never
// blocked on - a full channel drops the event rather than stalling the
// publisher, since a reconnect replay (via sinceRevision) recovers it.
func (b *Broadcaster) Publish(environmentID string, evt MutationEvent) {
	evt.EnvironmentID = environmentID
	evt.Revision = b.revision.Add(1)

	b.mu.Lock()
	b.history = append(b.history, evt)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	subs := make([]chan MutationEvent, 0, len(b.subscribers[environmentID]))
	for _, ch := range b.subscribers[environmentID] {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers for an
// environment. Exported for health/metrics reporting.
func (b *Broadcaster) SubscriberCount(environmentID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[environmentID])
}

// EncodeSSE renders a MutationEvent as a Server-Sent-Event frame: an `id:`
// line carrying the revision (the reconnect token clients echo back via
// Last-Event-ID), and a `data:` line carrying the JSON payload.
func EncodeSSE(evt MutationEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+32)
	out = append(out, []byte("id: ")...)
	out = append(out, []byte(strconv.FormatInt(evt.Revision, 10))...)
	out = append(out, '\n')
	out = append(out, []byte("data: ")...)
	out = append(out, data...)
	out = append(out, '\n', '\n')
	return out, nil
}
