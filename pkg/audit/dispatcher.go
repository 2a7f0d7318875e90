package audit

import (
	"context"
	"log/slog"
	"sync"
)

// OverflowPolicy controls what happens when the dispatcher's bounded queue
// is full.
type OverflowPolicy int

const (
	// DropNewest discards the incoming entry, keeping the queue's current contents.
	DropNewest OverflowPolicy = iota
	// DropOldest discards the oldest queued entry to make room for the incoming one.
	DropOldest
	// Block makes the producer wait until space is available.
	Block
)

// DispatcherConfig configures the bounded queue and overflow behavior.
type DispatcherConfig struct {
	QueueCapacity int
	Overflow      OverflowPolicy
}

// DefaultDispatcherConfig is a 10,000-entry bounded queue with
// newest-drop overflow.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{QueueCapacity: 10_000, Overflow: DropNewest}
}

// Dispatcher fans a stream of audit entries out to every registered sink.
// Internally it is a bounded queue plus one worker goroutine per sink: a
// slow sink only delays its own goroutine, never the others, and never
// blocks Log() beyond the configured overflow policy.
type Dispatcher struct {
	cfg   DispatcherConfig
	queue chan Entry

	mu    sync.RWMutex
	sinks []Sink

	perSink []chan Entry
	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopOnce sync.Once
}

// NewDispatcher constructs a Dispatcher with no sinks registered yet. Call
// AddSink before Start: Start takes a one-time snapshot of the registered
// sinks, so a sink added after Start gets no worker and receives nothing.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10_000
	}
	return &Dispatcher{
		cfg:    cfg,
		queue:  make(chan Entry, cfg.QueueCapacity),
		stopCh: make(chan struct{}),
	}
}

// AddSink registers a sink before Start is called.
func (d *Dispatcher) AddSink(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// Start launches the fan-out goroutine (which reads Log() submissions and
// re-publishes to each sink's own channel) plus one worker goroutine per
// registered sink. Safe to call once.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.RUnlock()

	d.perSink = make([]chan Entry, len(sinks))
	for i, sink := range sinks {
		ch := make(chan Entry, d.cfg.QueueCapacity)
		d.perSink[i] = ch
		d.wg.Add(1)
		go d.runSinkWorker(ctx, sink, ch)
	}

	d.wg.Add(1)
	go d.runFanOut(ctx)
}

func (d *Dispatcher) runFanOut(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case entry := <-d.queue:
			for _, ch := range d.perSink {
				select {
				case ch <- entry:
				default:
					// A single saturated sink channel never blocks delivery to
					// the others; the entry is dropped for that sink only.
					slog.Warn("audit sink channel saturated, dropping entry for this sink",
						"event_type", entry.EventType.String())
				}
			}
		}
	}
}

func (d *Dispatcher) runSinkWorker(ctx context.Context, sink Sink, ch chan Entry) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case entry := <-ch:
			if err := sink.Write(ctx, entry); err != nil {
				slog.Error("audit sink write failed", "sink", sink.Name(), "error", err)
			}
		}
	}
}

// Log submits an entry for dispatch. Non-blocking except under
// OverflowPolicy Block. Never returns an error —, Log is the
// producer's fire-and-forget API; delivery failures are a sink concern.
func (d *Dispatcher) Log(entry Entry) {
	switch d.cfg.Overflow {
	case Block:
		d.queue <- entry
	case DropOldest:
		select {
		case d.queue <- entry:
		default:
			select {
			case <-d.queue:
			default:
			}
			select {
			case d.queue <- entry:
			default:
			}
		}
	default: // DropNewest
		select {
		case d.queue <- entry:
		default:
			slog.Warn("audit queue full, dropping entry", "event_type", entry.EventType.String())
		}
	}
}

// Stop halts all worker goroutines and waits for them to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}
