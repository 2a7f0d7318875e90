package audit

import "context"

// Sink persists or forwards audit entries. Implementations must not block
// the dispatcher for long — a slow sink only delays its own delivery
// order, never another sink's.
type Sink interface {
	// Name identifies the sink for logging/metrics.
	Name() string
	// Write persists a single entry. Errors are logged by the dispatcher
	// and do not stop the sink's worker loop.
	Write(ctx context.Context, entry Entry) error
}

// FilterConfig selects which severities and event types a sink receives.
// Filtering happens at the sink, not at the producer, so
// different sinks can retain different slices of the same event stream.
type FilterConfig struct {
	// MinSeverity: only entries at least this severe are kept. Zero value
	// (SeverityDebug's numeric complement, i.e. unset) keeps everything —
	// use MinSeverity = SeverityDebug explicitly to mean "keep all".
	MinSeverity Severity
	// EventTypes, if non-empty, is an allow-list; entries whose EventType
	// is not in this set are dropped. Empty means "allow all types".
	EventTypes map[EventType]bool
}

// Allows reports whether entry passes this filter: it must be at least as
// severe as MinSeverity (lower numeric code) and, if an EventTypes
// allow-list is configured, be one of the listed types.
func (f FilterConfig) Allows(entry Entry) bool {
	if f.MinSeverity != 0 && f.MinSeverity.Less(entry.Severity) {
		// MinSeverity is strictly more severe than entry -> entry falls below the floor.
		return false
	}
	if len(f.EventTypes) > 0 && !f.EventTypes[entry.EventType] {
		return false
	}
	return true
}

// filteringSink wraps a Sink with a FilterConfig, applied before Write is called.
type filteringSink struct {
	Sink
	filter FilterConfig
}

func (f *filteringSink) Write(ctx context.Context, entry Entry) error {
	if !f.filter.Allows(entry) {
		return nil
	}
	return f.Sink.Write(ctx, entry)
}

// WithFilter wraps a sink so only entries passing filter reach it.
func WithFilter(sink Sink, filter FilterConfig) Sink {
	return &filteringSink{Sink: sink, filter: filter}
}
