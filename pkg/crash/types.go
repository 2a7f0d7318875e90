// Package crash ingests and serves crash reports posted by weavers, agent
// runs, or out-of-core client tooling, plus the dead-man's-switch cron
// monitors that share the same "a worker tells us it's alive" telemetry
// shape. Crash reports are decoded from a Sentry-compatible event
// envelope — the wire shape most crash reporters already speak — but only
// the fields Loom's UI and API actually surface are persisted.
package crash

import "time"

// Event is a normalized, persisted crash report.
type Event struct {
	ID          string
	OrgID       string
	ProjectID   string
	Message     string
	Stacktrace  string
	Release     string
	Environment string
	Context     map[string]any
	ReceivedAt  time.Time
}

// ListFilter narrows Store.List to a release, when set.
type ListFilter struct {
	Release string
}

// MonitorStatus is the state of a cron dead-man's-switch.
type MonitorStatus string

const (
	MonitorOK         MonitorStatus = "ok"
	MonitorInProgress MonitorStatus = "in_progress"
	MonitorFailed     MonitorStatus = "failed"
	MonitorUnknown    MonitorStatus = "unknown"
)

// Monitor is a single dead-man's-switch job monitor.
type Monitor struct {
	ID                    string
	Key                   string
	OrgID                 string
	ExpectedPeriodSeconds int64
	GraceSeconds          int64
	LastPingAt            *time.Time
	Status                MonitorStatus
	CreatedAt             time.Time
}
