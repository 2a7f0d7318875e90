package crash

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	entcronmonitor "github.com/codeready-toolchain/loom/ent/cronmonitor"
	"github.com/codeready-toolchain/loom/internal/apperr"
)

// PingKind distinguishes the three ping shapes a monitored job can send.
type PingKind string

const (
	PingStart PingKind = "start"
	PingOK    PingKind = "ok"
	PingFail  PingKind = "fail"
)

// Monitors manages dead-man's-switch cron monitors: a job pings one
// periodically, and it is considered overdue once ExpectedPeriodSeconds +
// GraceSeconds have elapsed since the last ping - a periodic
// state-plus-staleness check, adapted here to a push-based model.
type Monitors struct {
	client *ent.Client
}

// NewMonitors constructs a Monitors store.
func NewMonitors(client *ent.Client) *Monitors {
	return &Monitors{client: client}
}

// Ensure creates the monitor if it doesn't exist yet, or returns the
// existing one unchanged otherwise - the register-on-first-ping idiom most
// dead-man's-switch services use so callers never need a separate
// provisioning step.
func (m *Monitors) Ensure(ctx context.Context, orgID, key string, expectedPeriod, grace time.Duration) (Monitor, error) {
	existing, err := m.client.CronMonitor.Query().
		Where(entcronmonitor.OrgID(orgID), entcronmonitor.Key(key)).
		Only(ctx)
	if err == nil {
		return fromEntCronMonitor(existing), nil
	}
	if !ent.IsNotFound(err) {
		return Monitor{}, fmt.Errorf("crash: query monitor: %w", err)
	}

	row, err := m.client.CronMonitor.Create().
		SetID(uuid.NewString()).
		SetOrgID(orgID).
		SetKey(key).
		SetExpectedPeriodSeconds(int64(expectedPeriod.Seconds())).
		SetGraceSeconds(int64(grace.Seconds())).
		SetStatus(entcronmonitor.StatusUnknown).
		Save(ctx)
	if err != nil {
		return Monitor{}, fmt.Errorf("crash: create monitor: %w", err)
	}
	return fromEntCronMonitor(row), nil
}

// Ping records a heartbeat: PingStart marks in_progress, PingOK marks ok,
// PingFail marks failed.
func (m *Monitors) Ping(ctx context.Context, orgID, key string, kind PingKind) (Monitor, error) {
	row, err := m.client.CronMonitor.Query().
		Where(entcronmonitor.OrgID(orgID), entcronmonitor.Key(key)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return Monitor{}, apperr.NotFound(fmt.Sprintf("cron monitor %s not found", key))
	}
	if err != nil {
		return Monitor{}, fmt.Errorf("crash: query monitor: %w", err)
	}

	status := entcronmonitor.StatusOk
	switch kind {
	case PingStart:
		status = entcronmonitor.StatusInProgress
	case PingFail:
		status = entcronmonitor.StatusFailed
	}

	updated, err := row.Update().
		SetStatus(status).
		SetLastPingAt(time.Now()).
		Save(ctx)
	if err != nil {
		return Monitor{}, fmt.Errorf("crash: ping monitor: %w", err)
	}
	return fromEntCronMonitor(updated), nil
}

// List returns every monitor for an org, flagging ones that have gone
// silent past their expected period plus grace as failed without waiting
// for a missed-ping sweep to mark them.
func (m *Monitors) List(ctx context.Context, orgID string) ([]Monitor, error) {
	rows, err := m.client.CronMonitor.Query().
		Where(entcronmonitor.OrgID(orgID)).
		Order(ent.Asc(entcronmonitor.FieldKey)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("crash: list monitors: %w", err)
	}
	out := make([]Monitor, len(rows))
	for i, row := range rows {
		monitor := fromEntCronMonitor(row)
		if monitor.isOverdue() {
			monitor.Status = MonitorFailed
		}
		out[i] = monitor
	}
	return out, nil
}

func (m Monitor) isOverdue() bool {
	if m.LastPingAt == nil || m.Status == MonitorFailed {
		return false
	}
	deadline := m.LastPingAt.Add(time.Duration(m.ExpectedPeriodSeconds+m.GraceSeconds) * time.Second)
	return time.Now().After(deadline)
}

func fromEntCronMonitor(row *ent.CronMonitor) Monitor {
	return Monitor{
		ID:                    row.ID,
		Key:                   row.Key,
		OrgID:                 row.OrgID,
		ExpectedPeriodSeconds: row.ExpectedPeriodSeconds,
		GraceSeconds:          row.GraceSeconds,
		LastPingAt:            row.LastPingAt,
		Status:                MonitorStatus(row.Status),
		CreatedAt:             row.CreatedAt,
	}
}
