package audit

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// RetentionScheduler periodically sweeps the SQLite sink for rows past the
// configured retention window, driven by robfig/cron rather than a
// hand-rolled ticker. The schedule is a fixed cron expression (daily at
// 03:17, see Start); it is not read from config.
type RetentionScheduler struct {
	sink          *SQLiteSink
	retentionDays int
	onAuditLogged func(Entry)

	cron *cron.Cron
}

// NewRetentionScheduler builds a scheduler for sink. onAuditLogged, if
// non-nil, is invoked with an EventAuditRetentionSwept entry after each
// sweep so the sweep itself is itself auditable.
func NewRetentionScheduler(sink *SQLiteSink, retentionDays int, onAuditLogged func(Entry)) *RetentionScheduler {
	if retentionDays <= 0 {
		retentionDays = DefaultAuditRetentionDays
	}
	return &RetentionScheduler{sink: sink, retentionDays: retentionDays, onAuditLogged: onAuditLogged}
}

// Start schedules the sweep to run once a day at 03:17 (an off-peak minute,
// avoiding the top-of-hour stampede common to naive cron schedules).
func (r *RetentionScheduler) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc("17 3 * * *", func() {
		deleted, err := r.sink.SweepRetention(ctx, r.retentionDays)
		if err != nil {
			slog.Error("audit retention sweep failed", "error", err)
			return
		}
		slog.Info("audit retention sweep complete", "deleted", deleted, "retention_days", r.retentionDays)
		if r.onAuditLogged != nil {
			r.onAuditLogged(NewEntry(EventAuditRetentionSwept).
				Details(map[string]any{"deleted": deleted, "retention_days": r.retentionDays}).
				Build())
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (r *RetentionScheduler) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}
