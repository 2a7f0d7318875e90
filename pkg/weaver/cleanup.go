package weaver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CleanupScheduler drives Provisioner.Cleanup on a fixed interval, per
// 's cleanup_interval_secs. Grounded on Aureuma-si's
// silexa/agents/manager scheduling idiom, same as pkg/audit's
// RetentionScheduler.
type CleanupScheduler struct {
	provisioner *Provisioner
	intervalSecs int
	cron        *cron.Cron
}

// NewCleanupScheduler builds a scheduler for provisioner.
func NewCleanupScheduler(provisioner *Provisioner, intervalSecs int) *CleanupScheduler {
	if intervalSecs <= 0 {
		intervalSecs = 300
	}
	return &CleanupScheduler{provisioner: provisioner, intervalSecs: intervalSecs}
}

// Start begins the periodic cleanup sweep.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %ds", s.intervalSecs)
	_, err := s.cron.AddFunc(spec, func() {
		result, err := s.provisioner.Cleanup(ctx)
		if err != nil {
			slog.Error("weaver cleanup sweep failed", "error", err)
			return
		}
		if result.Count > 0 {
			slog.Info("weaver cleanup sweep reclaimed expired weavers", "count", result.Count)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep.
func (s *CleanupScheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}
