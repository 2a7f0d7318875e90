package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/webhookdelivery"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// RetrySweeper periodically retries every pending Delivery whose
// next_retry_at has elapsed ("pending deliveries are picked up by
// a worker that refreshes next_retry_at"). Grounded on the same
// robfig/cron idiom as pkg/weaver.CleanupScheduler and pkg/audit's
// RetentionScheduler.
type RetrySweeper struct {
	dispatcher   *Dispatcher
	client       *ent.Client
	intervalSecs int
	cron         *cron.Cron
}

// NewRetrySweeper builds a sweeper driving dispatcher's Attempt over
// client's pending deliveries.
func NewRetrySweeper(dispatcher *Dispatcher, client *ent.Client, intervalSecs int) *RetrySweeper {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &RetrySweeper{dispatcher: dispatcher, client: client, intervalSecs: intervalSecs}
}

// Start begins the periodic retry sweep.
func (s *RetrySweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %ds", s.intervalSecs)
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.sweep(ctx); err != nil {
			slog.Error("webhook retry sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the sweeper, waiting for any in-flight sweep.
func (s *RetrySweeper) Stop() {
	if s.cron != nil {
		c := s.cron.Stop()
		<-c.Done()
	}
}

func (s *RetrySweeper) sweep(ctx context.Context) error {
	now := time.Now().UTC()
	rows, err := s.client.WebhookDelivery.Query().
		Where(
			webhookdelivery.StatusEQ(webhookdelivery.StatusPending),
			webhookdelivery.NextRetryAtLTE(now),
		).
		All(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := s.dispatcher.Attempt(ctx, ids.DeliveryID(row.ID)); err != nil {
			slog.Error("webhook delivery attempt failed", "delivery_id", row.ID, "error", err)
		}
	}
	return nil
}
