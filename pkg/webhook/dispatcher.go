package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/webhook"
	"github.com/codeready-toolchain/loom/ent/webhookdelivery"
	"github.com/codeready-toolchain/loom/internal/ids"
)

const deliveryTimeout = 30 * time.Second

// maxAttempts and the backoff schedule: base 30s, doubling each attempt,
// capped at 1h between attempts, giving up after 6 attempts.
const (
	maxAttempts = 6
	baseDelay   = 30 * time.Second
	maxDelay    = time.Hour
)

// Dispatcher matches domain events against registered webhooks and drives
// signed HTTP delivery with retry bookkeeping, grounded on
// pkg/runbook.GitHubClient's http.Client-with-timeout shape.
type Dispatcher struct {
	client     *ent.Client
	httpClient *http.Client
	serverBase string
}

// NewDispatcher builds a Dispatcher. serverBase is used to compose
// GitHubCompat clone/html URLs.
func NewDispatcher(client *ent.Client, serverBase string) *Dispatcher {
	return &Dispatcher{
		client:     client,
		httpClient: &http.Client{Timeout: deliveryTimeout},
		serverBase: serverBase,
	}
}

// Dispatch finds every enabled webhook subscribed to evt.Name for evt's
// owner and records one pending Delivery per match. A failure recording
// one delivery is returned alongside whatever deliveries were already
// created; callers log it rather than let it unwind the mutation that
// produced evt.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) ([]Delivery, error) {
	rows, err := d.client.Webhook.Query().
		Where(
			webhook.OwnerTypeEQ(webhook.OwnerType(evt.OwnerType)),
			webhook.OwnerID(evt.OwnerID),
			webhook.Enabled(true),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}

	var deliveries []Delivery
	for _, row := range rows {
		hook := fromEntWebhook(row)
		if !hook.Matches(evt.Name) {
			continue
		}
		payload := RenderPayload(hook.PayloadFormat, d.serverBase, evt)

		created, err := d.client.WebhookDelivery.Create().
			SetID(uuid.NewString()).
			SetWebhookID(hook.ID.String()).
			SetEvent(evt.Name).
			SetPayload(payload).
			SetStatus(webhookdelivery.StatusPending).
			Save(ctx)
		if err != nil {
			return deliveries, fmt.Errorf("record delivery: %w", err)
		}
		deliveries = append(deliveries, fromEntDelivery(created))
	}
	return deliveries, nil
}

// Attempt delivers one Delivery to its Webhook, signing the body and
// recording the outcome. On failure it schedules the next retry (or marks
// the delivery failed once attempts are exhausted).
func (d *Dispatcher) Attempt(ctx context.Context, deliveryID ids.DeliveryID) (Result, error) {
	deliveryRow, err := d.client.WebhookDelivery.Get(ctx, deliveryID.String())
	if err != nil {
		return Result{}, fmt.Errorf("load delivery: %w", err)
	}
	hookRow, err := d.client.Webhook.Get(ctx, deliveryRow.WebhookID)
	if err != nil {
		return Result{}, fmt.Errorf("load webhook: %w", err)
	}
	hook := fromEntWebhook(hookRow)

	body, err := json.Marshal(deliveryRow.Payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	result := d.send(ctx, hook, deliveryRow.Event, deliveryID, body)

	attempts := deliveryRow.Attempts + 1
	update := deliveryRow.Update().SetAttempts(attempts)
	now := time.Now().UTC()

	switch {
	case result.Success:
		update = update.
			SetStatus(webhookdelivery.StatusSuccess).
			SetDeliveredAt(now).
			SetLastStatusCode(result.StatusCode).
			ClearNextRetryAt()
	case attempts >= maxAttempts:
		update = update.
			SetStatus(webhookdelivery.StatusFailed).
			ClearNextRetryAt()
		if result.Err != nil {
			update = update.SetLastError(result.Err.Error())
		}
		if result.StatusCode != 0 {
			update = update.SetLastStatusCode(result.StatusCode)
		}
	default:
		next := now.Add(backoffDelay(attempts))
		update = update.
			SetStatus(webhookdelivery.StatusPending).
			SetNextRetryAt(next)
		if result.Err != nil {
			update = update.SetLastError(result.Err.Error())
		}
		if result.StatusCode != 0 {
			update = update.SetLastStatusCode(result.StatusCode)
		}
	}

	if _, err := update.Save(ctx); err != nil {
		return result, fmt.Errorf("update delivery: %w", err)
	}
	return result, nil
}

func (d *Dispatcher) send(ctx context.Context, hook Webhook, event string, deliveryID ids.DeliveryID, body []byte) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Loom-Event", event)
	req.Header.Set("X-Loom-Delivery", deliveryID.String())
	req.Header.Set("X-Loom-Signature-256", signBody(hook.Secret, body))
	req.Header.Set("User-Agent", "Loom-Webhook/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("deliver webhook: %w", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return Result{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
}

// signBody computes the X-Loom-Signature-256 header value, the same
// "sha256=<hex hmac>" shape verifyPaasWebhookSignature checks on the
// receiving side of a webhook.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// backoffDelay returns the wait before the given attempt number (1-based),
// doubling from baseDelay and capped at maxDelay.
func backoffDelay(attempt int) time.Duration {
	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

func fromEntWebhook(row *ent.Webhook) Webhook {
	return Webhook{
		ID:            ids.WebhookID(row.ID),
		OwnerType:     OwnerType(row.OwnerType),
		OwnerID:       row.OwnerID,
		URL:           row.URL,
		Secret:        row.Secret,
		PayloadFormat: PayloadFormat(row.PayloadFormat),
		Events:        row.Events,
		Enabled:       row.Enabled,
		CreatedAt:     row.CreatedAt,
	}
}

func fromEntDelivery(row *ent.WebhookDelivery) Delivery {
	return Delivery{
		ID:             ids.DeliveryID(row.ID),
		WebhookID:      ids.WebhookID(row.WebhookID),
		Event:          row.Event,
		Payload:        row.Payload,
		Attempts:       row.Attempts,
		NextRetryAt:    row.NextRetryAt,
		Status:         Status(row.Status),
		LastStatusCode: row.LastStatusCode,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		DeliveredAt:    row.DeliveredAt,
	}
}
