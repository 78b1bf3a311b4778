/*
notify.go - Telling the vendor about dispatched lineages

PURPOSE:
  Dispatch writes a VendorNotification row in the same transaction as the
  toVendor flip. Delivery happens afterwards: once right after commit, then
  by the scheduler for rows that failed, with exponential backoff until the
  row is marked dead.

NOTIFIERS:
  LogNotifier:     Logs the notice (no vendor endpoint configured)
  WebhookNotifier: POSTs the notice as JSON to the vendor's endpoint

SEE ALSO:
  - dispatch.go: Enqueues the row
  - api/scheduler.go: Periodic Flush
*/
package allocation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type Notifier interface {
	NotifyDispatch(ctx context.Context, notice DispatchNotice) error
}

// =============================================================================
// NOTIFIERS
// =============================================================================

type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) NotifyDispatch(_ context.Context, notice DispatchNotice) error {
	n.Logger.WithFields(logrus.Fields{
		"module":   "notify",
		"rootId":   notice.RootID,
		"item":     notice.Item,
		"quantity": notice.Quantity,
	}).Info("lineage dispatched to vendor")
	return nil
}

type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (n *WebhookNotifier) NotifyDispatch(ctx context.Context, notice DispatchNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("notify vendor: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify vendor: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// RETRY POLICY
// =============================================================================

type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, BaseBackoff: 5 * time.Second, MaxBackoff: 10 * time.Minute}
}

// Backoff is base * 2^(attempt-1), capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return p.BaseBackoff
	}
	delay := time.Duration(float64(p.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if delay > p.MaxBackoff || delay <= 0 {
		return p.MaxBackoff
	}
	return delay
}

// =============================================================================
// OUTBOX
// =============================================================================

type Outbox struct {
	Store    OutboxStore
	Notifier Notifier
	Retry    RetryPolicy
	Logger   *logrus.Logger
	Now      func() time.Time
}

func NewOutbox(store OutboxStore, notifier Notifier, logger *logrus.Logger) *Outbox {
	return &Outbox{Store: store, Notifier: notifier, Retry: DefaultRetryPolicy(), Logger: logger, Now: time.Now}
}

// Deliver makes one attempt and records its outcome on the row.
func (o *Outbox) Deliver(ctx context.Context, n VendorNotification) error {
	sendErr := o.Notifier.NotifyDispatch(ctx, n.Notice)
	now := o.Now().UTC()
	if sendErr == nil {
		return o.Store.MarkNotificationSent(ctx, n.ID, now)
	}

	attempts := n.Attempts + 1
	dead := attempts >= o.Retry.MaxAttempts
	next := now.Add(o.Retry.Backoff(attempts))

	o.Logger.WithFields(logrus.Fields{
		"module":   "outbox",
		"funcName": "Deliver",
		"rootId":   n.Notice.RootID,
		"attempts": attempts,
		"dead":     dead,
	}).WithError(sendErr).Warn("vendor notification failed")

	if err := o.Store.MarkNotificationFailed(ctx, n.ID, attempts, next, sendErr.Error(), dead); err != nil {
		return err
	}
	return sendErr
}

// Flush delivers every due row. Failures are recorded per row and do not
// stop the batch.
func (o *Outbox) Flush(ctx context.Context, limit int) (sent, failed int, err error) {
	due, err := o.Store.PendingNotifications(ctx, o.Now().UTC(), limit)
	if err != nil {
		return 0, 0, err
	}
	for _, n := range due {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		if derr := o.Deliver(ctx, n); derr != nil {
			failed++
			continue
		}
		sent++
	}
	return sent, failed, nil
}
