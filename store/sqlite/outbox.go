package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/allocation-ledger/allocation"
)

// =============================================================================
// VENDOR OUTBOX (allocation.OutboxStore interface)
// =============================================================================

func (q *queries) EnqueueNotification(ctx context.Context, n allocation.VendorNotification) error {
	noticeJSON, err := json.Marshal(n.Notice)
	if err != nil {
		return fmt.Errorf("failed to encode notice: %w", err)
	}
	status := n.Status
	if status == "" {
		status = allocation.NotificationPending
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO vendor_notifications
		(id, root_id, notice_json, status, attempts, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Notice.RootID, string(noticeJSON), status, n.Attempts,
		formatTime(n.NextAttemptAt), n.LastError, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func (q *queries) PendingNotifications(ctx context.Context, now time.Time, limit int) ([]allocation.VendorNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.queryNotifications(ctx, notificationColumns+`
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`, allocation.NotificationPending, formatTime(now), limit)
}

// ListNotifications returns every outbox row of rootID, oldest first.
func (q *queries) ListNotifications(ctx context.Context, rootID string) ([]allocation.VendorNotification, error) {
	return q.queryNotifications(ctx, notificationColumns+`
		WHERE root_id = ?
		ORDER BY created_at ASC
	`, rootID)
}

const notificationColumns = `
	SELECT id, notice_json, status, attempts, next_attempt_at, last_error, created_at
	FROM vendor_notifications`

func (q *queries) queryNotifications(ctx context.Context, query string, args ...any) ([]allocation.VendorNotification, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	out := []allocation.VendorNotification{}
	for rows.Next() {
		var (
			n                      allocation.VendorNotification
			noticeJSON, status     string
			nextAttempt, createdAt string
		)
		if err := rows.Scan(&n.ID, &noticeJSON, &status, &n.Attempts, &nextAttempt, &n.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal([]byte(noticeJSON), &n.Notice); err != nil {
			return nil, fmt.Errorf("notification %s: bad notice: %w", n.ID, err)
		}
		n.Status = allocation.NotificationStatus(status)
		n.NextAttemptAt = parseTime(nextAttempt)
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q *queries) MarkNotificationSent(ctx context.Context, id string, at time.Time) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE vendor_notifications SET status = ?, sent_at = ?, attempts = attempts + 1 WHERE id = ?",
		allocation.NotificationSent, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (q *queries) MarkNotificationFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, dead bool) error {
	status := allocation.NotificationPending
	if dead {
		status = allocation.NotificationDead
	}
	_, err := q.q.ExecContext(ctx, `
		UPDATE vendor_notifications
		SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?
		WHERE id = ?
	`, status, attempts, formatTime(next), lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}
