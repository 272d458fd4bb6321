package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fibernode/backoffice/models"
	"gorm.io/gorm"
)

// MessageQueueRepositoryImpl implements MessageQueueRepository interface
type MessageQueueRepositoryImpl struct {
	*BaseRepository[models.QueuedMessage, models.QueuedMessageFilter]
}

// NewMessageQueueRepository creates a new message queue repository
func NewMessageQueueRepository(db *gorm.DB) MessageQueueRepository {
	return &MessageQueueRepositoryImpl{
		BaseRepository: NewBaseRepository[models.QueuedMessage, models.QueuedMessageFilter](db),
	}
}

// ClaimNextPending atomically claims the next due pending message of a
// session. FOR UPDATE SKIP LOCKED makes concurrent claimers pick disjoint
// rows; the subselect orders by priority so urgent messages jump the line.
// Returns nil when nothing is claimable.
func (r *MessageQueueRepositoryImpl) ClaimNextPending(ctx context.Context, sessionID uint, now time.Time) (*models.QueuedMessage, error) {
	db := r.getDB(ctx)

	var claimed []models.QueuedMessage
	err := db.Raw(`
		UPDATE wa_message_queue
		SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM wa_message_queue
			WHERE session_id = ? AND status = ? AND scheduled_at <= ?
			ORDER BY priority DESC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		models.QueueStatusSending, now,
		sessionID, models.QueueStatusPending, now,
	).Scan(&claimed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending message: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return &claimed[0], nil
}

// MarkSent finalizes a claimed message as delivered
func (r *MessageQueueRepositoryImpl) MarkSent(ctx context.Context, messageID uint, sentAt time.Time) error {
	db := r.getDB(ctx)

	result := db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusSending).
		Updates(map[string]any{
			"status":     models.QueueStatusSent,
			"sent_at":    sentAt,
			"updated_at": sentAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark message sent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %d was not in sending state", messageID)
	}
	return nil
}

// MarkFailed finalizes a claimed message after its retries are exhausted. The
// failing attempt counts too, so a message with max_retries 3 lands on
// retry_count 3.
func (r *MessageQueueRepositoryImpl) MarkFailed(ctx context.Context, messageID uint, errorMessage string) error {
	db := r.getDB(ctx)

	result := db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusSending).
		Updates(map[string]any{
			"status":        models.QueueStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": errorMessage,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark message failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %d was not in sending state", messageID)
	}
	return nil
}

// RescheduleRetry returns a claimed message to pending with a bumped retry
// count and a postponed earliest-send time
func (r *MessageQueueRepositoryImpl) RescheduleRetry(ctx context.Context, messageID uint, retryCount int, nextAt time.Time, errorMessage string) error {
	db := r.getDB(ctx)

	result := db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusSending).
		Updates(map[string]any{
			"status":        models.QueueStatusPending,
			"retry_count":   retryCount,
			"scheduled_at":  nextAt,
			"error_message": errorMessage,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reschedule message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %d was not in sending state", messageID)
	}
	return nil
}

// CancelPending deletes a message iff it has not been picked up yet. Zero
// rows affected means the processor already claimed it.
func (r *MessageQueueRepositoryImpl) CancelPending(ctx context.Context, messageID uint) (int64, error) {
	db := r.getDB(ctx)

	result := db.Where("id = ? AND status = ?", messageID, models.QueueStatusPending).
		Delete(&models.QueuedMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel message: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ResetFailed moves a failed message back to pending for a fresh round of
// attempts. Zero rows affected means the message was not failed.
func (r *MessageQueueRepositoryImpl) ResetFailed(ctx context.Context, messageID uint, scheduledAt time.Time) (int64, error) {
	db := r.getDB(ctx)

	result := db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusFailed).
		Updates(map[string]any{
			"status":        models.QueueStatusPending,
			"retry_count":   0,
			"error_message": nil,
			"scheduled_at":  scheduledAt,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset message: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SessionIDsWithPending lists sessions that currently have claimable work
func (r *MessageQueueRepositoryImpl) SessionIDsWithPending(ctx context.Context, now time.Time) ([]uint, error) {
	db := r.getDB(ctx)

	var ids []uint
	err := db.Model(&models.QueuedMessage{}).
		Distinct("session_id").
		Where("session_id IS NOT NULL AND status = ? AND scheduled_at <= ?", models.QueueStatusPending, now).
		Order("session_id ASC").
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions with pending work: %w", err)
	}
	return ids, nil
}

// Stats aggregates queue entry counts by status. A nil sessionID aggregates
// across all sessions.
func (r *MessageQueueRepositoryImpl) Stats(ctx context.Context, sessionID *uint) (*models.QueueStats, error) {
	db := r.getDB(ctx)

	type row struct {
		Status models.QueueStatus
		Count  int64
	}
	var rows []row

	query := db.Model(&models.QueuedMessage{}).
		Select("status, COUNT(*) AS count").
		Group("status")
	if sessionID != nil {
		query = query.Where("session_id = ?", *sessionID)
	}

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate queue stats: %w", err)
	}

	stats := &models.QueueStats{}
	for _, r := range rows {
		switch r.Status {
		case models.QueueStatusPending:
			stats.Pending = r.Count
		case models.QueueStatusSending:
			stats.Sending = r.Count
		case models.QueueStatusSent:
			stats.Sent = r.Count
		case models.QueueStatusFailed:
			stats.Failed = r.Count
		}
		stats.Total += r.Count
	}
	return stats, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *MessageQueueRepositoryImpl) applyFilter(query *gorm.DB, filter models.QueuedMessageFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.SessionID != nil {
		query = query.Where("session_id = ?", *filter.SessionID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ScheduledBefore != nil {
		query = query.Where("scheduled_at <= ?", *filter.ScheduledBefore)
	}
	return query
}

// ByFilter retrieves queued messages based on filter criteria
func (r *MessageQueueRepositoryImpl) ByFilter(ctx context.Context, filter models.QueuedMessageFilter, orderBy string, limit, offset int) ([]*models.QueuedMessage, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.QueuedMessage{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.QueuedMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of queued messages matching filter
func (r *MessageQueueRepositoryImpl) Count(ctx context.Context, filter models.QueuedMessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.QueuedMessage{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any queued message matches the filter
func (r *MessageQueueRepositoryImpl) Exists(ctx context.Context, filter models.QueuedMessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
