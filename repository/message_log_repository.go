package repository

import (
	"context"
	"fmt"

	"github.com/fibernode/backoffice/models"
	"gorm.io/gorm"
)

// MessageLogRepositoryImpl implements MessageLogRepository interface
type MessageLogRepositoryImpl struct {
	*BaseRepository[models.MessageLog, models.MessageLogFilter]
}

// NewMessageLogRepository creates a new message log repository
func NewMessageLogRepository(db *gorm.DB) MessageLogRepository {
	return &MessageLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageLog, models.MessageLogFilter](db),
	}
}

// ListBySession retrieves the send history of one session with pagination
func (r *MessageLogRepositoryImpl) ListBySession(ctx context.Context, sessionID uint, limit, offset int) ([]*models.MessageLog, error) {
	db := r.getDB(ctx)

	var logs []*models.MessageLog
	query := db.Where("session_id = ?", sessionID).
		Order("sent_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list message logs by session: %w", err)
	}
	return logs, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *MessageLogRepositoryImpl) applyFilter(query *gorm.DB, filter models.MessageLogFilter) *gorm.DB {
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
	return query
}

// ByFilter retrieves message logs based on filter criteria
func (r *MessageLogRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageLogFilter, orderBy string, limit, offset int) ([]*models.MessageLog, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.MessageLog{})

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

	var rows []*models.MessageLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of message logs matching filter
func (r *MessageLogRepositoryImpl) Count(ctx context.Context, filter models.MessageLogFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.MessageLog{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any message log matches the filter
func (r *MessageLogRepositoryImpl) Exists(ctx context.Context, filter models.MessageLogFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
