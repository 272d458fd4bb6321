package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fibernode/backoffice/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WASessionRepositoryImpl implements WASessionRepository interface
type WASessionRepositoryImpl struct {
	*BaseRepository[models.WASession, models.WASessionFilter]
}

// NewWASessionRepository creates a new WhatsApp session repository
func NewWASessionRepository(db *gorm.DB) WASessionRepository {
	return &WASessionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WASession, models.WASessionFilter](db),
	}
}

// ByUserID retrieves the single session row of an account
func (r *WASessionRepositoryImpl) ByUserID(ctx context.Context, userID uint) (*models.WASession, error) {
	rows, err := r.ByFilter(ctx, models.WASessionFilter{UserID: &userID}, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find session by user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListConnected retrieves sessions whose persisted state is connected
func (r *WASessionRepositoryImpl) ListConnected(ctx context.Context) ([]*models.WASession, error) {
	status := models.WASessionStatusConnected
	return r.ByFilter(ctx, models.WASessionFilter{Status: &status}, "user_id ASC", 0, 0)
}

// UpsertStatus creates or updates the session row of an account. The
// uk_wa_sessions_user_id unique index is the conflict target, keeping the
// one-row-per-account invariant at the database level.
func (r *WASessionRepositoryImpl) UpsertStatus(ctx context.Context, userID uint, status models.WASessionStatus, phoneNumber *string, connectedAt *time.Time) error {
	db := r.getDB(ctx)

	now := time.Now().UTC()
	session := models.WASession{
		UserID:          userID,
		Status:          status,
		PhoneNumber:     phoneNumber,
		LastConnectedAt: connectedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	assignments := map[string]any{
		"status":     clause.Expr{SQL: "EXCLUDED.status"},
		"updated_at": clause.Expr{SQL: "EXCLUDED.updated_at"},
	}
	if phoneNumber != nil {
		assignments["phone_number"] = clause.Expr{SQL: "EXCLUDED.phone_number"}
	}
	if connectedAt != nil {
		assignments["last_connected_at"] = clause.Expr{SQL: "EXCLUDED.last_connected_at"}
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&session).Error
	if err != nil {
		return fmt.Errorf("failed to upsert session status: %w", err)
	}
	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *WASessionRepositoryImpl) applyFilter(query *gorm.DB, filter models.WASessionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// ByFilter retrieves sessions based on filter criteria
func (r *WASessionRepositoryImpl) ByFilter(ctx context.Context, filter models.WASessionFilter, orderBy string, limit, offset int) ([]*models.WASession, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.WASession{})

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

	var rows []*models.WASession
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of sessions matching filter
func (r *WASessionRepositoryImpl) Count(ctx context.Context, filter models.WASessionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.WASession{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any session matches the filter
func (r *WASessionRepositoryImpl) Exists(ctx context.Context, filter models.WASessionFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
