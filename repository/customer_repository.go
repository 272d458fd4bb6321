package repository

import (
	"context"
	"fmt"

	"github.com/fibernode/backoffice/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerRepositoryImpl implements CustomerRepository interface
type CustomerRepositoryImpl struct {
	*BaseRepository[models.Customer, models.CustomerFilter]
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &CustomerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Customer, models.CustomerFilter](db),
	}
}

// ByUUID retrieves a customer by UUID
func (r *CustomerRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Customer, error) {
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid customer UUID: %w", err)
	}
	rows, err := r.ByFilter(ctx, models.CustomerFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByPhone retrieves a customer of one merchant by phone number
func (r *CustomerRepositoryImpl) ByPhone(ctx context.Context, ownerID uint, phone string) (*models.Customer, error) {
	rows, err := r.ByFilter(ctx, models.CustomerFilter{OwnerID: &ownerID, Phone: &phone}, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find customer by phone: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByOwner retrieves a merchant's customers with pagination
func (r *CustomerRepositoryImpl) ListByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Customer, error) {
	db := r.getDB(ctx)

	var customers []*models.Customer
	query := db.Where("owner_id = ?", ownerID).
		Order("name ASC").
		Preload("Package")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to list customers by owner: %w", err)
	}
	return customers, nil
}

// ListBillableByBillingDay retrieves customers billed on the given day of
// month. Isolated customers are excluded; they keep their billing day but
// accrue no new invoices. A non-nil ownerID restricts to one merchant.
func (r *CustomerRepositoryImpl) ListBillableByBillingDay(ctx context.Context, day int, ownerID *uint) ([]*models.Customer, error) {
	db := r.getDB(ctx)

	query := db.Where("billing_day = ? AND status <> ?", day, models.CustomerStatusIsolated)
	if ownerID != nil {
		query = query.Where("owner_id = ?", *ownerID)
	}

	var customers []*models.Customer
	err := query.Order("owner_id ASC, id ASC").
		Preload("Package").
		Preload("Owner").
		Find(&customers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list customers by billing day: %w", err)
	}
	return customers, nil
}

// UpdateStatus transitions a customer's service status
func (r *CustomerRepositoryImpl) UpdateStatus(ctx context.Context, customerID uint, status models.CustomerStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid customer status: %s", status)
	}

	db := r.getDB(ctx)
	err := db.Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update customer status: %w", err)
	}
	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *CustomerRepositoryImpl) applyFilter(query *gorm.DB, filter models.CustomerFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.PackageID != nil {
		query = query.Where("package_id = ?", *filter.PackageID)
	}
	if filter.Phone != nil {
		query = query.Where("phone = ?", *filter.Phone)
	}
	if filter.BillingDay != nil {
		query = query.Where("billing_day = ?", *filter.BillingDay)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// ByFilter retrieves customers based on filter criteria
func (r *CustomerRepositoryImpl) ByFilter(ctx context.Context, filter models.CustomerFilter, orderBy string, limit, offset int) ([]*models.Customer, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Customer{})

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

	var rows []*models.Customer
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of customers matching filter
func (r *CustomerRepositoryImpl) Count(ctx context.Context, filter models.CustomerFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Customer{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any customer matches the filter
func (r *CustomerRepositoryImpl) Exists(ctx context.Context, filter models.CustomerFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
