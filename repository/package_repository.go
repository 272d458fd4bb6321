package repository

import (
	"context"
	"fmt"

	"github.com/fibernode/backoffice/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PackageRepositoryImpl implements PackageRepository interface
type PackageRepositoryImpl struct {
	*BaseRepository[models.Package, models.PackageFilter]
}

// NewPackageRepository creates a new package repository
func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &PackageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Package, models.PackageFilter](db),
	}
}

// ByUUID retrieves a package by UUID
func (r *PackageRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Package, error) {
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid package UUID: %w", err)
	}
	rows, err := r.ByFilter(ctx, models.PackageFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListActive retrieves all active packages
func (r *PackageRepositoryImpl) ListActive(ctx context.Context) ([]*models.Package, error) {
	active := true
	return r.ByFilter(ctx, models.PackageFilter{IsActive: &active}, "price ASC", 0, 0)
}

// applyFilter applies filter criteria to a GORM query
func (r *PackageRepositoryImpl) applyFilter(query *gorm.DB, filter models.PackageFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

// ByFilter retrieves packages based on filter criteria
func (r *PackageRepositoryImpl) ByFilter(ctx context.Context, filter models.PackageFilter, orderBy string, limit, offset int) ([]*models.Package, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Package{})

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

	var rows []*models.Package
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of packages matching filter
func (r *PackageRepositoryImpl) Count(ctx context.Context, filter models.PackageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Package{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any package matches the filter
func (r *PackageRepositoryImpl) Exists(ctx context.Context, filter models.PackageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
