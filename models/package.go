package models

import (
	"time"

	"github.com/google/uuid"
)

// Package represents an internet service plan a customer subscribes to
type Package struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_packages_uuid" json:"uuid"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Speed       string    `gorm:"size:50;not null" json:"speed"`
	Price       int64     `gorm:"not null" json:"price"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	IsActive    *bool     `gorm:"default:true;index:idx_packages_is_active" json:"is_active"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Package) TableName() string {
	return "packages"
}

// PackageFilter represents filter criteria for package queries
type PackageFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	Name     *string
	IsActive *bool
}
