// Package models contains domain entities and business models for the billing back office
package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	UserRoleSuperadmin = "superadmin"
	UserRoleMitra      = "mitra"
)

// User represents a merchant account (reseller) or the platform superadmin
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_users_uuid" json:"uuid"`
	Username     string    `gorm:"size:100;not null;uniqueIndex:uk_users_username" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"` // Never serialize password hash
	Name         string    `gorm:"size:255;not null" json:"name"`
	Role         string    `gorm:"type:user_role;not null;index:idx_users_role" json:"role"`
	Phone        *string   `gorm:"size:20" json:"phone,omitempty"`
	BusinessName string    `gorm:"size:255;not null;uniqueIndex:uk_users_business_name" json:"business_name"`

	// Bank details rendered into reminder/receipt messages
	BankName    *string `gorm:"size:100" json:"bank_name,omitempty"`
	BankAccount *string `gorm:"size:50" json:"bank_account,omitempty"`
	BankHolder  *string `gorm:"size:255" json:"bank_holder,omitempty"`

	IsActive    *bool      `gorm:"default:true;index:idx_users_is_active" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Customers []Customer `gorm:"foreignKey:OwnerID" json:"-"`
	Invoices  []Invoice  `gorm:"foreignKey:OwnerID" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsSuperadmin() bool {
	return u.Role == UserRoleSuperadmin
}

// UserFilter represents filter criteria for user queries
type UserFilter struct {
	ID           *uint
	UUID         *uuid.UUID
	Username     *string
	Role         *string
	BusinessName *string
	IsActive     *bool
}
