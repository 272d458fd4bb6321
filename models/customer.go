package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CustomerStatus represents the service status of a customer
type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusIsolated CustomerStatus = "isolated"
	CustomerStatusInactive CustomerStatus = "inactive"
)

// String returns the string representation of the status
func (s CustomerStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerStatusActive, CustomerStatusIsolated, CustomerStatusInactive:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CustomerStatus
func (s *CustomerStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CustomerStatus(v)
	case []byte:
		*s = CustomerStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CustomerStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CustomerStatus
func (s CustomerStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CustomerStatus: %s", s)
	}
	return string(s), nil
}

// Customer represents a subscriber billed monthly by a merchant
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_customers_uuid" json:"uuid"`
	OwnerID   uint      `gorm:"not null;index:idx_customers_owner_id" json:"owner_id"`
	Owner     *User     `gorm:"foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	PackageID uint      `gorm:"not null;index:idx_customers_package_id" json:"package_id"`
	Package   *Package  `gorm:"foreignKey:PackageID;references:ID" json:"package,omitempty"`

	Name    string  `gorm:"size:255;not null" json:"name"`
	Phone   string  `gorm:"size:20;not null;index:idx_customers_phone" json:"phone"`
	NIK     *string `gorm:"size:20" json:"nik,omitempty"`
	Address *string `gorm:"type:text" json:"address,omitempty"`

	// BillingDay is the calendar day-of-month the customer is billed on
	BillingDay   int            `gorm:"not null;index:idx_customers_billing_day" json:"billing_day"`
	Discount     int64          `gorm:"not null;default:0" json:"discount"`
	TotalBill    int64          `gorm:"not null" json:"total_bill"`
	Status       CustomerStatus `gorm:"type:customer_status;not null;default:'active';index:idx_customers_status" json:"status"`
	RegisterDate time.Time      `gorm:"type:date;not null" json:"register_date"`
	Notes        *string        `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Invoices []Invoice `gorm:"foreignKey:CustomerID" json:"-"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) IsBillable() bool {
	return c.Status != CustomerStatusIsolated
}

// CustomerFilter represents filter criteria for customer queries
type CustomerFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	OwnerID    *uint
	PackageID  *uint
	Phone      *string
	BillingDay *int
	Status     *CustomerStatus
}
