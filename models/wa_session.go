package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// WASessionStatus represents the persisted connectivity state of a merchant's
// WhatsApp session
type WASessionStatus string

const (
	WASessionStatusDisconnected WASessionStatus = "disconnected"
	WASessionStatusConnecting   WASessionStatus = "connecting"
	WASessionStatusConnected    WASessionStatus = "connected"
)

// String returns the string representation of the status
func (s WASessionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s WASessionStatus) Valid() bool {
	switch s {
	case WASessionStatusDisconnected, WASessionStatusConnecting, WASessionStatusConnected:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for WASessionStatus
func (s *WASessionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = WASessionStatus(v)
	case []byte:
		*s = WASessionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into WASessionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for WASessionStatus
func (s WASessionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid WASessionStatus: %s", s)
	}
	return string(s), nil
}

// WASession persists the WhatsApp connection state of one merchant account.
// The user id is unique: there is at most one session row, and at most one
// live connection, per account.
type WASession struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;uniqueIndex:uk_wa_sessions_user_id" json:"user_id"`
	User            *User           `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Status          WASessionStatus `gorm:"type:wa_session_status;not null;default:'disconnected';index:idx_wa_sessions_status" json:"status"`
	PhoneNumber     *string         `gorm:"size:20" json:"phone_number,omitempty"`
	LastConnectedAt *time.Time      `json:"last_connected_at,omitempty"`
	CreatedAt       time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (WASession) TableName() string {
	return "wa_sessions"
}

func (s *WASession) IsConnected() bool {
	return s.Status == WASessionStatusConnected
}

// WASessionFilter represents filter criteria for session queries
type WASessionFilter struct {
	ID     *uint
	UserID *uint
	Status *WASessionStatus
}
