package models

import (
	"encoding/json"
	"time"
)

// Activity action constants
const (
	ActivityActionInvoicePaid      = "invoices.pay"
	ActivityActionInvoiceUnpaid    = "invoices.unpay"
	ActivityActionInvoiceGenerated = "invoices.generate"
	ActivityActionWAConnected      = "wa.connect"
	ActivityActionWADisconnected   = "wa.disconnect"
)

// ActivityLog is the append-only sink for human-auditable actions.
// Writing it is fire-and-forget from the core's perspective.
type ActivityLog struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     *uint           `gorm:"index:idx_activity_user_id" json:"user_id,omitempty"`
	User       *User           `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Action     string          `gorm:"size:100;not null;index:idx_activity_action" json:"action"`
	Resource   *string         `gorm:"size:100" json:"resource,omitempty"`
	ResourceID *uint           `json:"resource_id,omitempty"`
	Metadata   json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress  *string         `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt  time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_activity_created_at" json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

// ActivityLogFilter represents filter criteria for activity log queries
type ActivityLogFilter struct {
	ID       *uint
	UserID   *uint
	Action   *string
	Resource *string
}
