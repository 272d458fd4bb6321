// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for activity logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// recordActivity appends an activity log row. It is fire-and-forget: a
// failure is logged and swallowed so it can never fail the business action
// that triggered it.
func recordActivity(ctx context.Context, repo repository.ActivityLogRepository, userID uint, action, resource string, resourceID uint, metadata *ClientMetadata, details map[string]any) {
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     action,
		Resource:   &resource,
		ResourceID: &resourceID,
	}
	if metadata != nil && metadata.IPAddress != "" {
		entry.IPAddress = &metadata.IPAddress
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Metadata = raw
		}
	}

	if err := repo.Save(ctx, entry); err != nil {
		log.Printf("[ActivityLog] Failed to record %s on %s/%d: %v", action, resource, resourceID, err)
	}
}
