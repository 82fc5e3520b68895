package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentGateway identifies which provider a payment event came from
type PaymentGateway string

const (
	PaymentGatewayXendit PaymentGateway = "xendit"
	PaymentGatewayManual PaymentGateway = "manual"
)

// WebhookEvent is an audit record of every raw gateway callback received,
// stored before any processing so failed deliveries can be replayed.
type WebhookEvent struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PaymentGateway PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	Event          string          `gorm:"type:varchar(100)" json:"event"`
	ExternalID     string          `gorm:"type:varchar(255);index" json:"external_id"`
	Payload        json.RawMessage `gorm:"type:jsonb" json:"payload"`
	Processed      bool            `gorm:"default:false" json:"processed"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}
