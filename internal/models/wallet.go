package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds a user's accumulated revenue-split balance. One row per user;
// distribution upserts by user id.
type Wallet struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID        uint            `gorm:"uniqueIndex" json:"user_id"`
	Balance       decimal.Decimal `gorm:"type:decimal(15,2)" json:"balance"`
	TotalEarnings decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_earnings"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
