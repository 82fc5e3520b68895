package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserMembershipStatus represents the state of a granted membership
type UserMembershipStatus string

const (
	UserMembershipStatusActive  UserMembershipStatus = "ACTIVE"
	UserMembershipStatusExpired UserMembershipStatus = "EXPIRED"
)

// UserMembership is the entitlement created when a membership purchase is
// activated. At most one row exists per (user, transaction); re-activation
// flips the flags on the existing row instead of duplicating it. Expiry and
// renewal are handled by the membership lifecycle, not by activation.
type UserMembership struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID        uint  `gorm:"index;uniqueIndex:idx_user_memberships_user_transaction" json:"user_id"`
	MembershipID  uint  `gorm:"index" json:"membership_id"`
	TransactionID *uint `gorm:"uniqueIndex:idx_user_memberships_user_transaction" json:"transaction_id"`

	Status      UserMembershipStatus `gorm:"type:varchar(20);default:'ACTIVE'" json:"status"`
	IsActive    bool                 `gorm:"default:true" json:"is_active"`
	ActivatedAt *time.Time           `json:"activated_at"`
	StartDate   time.Time            `json:"start_date"`
	EndDate     time.Time            `json:"end_date"`
	Price       decimal.Decimal      `gorm:"type:decimal(15,2)" json:"price"`

	// Relationships
	User        User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Membership  Membership  `gorm:"foreignKey:MembershipID" json:"membership,omitempty"`
	Transaction Transaction `gorm:"foreignKey:TransactionID" json:"transaction,omitempty"`
}
