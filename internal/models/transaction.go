package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionStatus represents the lifecycle state of a payment
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusSuccess  TransactionStatus = "SUCCESS"
	TransactionStatusFailed   TransactionStatus = "FAILED"
	TransactionStatusRefunded TransactionStatus = "REFUNDED"
)

// TransactionType represents what the payment was for
type TransactionType string

const (
	TransactionTypeMembership TransactionType = "MEMBERSHIP"
	TransactionTypeCourse     TransactionType = "COURSE"
	TransactionTypeProduct    TransactionType = "PRODUCT"
	TransactionTypeSupplier   TransactionType = "SUPPLIER"
	TransactionTypeCommission TransactionType = "COMMISSION"
	TransactionTypeOther      TransactionType = "OTHER"
)

// Transaction is the unit of payment. It is created at checkout and mutated
// only by the gateway webhook or the reconciliation job. A transaction moves
// PENDING -> SUCCESS or PENDING -> FAILED exactly once.
type Transaction struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID uint              `gorm:"index" json:"user_id"`
	Type   TransactionType   `gorm:"type:varchar(20);index" json:"type"`
	Status TransactionStatus `gorm:"type:varchar(20);index" json:"status"`
	Amount decimal.Decimal   `gorm:"type:decimal(15,2)" json:"amount"`

	// ExternalID is our reference sent to the gateway at checkout,
	// Reference is the gateway's invoice ID used for status lookups.
	ExternalID *string `gorm:"type:varchar(255);index" json:"external_id"`
	Reference  *string `gorm:"type:varchar(255)" json:"reference"`

	PaymentMethod string `gorm:"type:varchar(100)" json:"payment_method"`
	CustomerName  string `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerEmail string `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerPhone string `gorm:"type:varchar(50)" json:"customer_phone"`
	Description   string `gorm:"type:text" json:"description"`

	// MembershipID / CourseID are optional direct foreign keys. Checkout may
	// leave them nil and carry the id in Metadata instead; the activators
	// backfill the column when they resolve from the metadata bag.
	MembershipID *uint `gorm:"index" json:"membership_id"`
	CourseID     *uint `gorm:"index" json:"course_id"`

	Metadata map[string]interface{} `gorm:"serializer:json" json:"metadata"`
	Notes    string                 `gorm:"type:text" json:"notes"`

	PaidAt    *time.Time `json:"paid_at"`
	ExpiredAt *time.Time `json:"expired_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
