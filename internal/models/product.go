package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a purchasable digital product
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name        string          `gorm:"type:varchar(255)" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`

	MailketingListID string `gorm:"type:varchar(100)" json:"mailketing_list_id"`
	AutoAddToList    bool   `gorm:"default:false" json:"auto_add_to_list"`

	CommissionType          CommissionType  `gorm:"type:varchar(20);default:'PERCENTAGE'" json:"commission_type"`
	AffiliateCommissionRate decimal.Decimal `gorm:"type:decimal(15,2)" json:"affiliate_commission_rate"`
}

// UserProduct is the entitlement granting a user access to a product,
// unique per (user, product). Price is zero when granted as part of a
// membership bundle.
type UserProduct struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID        uint            `gorm:"uniqueIndex:idx_user_products_user_product" json:"user_id"`
	ProductID     uint            `gorm:"uniqueIndex:idx_user_products_user_product" json:"product_id"`
	TransactionID *uint           `json:"transaction_id"`
	Price         decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	IsActive      bool            `gorm:"default:true" json:"is_active"`

	// Relationships
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}
