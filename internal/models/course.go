package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course represents a purchasable course
type Course struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Title       string          `gorm:"type:varchar(255)" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`

	MailketingListID string `gorm:"type:varchar(100)" json:"mailketing_list_id"`
	AutoAddToList    bool   `gorm:"default:false" json:"auto_add_to_list"`

	CommissionType          CommissionType  `gorm:"type:varchar(20);default:'PERCENTAGE'" json:"commission_type"`
	AffiliateCommissionRate decimal.Decimal `gorm:"type:decimal(15,2)" json:"affiliate_commission_rate"`
}

// CourseEnrollment is the entitlement granting a user access to a course.
// Unique per (user, course): buying a course twice, or a cascade overlapping
// a direct purchase, never creates a second row.
type CourseEnrollment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID        uint  `gorm:"uniqueIndex:idx_course_enrollments_user_course" json:"user_id"`
	CourseID      uint  `gorm:"uniqueIndex:idx_course_enrollments_user_course" json:"course_id"`
	TransactionID *uint `json:"transaction_id"`
	Progress      int   `gorm:"default:0" json:"progress"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
