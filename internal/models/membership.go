package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MembershipDuration represents how long a membership tier lasts
type MembershipDuration string

const (
	MembershipDurationOneMonth     MembershipDuration = "ONE_MONTH"
	MembershipDurationThreeMonths  MembershipDuration = "THREE_MONTHS"
	MembershipDurationSixMonths    MembershipDuration = "SIX_MONTHS"
	MembershipDurationTwelveMonths MembershipDuration = "TWELVE_MONTHS"
	MembershipDurationLifetime     MembershipDuration = "LIFETIME"
)

// CommissionType determines how the affiliate commission rate is interpreted
type CommissionType string

const (
	CommissionTypePercentage CommissionType = "PERCENTAGE"
	CommissionTypeFlat       CommissionType = "FLAT"
)

// Membership represents a purchasable membership tier
type Membership struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name        string             `gorm:"type:varchar(255)" json:"name"`
	Description string             `gorm:"type:text" json:"description"`
	Price       decimal.Decimal    `gorm:"type:decimal(15,2)" json:"price"`
	Duration    MembershipDuration `gorm:"type:varchar(20)" json:"duration"`
	IsActive    bool               `gorm:"default:true" json:"is_active"`

	// Mailing-list sync configuration
	MailketingListID string `gorm:"type:varchar(100)" json:"mailketing_list_id"`
	AutoAddToList    bool   `gorm:"default:false" json:"auto_add_to_list"`

	// Affiliate commission configuration
	CommissionType          CommissionType  `gorm:"type:varchar(20);default:'PERCENTAGE'" json:"commission_type"`
	AffiliateCommissionRate decimal.Decimal `gorm:"type:decimal(15,2)" json:"affiliate_commission_rate"`

	// Relationships
	Groups   []MembershipGroup   `gorm:"foreignKey:MembershipID" json:"groups,omitempty"`
	Courses  []MembershipCourse  `gorm:"foreignKey:MembershipID" json:"courses,omitempty"`
	Products []MembershipProduct `gorm:"foreignKey:MembershipID" json:"products,omitempty"`
}

// ExpiryFrom returns the membership end date for an activation at the given
// time. Lifetime memberships are represented as ~100 years out.
func (m Membership) ExpiryFrom(start time.Time) time.Time {
	switch m.Duration {
	case MembershipDurationOneMonth:
		return start.AddDate(0, 1, 0)
	case MembershipDurationThreeMonths:
		return start.AddDate(0, 3, 0)
	case MembershipDurationSixMonths:
		return start.AddDate(0, 6, 0)
	case MembershipDurationTwelveMonths:
		return start.AddDate(1, 0, 0)
	case MembershipDurationLifetime:
		return start.AddDate(100, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// MembershipGroup links a membership tier to a group its members auto-join.
// Static configuration, read-only from the activation path.
type MembershipGroup struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	MembershipID uint      `gorm:"uniqueIndex:idx_membership_groups_membership_group" json:"membership_id"`
	GroupID      uint      `gorm:"uniqueIndex:idx_membership_groups_membership_group" json:"group_id"`
}

// MembershipCourse links a membership tier to a course its members are
// auto-enrolled into.
type MembershipCourse struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	MembershipID uint      `gorm:"uniqueIndex:idx_membership_courses_membership_course" json:"membership_id"`
	CourseID     uint      `gorm:"uniqueIndex:idx_membership_courses_membership_course" json:"course_id"`
}

// MembershipProduct links a membership tier to a product its members are
// auto-granted.
type MembershipProduct struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	MembershipID uint      `gorm:"uniqueIndex:idx_membership_products_membership_product" json:"membership_id"`
	ProductID    uint      `gorm:"uniqueIndex:idx_membership_products_membership_product" json:"product_id"`
}
