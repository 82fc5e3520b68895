package models

import (
	"time"

	"gorm.io/gorm"
)

// UserType represents the type of user
type UserType string

const (
	UserTypeAdmin     UserType = "Admin"
	UserTypeMember    UserType = "Member"
	UserTypeAffiliate UserType = "Affiliate"
)

// User represents a user in the system
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string   `gorm:"type:varchar(255)" json:"name"`
	Phone    string   `gorm:"type:varchar(50)" json:"phone"`
	Email    string   `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	UserType UserType `gorm:"type:varchar(20);default:'Member'" json:"user_type"`

	// Revenue-split roles
	IsFounder   bool `gorm:"default:false" json:"is_founder"`
	IsCoFounder bool `gorm:"default:false" json:"is_co_founder"`

	// Denormalized mailing-list ids the user has been synced to, appended by
	// the activators only when absent.
	MailketingLists []string `gorm:"serializer:json" json:"mailketing_lists"`

	// Relationships
	Transactions []Transaction    `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
	Memberships  []UserMembership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// HasMailketingList reports whether the user is already tracked as synced to
// the given mailing list.
func (u User) HasMailketingList(listID string) bool {
	for _, id := range u.MailketingLists {
		if id == listID {
			return true
		}
	}
	return false
}
