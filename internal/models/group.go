package models

import (
	"time"

	"gorm.io/gorm"
)

// GroupMemberRole represents a member's role inside a community group
type GroupMemberRole string

const (
	GroupMemberRoleMember GroupMemberRole = "MEMBER"
	GroupMemberRoleAdmin  GroupMemberRole = "ADMIN"
)

// Group represents a community group users can join
type Group struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name        string `gorm:"type:varchar(255)" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

// GroupMember records a user's membership in a group, unique per
// (group, user). Cascades from overlapping membership tiers are harmless.
type GroupMember struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	GroupID uint            `gorm:"uniqueIndex:idx_group_members_group_user" json:"group_id"`
	UserID  uint            `gorm:"uniqueIndex:idx_group_members_group_user" json:"user_id"`
	Role    GroupMemberRole `gorm:"type:varchar(20);default:'MEMBER'" json:"role"`

	// Relationships
	Group Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
