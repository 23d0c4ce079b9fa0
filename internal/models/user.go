package models

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleGroupAdmin UserRole = "group_admin"
	UserRoleUser       UserRole = "user"
)

func ValidUserRole(role UserRole) bool {
	switch role {
	case UserRoleAdmin, UserRoleGroupAdmin, UserRoleUser:
		return true
	default:
		return false
	}
}

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"type:text;not null"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	GroupID      *uuid.UUID `json:"groupID,omitempty" gorm:"type:uuid;index"`
	CreatedByID  *uuid.UUID `json:"createdByID,omitempty" gorm:"type:uuid"`
	// Bootstrap marks the seeded administrator. Exactly one row carries it;
	// that account can never be deleted or moved into a group.
	Bootstrap bool `json:"bootstrap" gorm:"not null;default:false"`

	Group     *Group     `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	Documents []Document `json:"-" gorm:"foreignKey:UploadedByID"`
}
