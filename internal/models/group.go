package models

import "github.com/google/uuid"

type Group struct {
	BaseModel
	Name        string    `json:"name" gorm:"type:varchar(150);uniqueIndex;not null"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	CreatedByID uuid.UUID `json:"createdByID" gorm:"type:uuid;not null;index"`

	Members   []User     `json:"members,omitempty" gorm:"foreignKey:GroupID"`
	Documents []Document `json:"-" gorm:"foreignKey:GroupID"`
}
