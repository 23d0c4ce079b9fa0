package models

import "github.com/google/uuid"

// Document metadata. The file number is only unique within its scope: the
// owning group when one is set, otherwise the uploader's own ungrouped
// documents. The two partial unique indexes are the authoritative guarantee;
// the service-level pre-check only exists for a clean conflict message.
type Document struct {
	BaseModel
	FileNumber    string     `json:"fileNumber" gorm:"type:varchar(150);not null;uniqueIndex:idx_documents_group_file_number,where:group_id IS NOT NULL;uniqueIndex:idx_documents_uploader_file_number,where:group_id IS NULL"`
	OriginalName  string     `json:"originalName" gorm:"type:varchar(255);not null"`
	StoredName    string     `json:"-" gorm:"type:varchar(255);not null"`
	RetrievalCode string     `json:"-" gorm:"type:varchar(8);not null"`
	StoragePath   string     `json:"-" gorm:"type:text;not null"`
	QRPath        string     `json:"-" gorm:"type:text;not null"`
	Size          int64      `json:"size" gorm:"not null;default:0"`
	GroupID       *uuid.UUID `json:"groupID,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_documents_group_file_number,where:group_id IS NOT NULL"`
	UploadedByID  uuid.UUID  `json:"uploadedByID" gorm:"type:uuid;not null;index;uniqueIndex:idx_documents_uploader_file_number,where:group_id IS NULL"`

	Group      *Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	UploadedBy User   `json:"uploadedBy,omitempty" gorm:"foreignKey:UploadedByID;references:ID"`
}

// PublicDocument is the shape returned to anonymous retrieval callers. It
// deliberately omits group and uploader identity.
type PublicDocument struct {
	ID           uuid.UUID `json:"id"`
	FileNumber   string    `json:"fileNumber"`
	OriginalName string    `json:"originalName"`
	UploadedAt   string    `json:"uploadedAt"`
	ViewURL      string    `json:"viewURL"`
}
