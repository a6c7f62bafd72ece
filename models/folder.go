package models

import "time"

type Folder struct {
	ID         string    `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	Name       string    `bson:"name" json:"name" gorm:"not null"`
	OrderIndex int       `bson:"order_index" json:"order_index" gorm:"not null;default:0;index"`
	IsDeleted  bool      `bson:"is_deleted" json:"is_deleted" gorm:"not null;default:false"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

func (Folder) TableName() string { return TableFolders }

// FolderWithPages is one node of the documentation tree.
type FolderWithPages struct {
	Folder Folder `json:"folder"`
	Pages  []Page `json:"pages"`
}
