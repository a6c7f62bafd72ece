package models

import "time"

type Page struct {
	ID         string    `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	FolderID   string    `bson:"folder_id" json:"folder_id" gorm:"type:text;not null;index"`
	Title      string    `bson:"title" json:"title" gorm:"not null"`
	Content    string    `bson:"content" json:"content" gorm:"type:text;not null;default:''"`
	OrderIndex int       `bson:"order_index" json:"order_index" gorm:"not null;default:0"`
	IsDeleted  bool      `bson:"is_deleted" json:"is_deleted" gorm:"not null;default:false"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

func (Page) TableName() string { return TablePages }
