package model

import (
	"time"

	"gorm.io/datatypes"
)

// ArtifactVersion 生成内容版本表（只追加）
type ArtifactVersion struct {
	VersionID     string         `gorm:"primaryKey;type:varchar(36)"`
	RootID        string         `gorm:"type:varchar(36);not null;index:idx_root_created,priority:1"`
	ParentID      *string        `gorm:"type:varchar(36);index"`
	AccountID     string         `gorm:"type:varchar(64);not null;index"`
	CostTier      string         `gorm:"type:varchar(16)"`
	Revision      int            `gorm:"not null"`
	Options       datatypes.JSON `gorm:"type:json"`
	Payload       datatypes.JSON `gorm:"type:json;not null"`
	TransactionID string         `gorm:"type:varchar(36)"`
	Description   string         `gorm:"type:varchar(255)"`
	CreatedAt     time.Time      `gorm:"index:idx_root_created,priority:2"`
}

// TableName 指定表名
func (ArtifactVersion) TableName() string {
	return "artifact_version"
}
