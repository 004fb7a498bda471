package model

import (
	"time"
)

// WorkflowProgress 工作流进度表
type WorkflowProgress struct {
	AccountID      string    `gorm:"primaryKey;type:varchar(64)"`
	WorkflowID     string    `gorm:"primaryKey;type:varchar(64)"`
	CurrentStageID string    `gorm:"type:varchar(32)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (WorkflowProgress) TableName() string {
	return "workflow_progress"
}

// WorkflowStage 工作流阶段表
type WorkflowStage struct {
	AccountID   string `gorm:"primaryKey;type:varchar(64)"`
	WorkflowID  string `gorm:"primaryKey;type:varchar(64)"`
	StageID     string `gorm:"primaryKey;type:varchar(32)"`
	StageOrder  int    `gorm:"not null"`
	State       string `gorm:"type:enum('locked','available','in_progress','completed');not null;default:'locked'"`
	Budget      int64  `gorm:"not null;default:0"`
	Spent       int64  `gorm:"not null;default:0"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (WorkflowStage) TableName() string {
	return "workflow_stage"
}
