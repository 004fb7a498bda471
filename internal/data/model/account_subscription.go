package model

import (
	"time"
)

// AccountSubscription 账户订阅表
type AccountSubscription struct {
	AccountID string    `gorm:"primaryKey;type:varchar(64)"`
	TierID    string    `gorm:"type:varchar(32);not null"`
	Status    string    `gorm:"type:enum('active','canceled');not null;default:'active';index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (AccountSubscription) TableName() string {
	return "account_subscription"
}
