package model

import (
	"time"
)

// CreditAccount 积分账户表
type CreditAccount struct {
	AccountID string    `gorm:"primaryKey;type:varchar(64)"`
	Balance   int64     `gorm:"not null;default:0"`
	Version   int64     `gorm:"not null;default:0"` // 乐观锁版本号，每追加一条流水 +1
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (CreditAccount) TableName() string {
	return "credit_account"
}
