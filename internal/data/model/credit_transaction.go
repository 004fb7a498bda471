package model

import (
	"time"
)

// CreditTransaction 积分流水表（只追加）
type CreditTransaction struct {
	TransactionID  string    `gorm:"primaryKey;type:varchar(36)"`
	Seq            uint64    `gorm:"autoIncrement;not null;uniqueIndex:uk_seq;index:idx_account_seq,priority:2"` // 写入顺序
	AccountID      string    `gorm:"type:varchar(64);not null;index:idx_account_created,priority:1;index:idx_account_seq,priority:1"`
	Type           string    `gorm:"type:enum('purchased','consumed','granted','bonus','refunded');not null"`
	Amount         int64     `gorm:"not null"` // 带符号：入账为正，消费为负
	BalanceAfter   int64     `gorm:"not null"`
	ServiceID      string    `gorm:"type:varchar(32)"`
	Complexity     string    `gorm:"type:varchar(16)"`
	Units          int       `gorm:"default:1"`
	WorkflowID     string    `gorm:"type:varchar(64)"`
	StageID        string    `gorm:"type:varchar(32)"`
	Description    string    `gorm:"type:varchar(255)"`
	IdempotencyKey *string   `gorm:"type:varchar(191);uniqueIndex"` // NULL 不参与唯一约束
	RelatedID      string    `gorm:"type:varchar(64);index"`
	CreatedAt      time.Time `gorm:"type:datetime(6);index:idx_account_created,priority:2"`
}

// TableName 指定表名
func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
