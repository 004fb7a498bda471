package model

import (
	"credit-service/internal/constants"
	"time"

	"github.com/shopspring/decimal"
)

// 购买订单状态常量（引用 constants 包中的常量，保持一致性）
const (
	PurchaseStatusPending  = constants.OrderStatusPending  // 待支付
	PurchaseStatusSuccess  = constants.OrderStatusSuccess  // 支付成功并已发放
	PurchaseStatusFailed   = constants.OrderStatusFailed   // 支付失败
	PurchaseStatusCanceled = constants.OrderStatusCanceled // 已取消
)

// PurchaseOrder 积分包购买订单表（用于幂等性保证）
type PurchaseOrder struct {
	OrderID       string          `gorm:"primaryKey;type:varchar(64)"`
	AccountID     string          `gorm:"type:varchar(64);not null;index"`
	PackageID     string          `gorm:"type:varchar(32);not null"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Currency      string          `gorm:"type:varchar(8);not null"`
	PaymentID     string          `gorm:"type:varchar(64);index"` // 支付服务的支付流水号
	TransactionID string          `gorm:"type:varchar(36)"`
	Status        string          `gorm:"type:enum('pending','success','failed','canceled');not null;default:'pending'"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PurchaseOrder) TableName() string {
	return "purchase_order"
}
