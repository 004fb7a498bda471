package biz

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CreditPackage 积分包
type CreditPackage struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	Currency     string
	BaseCredits  int64
	BonusCredits int64
}

// TotalCredits 基础积分 + 赠送积分
func (p *CreditPackage) TotalCredits() int64 {
	return p.BaseCredits + p.BonusCredits
}

// SubscriptionTier 订阅档位
type SubscriptionTier struct {
	ID             string
	Name           string
	MonthlyCredits int64
}

// PurchaseOrder 积分包购买订单，订单ID即支付关联ID
type PurchaseOrder struct {
	ID            string
	AccountID     string
	PackageID     string
	Price         decimal.Decimal
	Currency      string
	Status        string
	PaymentID     string // 支付服务返回的支付流水号
	TransactionID string // 发放流水ID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseRepo 购买订单数据层接口（定义在 biz 层）
type PurchaseRepo interface {
	CreatePurchaseOrder(ctx context.Context, order *PurchaseOrder) error
	// GetPurchaseOrder 不存在时返回 ErrPurchaseNotFound
	GetPurchaseOrder(ctx context.Context, orderID string) (*PurchaseOrder, error)
	SetPaymentID(ctx context.Context, orderID, paymentID string) error
	// UpdatePurchaseOrderStatus 仅当当前状态属于 from 时更新，返回是否更新成功
	UpdatePurchaseOrderStatus(ctx context.Context, orderID string, from []string, to, paymentID, transactionID string) (bool, error)
}

// AccountSubscription 账户订阅
type AccountSubscription struct {
	AccountID string
	TierID    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriptionRepo 订阅数据层接口（定义在 biz 层）
type SubscriptionRepo interface {
	SaveSubscription(ctx context.Context, sub *AccountSubscription) error
	// GetSubscription 不存在时返回 (nil, nil)
	GetSubscription(ctx context.Context, accountID string) (*AccountSubscription, error)
	// ListActiveSubscriptions 按账户ID升序分页
	ListActiveSubscriptions(ctx context.Context, offset, limit int) ([]*AccountSubscription, error)
}

// PaymentClient 支付服务客户端接口
type PaymentClient interface {
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentReply, error)
}

// CreatePaymentRequest 创建支付请求
type CreatePaymentRequest struct {
	OrderID   string // 购买订单ID（作为支付服务的业务订单号）
	AccountID string
	Amount    decimal.Decimal
	Currency  string
	Subject   string
	ReturnURL string
	ClientIP  string
}

// CreatePaymentReply 创建支付响应
type CreatePaymentReply struct {
	PaymentID string
	PayURL    string
}

// PaymentConfirmation 支付服务的支付结果通知（回调或 MQ 消息）
type PaymentConfirmation struct {
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
}
