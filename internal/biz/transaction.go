package biz

import (
	"context"
	"time"
)

// TransactionType 流水类型
type TransactionType string

const (
	TxPurchased TransactionType = "purchased" // 购买积分包
	TxConsumed  TransactionType = "consumed"  // 消费
	TxGranted   TransactionType = "granted"   // 订阅发放
	TxBonus     TransactionType = "bonus"     // 赠送
	TxRefunded  TransactionType = "refunded"  // 退款
)

// IsCredit 是否为入账类型
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxPurchased, TxGranted, TxBonus, TxRefunded:
		return true
	}
	return false
}

// Valid 是否为已知类型
func (t TransactionType) Valid() bool {
	return t == TxConsumed || t.IsCredit()
}

// Account 积分账户
type Account struct {
	ID        string
	Balance   int64
	Version   int64 // 每次写入流水 +1，0 表示账户尚不存在
	UpdatedAt time.Time
}

// Transaction 积分流水（不可变）
// Amount 带符号：入账为正，消费为负
type Transaction struct {
	ID             string
	AccountID      string
	Type           TransactionType
	Amount         int64
	BalanceAfter   int64
	ServiceID      ServiceID
	Complexity     ComplexityTier
	Units          int
	WorkflowID     string
	StageID        string
	Description    string
	IdempotencyKey string
	RelatedID      string // 关联对象：购买订单ID / 被退款的流水ID
	CreatedAt      time.Time
}

// TxMeta 写入流水时的附加信息
type TxMeta struct {
	ServiceID      ServiceID
	Complexity     ComplexityTier
	Units          int
	WorkflowID     string
	StageID        string
	Description    string
	IdempotencyKey string
	RelatedID      string
}

// LedgerRepo 账本数据层接口（定义在 biz 层）
//
// AppendTransaction 是唯一的写入入口：以 expected 的版本号做比较并交换，
// 在同一个存储事务中写入新余额和流水。余额将变为负数时返回 ErrInsufficientFunds，
// 版本不一致时返回 ErrVersionConflict，幂等键重复时返回 ErrDuplicateGrant。
type LedgerRepo interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetBalance(ctx context.Context, accountID string) (int64, error)
	AppendTransaction(ctx context.Context, expected *Account, tx *Transaction) (*Account, error)
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error)
	SumTransactions(ctx context.Context, accountID string) (int64, error)
}

// Locker 按 key 互斥（账户、工作流）
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
