package biz

import (
	"context"
	"sync"
	"time"

	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// BalanceChangedEvent 余额变动事件
type BalanceChangedEvent struct {
	AccountID     string          `json:"account_id"`
	NewBalance    int64           `json:"new_balance"`
	Delta         int64           `json:"delta"`
	Reason        TransactionType `json:"reason"`
	TransactionID string          `json:"transaction_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// EventPublisher 事件投递（RocketMQ 等外部通道）
type EventPublisher interface {
	PublishBalanceChanged(ctx context.Context, event *BalanceChangedEvent) error
}

// BalanceListener 进程内订阅者
type BalanceListener func(ctx context.Context, event *BalanceChangedEvent)

// Notifier 在账本提交后分发余额变动事件。
// 投递失败只记录日志，不影响已提交的变更。
type Notifier struct {
	publisher EventPublisher
	conf      *BillingConfig
	log       *log.Helper
	metrics   *metrics.CreditMetrics

	mu        sync.RWMutex
	listeners []BalanceListener
}

// NewNotifier 创建事件分发器，publisher 可为 nil
func NewNotifier(publisher EventPublisher, conf *BillingConfig, logger log.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		conf:      conf,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
	}
}

// Subscribe 注册进程内订阅者
func (n *Notifier) Subscribe(l BalanceListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Publish 分发事件
func (n *Notifier) Publish(ctx context.Context, event *BalanceChangedEvent) {
	if n.metrics != nil && n.conf != nil {
		if event.NewBalance < n.conf.LowBalanceThreshold {
			n.metrics.BalanceLowAlert.Set(1)
		} else {
			n.metrics.BalanceLowAlert.Set(0)
		}
	}

	n.mu.RLock()
	listeners := make([]BalanceListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, event)
	}

	if n.publisher == nil {
		return
	}
	if err := n.publisher.PublishBalanceChanged(ctx, event); err != nil {
		n.log.Errorf("PublishBalanceChanged failed: account_id=%s, transaction_id=%s, error=%v", event.AccountID, event.TransactionID, err)
		if n.metrics != nil {
			n.metrics.EventPublishTotal.WithLabelValues("failed").Inc()
		}
		return
	}
	if n.metrics != nil {
		n.metrics.EventPublishTotal.WithLabelValues("success").Inc()
	}
}
