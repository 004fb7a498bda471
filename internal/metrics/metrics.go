package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CreditMetrics 积分服务指标
type CreditMetrics struct {
	// 消费相关指标
	ConsumeTotal     *prometheus.CounterVec   // 消费请求总数（按服务、结果）
	ConsumeDuration  *prometheus.HistogramVec // 消费耗时
	CreditsConsumed  *prometheus.CounterVec   // 消耗积分数（按服务）
	RefundTotal      *prometheus.CounterVec   // 退款总数（按服务）
	CreditsRefunded  prometheus.Counter       // 退还积分数

	// 账本相关指标
	LedgerAppendTotal   *prometheus.CounterVec // 流水写入总数（按类型）
	LedgerConflictTotal prometheus.Counter     // 版本冲突重试次数
	CreditsGranted      *prometheus.CounterVec // 入账积分数（按类型）
	BalanceQueryTotal   prometheus.Counter     // 余额查询总数
	BalanceLowAlert     prometheus.Gauge       // 低余额账户告警（最近一次变动后低于阈值则为 1）

	// 购买/订阅相关指标
	PurchaseTotal          *prometheus.CounterVec   // 购买订单数（按状态）
	PurchaseDuration       *prometheus.HistogramVec // 购买处理耗时（按阶段）
	SubscriptionGrantTotal *prometheus.CounterVec   // 订阅发放次数（按结果）

	// 阶段相关指标
	StageTransitionTotal *prometheus.CounterVec // 阶段状态变更（按目标状态）
	StageBudgetExceeded  *prometheus.CounterVec // 阶段预算超支次数（按阶段）

	// 版本相关指标
	RemixTotal *prometheus.CounterVec // Remix 次数（按档位、结果）

	// 事件相关指标
	EventPublishTotal *prometheus.CounterVec // 事件发布（按结果）

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewCreditMetrics 创建积分服务指标
func NewCreditMetrics() *CreditMetrics {
	return &CreditMetrics{
		ConsumeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_consume_total",
				Help: "Total number of consume requests",
			},
			[]string{"service", "result"}, // result: allowed/denied/error/replayed
		),
		ConsumeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credit_consume_duration_seconds",
				Help:    "Duration of consume operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		CreditsConsumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_consumed_credits_total",
				Help: "Total credits consumed",
			},
			[]string{"service"},
		),
		RefundTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_refund_total",
				Help: "Total number of refunds",
			},
			[]string{"service"},
		),
		CreditsRefunded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_refunded_credits_total",
				Help: "Total credits refunded",
			},
		),

		LedgerAppendTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_ledger_append_total",
				Help: "Total number of ledger transactions appended",
			},
			[]string{"type"},
		),
		LedgerConflictTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_ledger_conflict_total",
				Help: "Total number of optimistic concurrency conflicts",
			},
		),
		CreditsGranted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_granted_credits_total",
				Help: "Total credits added to accounts",
			},
			[]string{"type"}, // type: purchased/granted/bonus
		),
		BalanceQueryTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_balance_query_total",
				Help: "Total number of balance queries",
			},
		),
		BalanceLowAlert: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "credit_balance_low_alert",
				Help: "Set to 1 when the last changed account fell below the low balance threshold",
			},
		),

		PurchaseTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_purchase_total",
				Help: "Total number of package purchases",
			},
			[]string{"status"},
		),
		PurchaseDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credit_purchase_duration_seconds",
				Help:    "Duration of purchase operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"}, // stage: create/confirm
		),
		SubscriptionGrantTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_subscription_grant_total",
				Help: "Total number of subscription grants",
			},
			[]string{"result"}, // result: granted/duplicate/rejected
		),

		StageTransitionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_stage_transition_total",
				Help: "Total number of workflow stage transitions",
			},
			[]string{"state"},
		),
		StageBudgetExceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_stage_budget_exceeded_total",
				Help: "Total number of spends that left a stage over budget",
			},
			[]string{"stage"},
		),

		RemixTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_remix_total",
				Help: "Total number of remix attempts",
			},
			[]string{"tier", "result"},
		),

		EventPublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_event_publish_total",
				Help: "Total number of balance events published",
			},
			[]string{"result"},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"}, // result: success/failed
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "credit_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 毫秒级
			},
		),
	}
}

var (
	defaultMetrics *CreditMetrics
	once           sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *CreditMetrics {
	once.Do(func() {
		defaultMetrics = NewCreditMetrics()
	})
	return defaultMetrics
}
