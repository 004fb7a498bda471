package constants

// 时间格式常量
const (
	// TimeFormatMonth 订阅周期格式 (YYYY-MM)
	TimeFormatMonth = "2006-01"
)

// Redis Key 前缀常量
const (
	// RedisKeyBalance 积分余额缓存 key 前缀
	RedisKeyBalance = "credit:balance:"
	// RedisKeyLock 分布式锁 key 前缀
	RedisKeyLock = "credit:lock:"
)

// 锁 key 前缀（biz.Locker 使用）
const (
	// LockKeyAccount 账户级互斥
	LockKeyAccount = "account:"
	// LockKeyWorkflow 工作流级互斥
	LockKeyWorkflow = "workflow:"
)

// 幂等键前缀
const (
	// IdempotencyPurchase 购买发放 purchase:{orderID}
	IdempotencyPurchase = "purchase:"
	// IdempotencySubscription 订阅发放 subscription:{account}:{tier}:{period}
	IdempotencySubscription = "subscription:"
	// IdempotencyRefund 退款 refund:{transactionID}
	IdempotencyRefund = "refund:"
	// IdempotencyConsume 消费请求 consume:{account}:{clientKey}
	IdempotencyConsume = "consume:"
)

// MaxDescriptionLength 流水描述最大长度（字符），与 credit_transaction.description 列宽一致
const MaxDescriptionLength = 255

// 订单状态常量
const (
	// OrderStatusPending 待支付
	OrderStatusPending = "pending"
	// OrderStatusSuccess 成功
	OrderStatusSuccess = "success"
	// OrderStatusFailed 失败
	OrderStatusFailed = "failed"
	// OrderStatusCanceled 已取消
	OrderStatusCanceled = "canceled"
)

// 支付状态常量（用于支付回调）
const (
	// PaymentStatusSuccess 支付成功
	PaymentStatusSuccess = "SUCCESS"
)

// 订阅状态常量
const (
	// SubscriptionStatusActive 生效中
	SubscriptionStatusActive = "active"
	// SubscriptionStatusCanceled 已取消
	SubscriptionStatusCanceled = "canceled"
)

// 消费结果常量（用于指标）
const (
	// ConsumeResultAllowed 扣费成功
	ConsumeResultAllowed = "allowed"
	// ConsumeResultDenied 余额不足
	ConsumeResultDenied = "denied"
	// ConsumeResultError 错误
	ConsumeResultError = "error"
	// ConsumeResultReplayed 幂等重放
	ConsumeResultReplayed = "replayed"
)

// 发放结果常量（用于指标）
const (
	// GrantResultGranted 已发放
	GrantResultGranted = "granted"
	// GrantResultDuplicate 重复请求
	GrantResultDuplicate = "duplicate"
	// GrantResultRejected 拒绝
	GrantResultRejected = "rejected"
)

// 订单ID前缀常量
const (
	// OrderIDPrefixPurchase 积分包订单ID前缀
	OrderIDPrefixPurchase = "purchase_"
)

// 支付来源常量（用于支付服务）
const (
	// PaymentSourceCredit 积分包购买
	PaymentSourceCredit = "credit"
)

// 默认值
const (
	// DefaultListLimit 流水列表默认条数
	DefaultListLimit = 20
	// MaxListLimit 流水列表最大条数
	MaxListLimit = 200
)

// 统计周期常量
const (
	// StatsPeriodToday 今日
	StatsPeriodToday = "today"
	// StatsPeriodMonth 本月
	StatsPeriodMonth = "month"
)
