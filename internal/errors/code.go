package errors

import (
	"net/http"
	"strconv"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Credit Service 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Credit 固定为 21
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块
//   01: 账本模块
//   02: 定价模块
//   03: 购买/发放模块
//   04: 阶段模块
//   05: 版本模块
//   06: 存储与锁
//
// 错误对外以 kratos *errors.Error 返回：Code 为 HTTP 状态码，Reason 为稳定的机器可读标识，
// 业务错误码放在 metadata["code"]。

// 通用模块错误码 (210000-210099)
const (
	// ErrCodeInvalidArgument 参数错误
	ErrCodeInvalidArgument = 210001
)

// 账本模块错误码 (210100-210199)
const (
	// ErrCodeInsufficientFunds 积分余额不足
	ErrCodeInsufficientFunds = 210101
	// ErrCodeInvalidAmount 无效的积分数量
	ErrCodeInvalidAmount = 210102
	// ErrCodeTransactionNotFound 流水不存在
	ErrCodeTransactionNotFound = 210103
	// ErrCodeRefundNotAllowed 不允许退款
	ErrCodeRefundNotAllowed = 210104
	// ErrCodeVersionConflict 账户版本冲突
	ErrCodeVersionConflict = 210105
)

// 定价模块错误码 (210200-210299)
const (
	// ErrCodeUnknownService 未知的服务
	ErrCodeUnknownService = 210201
	// ErrCodeUnknownComplexity 未知的复杂度档位
	ErrCodeUnknownComplexity = 210202
)

// 购买/发放模块错误码 (210300-210399)
const (
	// ErrCodeDuplicateGrant 重复发放
	ErrCodeDuplicateGrant = 210301
	// ErrCodePaymentUnconfirmed 支付未确认
	ErrCodePaymentUnconfirmed = 210302
	// ErrCodeUnknownPackage 未知的积分包
	ErrCodeUnknownPackage = 210303
	// ErrCodeUnknownTier 未知的订阅档位
	ErrCodeUnknownTier = 210304
	// ErrCodePurchaseNotFound 购买订单不存在
	ErrCodePurchaseNotFound = 210305
	// ErrCodePurchaseNotCancelable 订单不可取消
	ErrCodePurchaseNotCancelable = 210306
	// ErrCodeInvalidPeriod 无效的订阅周期
	ErrCodeInvalidPeriod = 210307
	// ErrCodePaymentServiceUnavailable 支付服务不可用
	ErrCodePaymentServiceUnavailable = 210308
	// ErrCodePaymentCreateFailed 创建支付订单失败
	ErrCodePaymentCreateFailed = 210309
)

// 阶段模块错误码 (210400-210499)
const (
	// ErrCodeStageLocked 阶段未解锁
	ErrCodeStageLocked = 210401
	// ErrCodeUnknownStage 未知的阶段
	ErrCodeUnknownStage = 210402
)

// 版本模块错误码 (210500-210599)
const (
	// ErrCodeVersionNotFound 版本不存在
	ErrCodeVersionNotFound = 210501
	// ErrCodeInvalidPayload 无效的版本内容
	ErrCodeInvalidPayload = 210502
)

// 存储与锁错误码 (210600-210699)
const (
	// ErrCodePersistenceUnavailable 存储不可用
	ErrCodePersistenceUnavailable = 210601
	// ErrCodeLockFailed 获取锁失败
	ErrCodeLockFailed = 210602
)

// Reason 常量
const (
	ReasonInvalidArgument           = "INVALID_ARGUMENT"
	ReasonInsufficientFunds         = "INSUFFICIENT_FUNDS"
	ReasonInvalidAmount             = "INVALID_AMOUNT"
	ReasonTransactionNotFound       = "TRANSACTION_NOT_FOUND"
	ReasonRefundNotAllowed          = "REFUND_NOT_ALLOWED"
	ReasonVersionConflict           = "VERSION_CONFLICT"
	ReasonUnknownService            = "UNKNOWN_SERVICE"
	ReasonUnknownComplexity         = "UNKNOWN_COMPLEXITY"
	ReasonDuplicateGrant            = "DUPLICATE_GRANT"
	ReasonPaymentUnconfirmed        = "PAYMENT_UNCONFIRMED"
	ReasonUnknownPackage            = "UNKNOWN_PACKAGE"
	ReasonUnknownTier               = "UNKNOWN_TIER"
	ReasonPurchaseNotFound          = "PURCHASE_NOT_FOUND"
	ReasonPurchaseNotCancelable     = "PURCHASE_NOT_CANCELABLE"
	ReasonInvalidPeriod             = "INVALID_PERIOD"
	ReasonPaymentServiceUnavailable = "PAYMENT_SERVICE_UNAVAILABLE"
	ReasonPaymentCreateFailed       = "PAYMENT_CREATE_FAILED"
	ReasonStageLocked               = "STAGE_LOCKED"
	ReasonUnknownStage              = "UNKNOWN_STAGE"
	ReasonVersionNotFound           = "VERSION_NOT_FOUND"
	ReasonInvalidPayload            = "INVALID_PAYLOAD"
	ReasonPersistenceUnavailable    = "PERSISTENCE_UNAVAILABLE"
	ReasonLockFailed                = "LOCK_FAILED"
)

var (
	ErrInvalidArgument           = newError(http.StatusBadRequest, ReasonInvalidArgument, ErrCodeInvalidArgument, "invalid argument")
	ErrInsufficientFunds         = newError(http.StatusPaymentRequired, ReasonInsufficientFunds, ErrCodeInsufficientFunds, "insufficient credits")
	ErrInvalidAmount             = newError(http.StatusBadRequest, ReasonInvalidAmount, ErrCodeInvalidAmount, "amount must be positive")
	ErrTransactionNotFound       = newError(http.StatusNotFound, ReasonTransactionNotFound, ErrCodeTransactionNotFound, "transaction not found")
	ErrRefundNotAllowed          = newError(http.StatusBadRequest, ReasonRefundNotAllowed, ErrCodeRefundNotAllowed, "transaction cannot be refunded")
	ErrVersionConflict           = newError(http.StatusConflict, ReasonVersionConflict, ErrCodeVersionConflict, "account was modified concurrently")
	ErrUnknownService            = newError(http.StatusBadRequest, ReasonUnknownService, ErrCodeUnknownService, "unknown service")
	ErrUnknownComplexity         = newError(http.StatusBadRequest, ReasonUnknownComplexity, ErrCodeUnknownComplexity, "unknown complexity tier")
	ErrDuplicateGrant            = newError(http.StatusConflict, ReasonDuplicateGrant, ErrCodeDuplicateGrant, "credits already granted")
	ErrPaymentUnconfirmed        = newError(http.StatusPaymentRequired, ReasonPaymentUnconfirmed, ErrCodePaymentUnconfirmed, "payment not confirmed")
	ErrUnknownPackage            = newError(http.StatusNotFound, ReasonUnknownPackage, ErrCodeUnknownPackage, "unknown credit package")
	ErrUnknownTier               = newError(http.StatusNotFound, ReasonUnknownTier, ErrCodeUnknownTier, "unknown subscription tier")
	ErrPurchaseNotFound          = newError(http.StatusNotFound, ReasonPurchaseNotFound, ErrCodePurchaseNotFound, "purchase order not found")
	ErrPurchaseNotCancelable     = newError(http.StatusConflict, ReasonPurchaseNotCancelable, ErrCodePurchaseNotCancelable, "purchase order can no longer be canceled")
	ErrInvalidPeriod             = newError(http.StatusBadRequest, ReasonInvalidPeriod, ErrCodeInvalidPeriod, "period key must be YYYY-MM")
	ErrPaymentServiceUnavailable = newError(http.StatusServiceUnavailable, ReasonPaymentServiceUnavailable, ErrCodePaymentServiceUnavailable, "payment service unavailable")
	ErrPaymentCreateFailed       = newError(http.StatusBadGateway, ReasonPaymentCreateFailed, ErrCodePaymentCreateFailed, "failed to create payment")
	ErrStageLocked               = newError(http.StatusConflict, ReasonStageLocked, ErrCodeStageLocked, "stage is locked")
	ErrUnknownStage              = newError(http.StatusNotFound, ReasonUnknownStage, ErrCodeUnknownStage, "unknown stage")
	ErrVersionNotFound           = newError(http.StatusNotFound, ReasonVersionNotFound, ErrCodeVersionNotFound, "version not found")
	ErrInvalidPayload            = newError(http.StatusBadRequest, ReasonInvalidPayload, ErrCodeInvalidPayload, "payload must be a JSON object")
	ErrPersistenceUnavailable    = newError(http.StatusServiceUnavailable, ReasonPersistenceUnavailable, ErrCodePersistenceUnavailable, "storage unavailable")
	ErrLockFailed                = newError(http.StatusServiceUnavailable, ReasonLockFailed, ErrCodeLockFailed, "failed to acquire lock")
)

func newError(status int, reason string, code int, message string) *kerrors.Error {
	return kerrors.New(status, reason, message).WithMetadata(map[string]string{
		"code": strconv.Itoa(code),
	})
}

// Persistence 将存储层错误包装为 PERSISTENCE_UNAVAILABLE，已是业务错误的原样返回
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	if kerrors.Reason(err) != kerrors.UnknownReason {
		return err
	}
	return ErrPersistenceUnavailable.WithCause(err)
}

// IsReason reports whether err carries the given reason.
func IsReason(err error, reason string) bool {
	return err != nil && kerrors.Reason(err) == reason
}
