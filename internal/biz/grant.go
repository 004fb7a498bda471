package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	pkgUtils "github.com/gaoyong06/go-pkg/utils"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// GrantResult 发放结果。Granted 为 false 表示重复请求（幂等命中），不是错误。
type GrantResult struct {
	Granted     bool
	Transaction *Transaction
	Balance     int64
	OrderID     string
}

// GrantManager 积分来源：积分包购买、订阅月度发放、赠送
type GrantManager struct {
	ledger        *CreditLedger
	purchases     PurchaseRepo
	subscriptions SubscriptionRepo
	payments      PaymentClient
	locker        Locker
	conf          *BillingConfig
	log           *log.Helper
	metrics       *metrics.CreditMetrics
}

// NewGrantManager 创建发放管理器
func NewGrantManager(
	ledger *CreditLedger,
	purchases PurchaseRepo,
	subscriptions SubscriptionRepo,
	payments PaymentClient,
	locker Locker,
	conf *BillingConfig,
	logger log.Logger,
) *GrantManager {
	return &GrantManager{
		ledger:        ledger,
		purchases:     purchases,
		subscriptions: subscriptions,
		payments:      payments,
		locker:        locker,
		conf:          conf,
		log:           log.NewHelper(logger),
		metrics:       metrics.GetMetrics(),
	}
}

// Packages 可购买的积分包
func (m *GrantManager) Packages() []*CreditPackage {
	pkgs := make([]*CreditPackage, 0, len(m.conf.Packages))
	for _, p := range m.conf.Packages {
		pkgs = append(pkgs, p)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].ID < pkgs[j].ID })
	return pkgs
}

// CreatePurchase 创建积分包订单并发起支付
func (m *GrantManager) CreatePurchase(ctx context.Context, accountID, packageID, returnURL string) (*PurchaseOrder, string, error) {
	startTime := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.PurchaseDuration.WithLabelValues("create").Observe(time.Since(startTime).Seconds())
		}
	}()

	if accountID == "" {
		return nil, "", creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id is required"))
	}
	pkg, ok := m.conf.Packages[packageID]
	if !ok {
		return nil, "", creditErrors.ErrUnknownPackage.WithCause(fmt.Errorf("package %q", packageID))
	}
	if m.payments == nil {
		return nil, "", creditErrors.ErrPaymentServiceUnavailable
	}

	now := time.Now()
	order := &PurchaseOrder{
		ID:        constants.OrderIDPrefixPurchase + uuid.New().String(),
		AccountID: accountID,
		PackageID: pkg.ID,
		Price:     pkg.Price,
		Currency:  pkg.Currency,
		Status:    constants.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.purchases.CreatePurchaseOrder(ctx, order); err != nil {
		m.log.Errorf("CreatePurchaseOrder failed: %v", err)
		return nil, "", creditErrors.Persistence(err)
	}
	m.countPurchase(constants.OrderStatusPending)

	reply, err := m.payments.CreatePayment(ctx, &CreatePaymentRequest{
		OrderID:   order.ID,
		AccountID: accountID,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		Subject:   fmt.Sprintf("Credit package %s - %d credits", pkg.Name, pkg.TotalCredits()),
		ReturnURL: returnURL,
		ClientIP:  pkgUtils.GetClientIP(ctx),
	})
	if err != nil {
		m.log.Errorf("CreatePayment failed: order_id=%s, error=%v", order.ID, err)
		if _, uerr := m.purchases.UpdatePurchaseOrderStatus(ctx, order.ID, []string{constants.OrderStatusPending}, constants.OrderStatusFailed, "", ""); uerr != nil {
			m.log.Errorf("mark order failed: order_id=%s, error=%v", order.ID, uerr)
		}
		m.countPurchase(constants.OrderStatusFailed)
		return nil, "", creditErrors.ErrPaymentCreateFailed.WithCause(err)
	}
	if err := m.purchases.SetPaymentID(ctx, order.ID, reply.PaymentID); err != nil {
		m.log.Errorf("SetPaymentID failed: order_id=%s, payment_id=%s, error=%v", order.ID, reply.PaymentID, err)
	}
	order.PaymentID = reply.PaymentID

	m.log.Infof("purchase order created: order_id=%s, payment_id=%s, package=%s", order.ID, reply.PaymentID, pkg.ID)
	return order, reply.PayURL, nil
}

// PurchasePackage 支付确认后发放积分包：基础 + 赠送积分合并为一笔 purchased 流水。
// 只有确认成功的支付才会发放；同一订单重复通知不会重复发放。
func (m *GrantManager) PurchasePackage(ctx context.Context, c *PaymentConfirmation) (*GrantResult, error) {
	startTime := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.PurchaseDuration.WithLabelValues("confirm").Observe(time.Since(startTime).Seconds())
		}
	}()

	if c == nil || c.OrderID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("order id is required"))
	}
	unlock, err := m.lock(ctx, constants.IdempotencyPurchase+c.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := m.purchases.GetPurchaseOrder(ctx, c.OrderID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}

	switch order.Status {
	case constants.OrderStatusSuccess:
		m.log.Infof("purchase already processed: order_id=%s", order.ID)
		return m.duplicate(ctx, order)
	case constants.OrderStatusCanceled:
		m.countPurchase(constants.GrantResultRejected)
		return nil, creditErrors.ErrPaymentUnconfirmed.WithCause(fmt.Errorf("order %s was canceled", order.ID))
	}

	if !strings.EqualFold(c.Status, constants.PaymentStatusSuccess) {
		if _, err := m.purchases.UpdatePurchaseOrderStatus(ctx, order.ID, []string{constants.OrderStatusPending}, constants.OrderStatusFailed, c.PaymentID, ""); err != nil {
			m.log.Errorf("mark order failed: order_id=%s, error=%v", order.ID, err)
		}
		m.countPurchase(constants.OrderStatusFailed)
		return nil, creditErrors.ErrPaymentUnconfirmed.WithCause(fmt.Errorf("order %s payment status %q", order.ID, c.Status))
	}
	if !c.Amount.IsZero() && !c.Amount.Equal(order.Price) {
		m.log.Errorf("payment amount mismatch: order_id=%s, expected=%s, paid=%s", order.ID, order.Price, c.Amount)
		m.countPurchase(constants.GrantResultRejected)
		return nil, creditErrors.ErrPaymentUnconfirmed.WithCause(fmt.Errorf("order %s amount mismatch", order.ID))
	}
	pkg, ok := m.conf.Packages[order.PackageID]
	if !ok {
		return nil, creditErrors.ErrUnknownPackage.WithCause(fmt.Errorf("package %q", order.PackageID))
	}

	key := constants.IdempotencyPurchase + order.ID
	tx, err := m.ledger.Credit(ctx, order.AccountID, TxPurchased, pkg.TotalCredits(), TxMeta{
		Description:    fmt.Sprintf("package %s: %d credits + %d bonus", pkg.ID, pkg.BaseCredits, pkg.BonusCredits),
		IdempotencyKey: key,
		RelatedID:      order.ID,
	})
	if err != nil {
		if errors.Is(err, creditErrors.ErrDuplicateGrant) {
			m.markSuccess(ctx, order.ID, c.PaymentID, "")
			return m.duplicate(ctx, order)
		}
		m.countPurchase(constants.OrderStatusFailed)
		return nil, err
	}
	m.markSuccess(ctx, order.ID, c.PaymentID, tx.ID)
	m.countPurchase(constants.OrderStatusSuccess)

	m.log.Infof("package granted: order_id=%s, account_id=%s, credits=%d", order.ID, order.AccountID, tx.Amount)
	return &GrantResult{Granted: true, Transaction: tx, Balance: tx.BalanceAfter, OrderID: order.ID}, nil
}

// CancelPurchase 取消未支付的订单，不影响账本
func (m *GrantManager) CancelPurchase(ctx context.Context, orderID string) (*PurchaseOrder, error) {
	unlock, err := m.lock(ctx, constants.IdempotencyPurchase+orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := m.purchases.GetPurchaseOrder(ctx, orderID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	if order.Status == constants.OrderStatusCanceled {
		return order, nil
	}
	ok, err := m.purchases.UpdatePurchaseOrderStatus(ctx, orderID, []string{constants.OrderStatusPending, constants.OrderStatusFailed}, constants.OrderStatusCanceled, "", "")
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	if !ok {
		return nil, creditErrors.ErrPurchaseNotCancelable.WithCause(fmt.Errorf("order %s is %s", orderID, order.Status))
	}
	order.Status = constants.OrderStatusCanceled
	m.countPurchase(constants.OrderStatusCanceled)
	return order, nil
}

// GetPurchase 查询订单
func (m *GrantManager) GetPurchase(ctx context.Context, orderID string) (*PurchaseOrder, error) {
	order, err := m.purchases.GetPurchaseOrder(ctx, orderID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return order, nil
}

// GrantSubscriptionCredits 发放订阅月度积分，同一 (账户, 档位, 周期) 只发放一次
func (m *GrantManager) GrantSubscriptionCredits(ctx context.Context, accountID, tierID, periodKey string) (*GrantResult, error) {
	if accountID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id is required"))
	}
	if err := ValidatePeriodKey(periodKey); err != nil {
		return nil, err
	}
	tier, ok := m.conf.SubscriptionTiers[tierID]
	if !ok {
		return nil, creditErrors.ErrUnknownTier.WithCause(fmt.Errorf("tier %q", tierID))
	}

	key := SubscriptionGrantKey(accountID, tierID, periodKey)
	existing, err := m.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.countSubscription(constants.GrantResultDuplicate)
		return m.duplicateTx(ctx, accountID, existing)
	}

	tx, err := m.ledger.Credit(ctx, accountID, TxGranted, tier.MonthlyCredits, TxMeta{
		Description:    fmt.Sprintf("subscription %s %s", tier.ID, periodKey),
		IdempotencyKey: key,
	})
	if err != nil {
		if errors.Is(err, creditErrors.ErrDuplicateGrant) {
			m.countSubscription(constants.GrantResultDuplicate)
			existing, ferr := m.ledger.FindByIdempotencyKey(ctx, key)
			if ferr != nil {
				return nil, ferr
			}
			return m.duplicateTx(ctx, accountID, existing)
		}
		m.countSubscription(constants.GrantResultRejected)
		return nil, err
	}
	m.countSubscription(constants.GrantResultGranted)
	return &GrantResult{Granted: true, Transaction: tx, Balance: tx.BalanceAfter}, nil
}

// Subscribe 设置账户订阅档位
func (m *GrantManager) Subscribe(ctx context.Context, accountID, tierID string) (*AccountSubscription, error) {
	if accountID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id is required"))
	}
	if _, ok := m.conf.SubscriptionTiers[tierID]; !ok {
		return nil, creditErrors.ErrUnknownTier.WithCause(fmt.Errorf("tier %q", tierID))
	}
	now := time.Now()
	sub := &AccountSubscription{AccountID: accountID, TierID: tierID, Status: constants.SubscriptionStatusActive, CreatedAt: now, UpdatedAt: now}
	if existing, err := m.subscriptions.GetSubscription(ctx, accountID); err != nil {
		return nil, creditErrors.Persistence(err)
	} else if existing != nil {
		sub.CreatedAt = existing.CreatedAt
	}
	if err := m.subscriptions.SaveSubscription(ctx, sub); err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return sub, nil
}

// Unsubscribe 取消订阅，已发放的积分保留
func (m *GrantManager) Unsubscribe(ctx context.Context, accountID string) (*AccountSubscription, error) {
	sub, err := m.subscriptions.GetSubscription(ctx, accountID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	if sub == nil {
		return nil, creditErrors.ErrUnknownTier.WithCause(fmt.Errorf("account %s has no subscription", accountID))
	}
	sub.Status = constants.SubscriptionStatusCanceled
	sub.UpdatedAt = time.Now()
	if err := m.subscriptions.SaveSubscription(ctx, sub); err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return sub, nil
}

// GetSubscription 查询订阅，不存在时返回 (nil, nil)
func (m *GrantManager) GetSubscription(ctx context.Context, accountID string) (*AccountSubscription, error) {
	sub, err := m.subscriptions.GetSubscription(ctx, accountID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return sub, nil
}

// GrantPeriod 为所有生效订阅发放指定周期的积分（定时任务调用），返回新发放数和账户列表
func (m *GrantManager) GrantPeriod(ctx context.Context, periodKey string) (int, []string, error) {
	if err := ValidatePeriodKey(periodKey); err != nil {
		return 0, nil, err
	}
	const pageSize = 100
	var (
		granted  int
		accounts []string
		failed   int
	)
	for offset := 0; ; offset += pageSize {
		subs, err := m.subscriptions.ListActiveSubscriptions(ctx, offset, pageSize)
		if err != nil {
			return granted, accounts, creditErrors.Persistence(err)
		}
		for _, sub := range subs {
			res, err := m.GrantSubscriptionCredits(ctx, sub.AccountID, sub.TierID, periodKey)
			if err != nil {
				failed++
				m.log.Errorf("GrantSubscriptionCredits failed: account_id=%s, tier=%s, period=%s, error=%v", sub.AccountID, sub.TierID, periodKey, err)
				continue
			}
			if res.Granted {
				granted++
				accounts = append(accounts, sub.AccountID)
			}
		}
		if len(subs) < pageSize {
			break
		}
	}
	if failed > 0 {
		return granted, accounts, fmt.Errorf("%d subscription grants failed for period %s", failed, periodKey)
	}
	return granted, accounts, nil
}

// GrantBonus 赠送积分，key 非空时幂等
func (m *GrantManager) GrantBonus(ctx context.Context, accountID string, amount int64, reason, key string) (*GrantResult, error) {
	tx, err := m.ledger.Credit(ctx, accountID, TxBonus, amount, TxMeta{Description: reason, IdempotencyKey: key})
	if err != nil {
		if key != "" && errors.Is(err, creditErrors.ErrDuplicateGrant) {
			existing, ferr := m.ledger.FindByIdempotencyKey(ctx, key)
			if ferr != nil {
				return nil, ferr
			}
			return m.duplicateTx(ctx, accountID, existing)
		}
		return nil, err
	}
	return &GrantResult{Granted: true, Transaction: tx, Balance: tx.BalanceAfter}, nil
}

// SubscriptionGrantKey 订阅发放幂等键
func SubscriptionGrantKey(accountID, tierID, periodKey string) string {
	return constants.IdempotencySubscription + accountID + ":" + tierID + ":" + periodKey
}

// ValidatePeriodKey 周期格式必须为 YYYY-MM
func ValidatePeriodKey(periodKey string) error {
	t, err := time.Parse(constants.TimeFormatMonth, periodKey)
	if err != nil || t.Format(constants.TimeFormatMonth) != periodKey {
		return creditErrors.ErrInvalidPeriod.WithCause(fmt.Errorf("period %q", periodKey))
	}
	return nil
}

// CurrentPeriod 当前周期
func CurrentPeriod(now time.Time) string {
	return now.Format(constants.TimeFormatMonth)
}

func (m *GrantManager) duplicate(ctx context.Context, order *PurchaseOrder) (*GrantResult, error) {
	m.countPurchase(constants.GrantResultDuplicate)
	res := &GrantResult{Granted: false, OrderID: order.ID}
	if existing, err := m.ledger.FindByIdempotencyKey(ctx, constants.IdempotencyPurchase+order.ID); err == nil && existing != nil {
		res.Transaction = existing
	}
	balance, err := m.ledger.Balance(ctx, order.AccountID)
	if err != nil {
		return nil, err
	}
	res.Balance = balance
	return res, nil
}

func (m *GrantManager) duplicateTx(ctx context.Context, accountID string, existing *Transaction) (*GrantResult, error) {
	balance, err := m.ledger.Balance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &GrantResult{Granted: false, Transaction: existing, Balance: balance}, nil
}

func (m *GrantManager) markSuccess(ctx context.Context, orderID, paymentID, transactionID string) {
	from := []string{constants.OrderStatusPending, constants.OrderStatusFailed}
	if _, err := m.purchases.UpdatePurchaseOrderStatus(ctx, orderID, from, constants.OrderStatusSuccess, paymentID, transactionID); err != nil {
		// 积分已入账，下一次通知会通过幂等键补齐订单状态
		m.log.Errorf("mark order success failed: order_id=%s, error=%v", orderID, err)
	}
}

func (m *GrantManager) lock(ctx context.Context, key string) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	unlock, err := m.locker.Lock(ctx, key)
	if err != nil {
		return nil, creditErrors.ErrLockFailed.WithCause(err)
	}
	return unlock, nil
}

func (m *GrantManager) countPurchase(status string) {
	if m.metrics != nil {
		m.metrics.PurchaseTotal.WithLabelValues(status).Inc()
	}
}

func (m *GrantManager) countSubscription(result string) {
	if m.metrics != nil {
		m.metrics.SubscriptionGrantTotal.WithLabelValues(result).Inc()
	}
}
