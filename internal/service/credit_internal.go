package service

import (
	"context"
	"fmt"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// CreditInternalService 面向 Gateway/Payment 的内部服务
type CreditInternalService struct {
	ledger  *biz.CreditLedger
	gateway *biz.ConsumptionGateway
	grants  *biz.GrantManager
	log     *log.Helper
}

// NewCreditInternalService 创建 CreditInternalService
func NewCreditInternalService(ledger *biz.CreditLedger, gateway *biz.ConsumptionGateway, grants *biz.GrantManager, logger log.Logger) *CreditInternalService {
	return &CreditInternalService{
		ledger:  ledger,
		gateway: gateway,
		grants:  grants,
		log:     log.NewHelper(logger),
	}
}

// Consume 付费动作扣费，余额不足时返回 ok=false
func (s *CreditInternalService) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeReply, error) {
	service, err := biz.ParseServiceID(req.ServiceID)
	if err != nil {
		return nil, err
	}
	tier, err := biz.ParseComplexityTier(req.Complexity)
	if err != nil {
		return nil, err
	}
	res, err := s.gateway.Consume(ctx, &biz.ConsumeRequest{
		AccountID:      req.AccountID,
		ServiceID:      service,
		Complexity:     tier,
		Units:          int(req.Units),
		Description:    req.Description,
		WorkflowID:     req.WorkflowID,
		StageID:        req.StageID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.log.Errorf("Consume failed: %v", err)
		return nil, err
	}

	reply := &ConsumeReply{
		OK:          res.OK,
		Reason:      res.Reason,
		Cost:        res.Cost,
		Balance:     res.Balance,
		Replayed:    res.Replayed,
		Transaction: toTransactionInfo(res.Transaction),
	}
	if w := res.BudgetWarning; w != nil {
		reply.BudgetWarning = &BudgetWarningInfo{StageID: w.StageID, Budget: w.Budget, Spent: w.Spent}
	}
	return reply, nil
}

// Refund 退还一笔消费
func (s *CreditInternalService) Refund(ctx context.Context, req *RefundRequest) (*RefundReply, error) {
	tx, err := s.gateway.Refund(ctx, req.AccountID, req.TransactionID, req.Reason)
	if err != nil {
		s.log.Errorf("Refund failed: %v", err)
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return &RefundReply{Transaction: toTransactionInfo(tx), Balance: balance}, nil
}

// AuditAccount 对账：余额是否等于流水之和
func (s *CreditInternalService) AuditAccount(ctx context.Context, req *AuditAccountRequest) (*AuditAccountReply, error) {
	audit, err := s.ledger.Verify(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !audit.Consistent {
		s.log.Errorf("ledger inconsistent: account_id=%s, balance=%d, sum=%d", audit.AccountID, audit.Balance, audit.Sum)
	}
	return &AuditAccountReply{
		AccountID:  audit.AccountID,
		Balance:    audit.Balance,
		Sum:        audit.Sum,
		Consistent: audit.Consistent,
	}, nil
}

// PaymentCallback 支付结果回调，重复通知只发放一次
func (s *CreditInternalService) PaymentCallback(ctx context.Context, req *PaymentCallbackRequest) (*GrantReply, error) {
	if req.OrderID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("order id is required"))
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("amount %q: %w", req.Amount, err))
	}
	res, err := s.grants.PurchasePackage(ctx, &biz.PaymentConfirmation{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Status:    req.Status,
		Amount:    amount,
	})
	if err != nil {
		s.log.Errorf("PaymentCallback failed: order_id=%s, error=%v", req.OrderID, err)
		return nil, err
	}
	return toGrantReply(res), nil
}

// GrantSubscription 按账户当前订阅发放某个周期的积分
func (s *CreditInternalService) GrantSubscription(ctx context.Context, req *GrantSubscriptionRequest) (*GrantReply, error) {
	sub, err := s.grants.GetSubscription(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != constants.SubscriptionStatusActive {
		return nil, creditErrors.ErrUnknownTier.WithCause(fmt.Errorf("account %s has no active subscription", req.AccountID))
	}
	period := req.Period
	if period == "" {
		period = biz.CurrentPeriod(time.Now())
	}
	res, err := s.grants.GrantSubscriptionCredits(ctx, req.AccountID, sub.TierID, period)
	if err != nil {
		s.log.Errorf("GrantSubscription failed: %v", err)
		return nil, err
	}
	return toGrantReply(res), nil
}

// GrantBonus 赠送积分
func (s *CreditInternalService) GrantBonus(ctx context.Context, req *GrantBonusRequest) (*GrantReply, error) {
	res, err := s.grants.GrantBonus(ctx, req.AccountID, req.Amount, req.Reason, req.IdempotencyKey)
	if err != nil {
		s.log.Errorf("GrantBonus failed: %v", err)
		return nil, err
	}
	return toGrantReply(res), nil
}
