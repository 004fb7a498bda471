package biz

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// ConsumeRequest 付费动作的扣费请求
type ConsumeRequest struct {
	AccountID   string
	ServiceID   ServiceID
	Complexity  ComplexityTier
	Units       int // 按件计费的数量，<=0 视为 1
	Description string
	WorkflowID  string // 可选：关联工作流阶段
	StageID     string
	// IdempotencyKey 客户端重试键，同一键只扣一次
	IdempotencyKey string
}

// ConsumeResult 扣费结果。OK 为 false 时调用方不得执行付费动作。
type ConsumeResult struct {
	OK            bool
	Reason        string
	Cost          int64
	Balance       int64
	Transaction   *Transaction
	Replayed      bool
	BudgetWarning *BudgetWarning
}

// PaidAction 扣费成功后执行的外部动作
type PaidAction func(ctx context.Context) error

// ConsumptionGateway 付费动作入口：先扣费，后执行
type ConsumptionGateway struct {
	catalog *PricingCatalog
	ledger  *CreditLedger
	tracker *StageProgressTracker
	log     *log.Helper
	metrics *metrics.CreditMetrics
}

// NewConsumptionGateway 创建扣费网关
func NewConsumptionGateway(catalog *PricingCatalog, ledger *CreditLedger, tracker *StageProgressTracker, logger log.Logger) *ConsumptionGateway {
	return &ConsumptionGateway{
		catalog: catalog,
		ledger:  ledger,
		tracker: tracker,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Quote 报价，无副作用
func (g *ConsumptionGateway) Quote(service ServiceID, tier ComplexityTier, units int) (int64, error) {
	if units <= 0 {
		units = 1
	}
	return g.catalog.PriceUnits(service, tier, units)
}

// Consume 按定价扣费
func (g *ConsumptionGateway) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error) {
	startTime := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.ConsumeDuration.WithLabelValues(string(req.ServiceID)).Observe(time.Since(startTime).Seconds())
		}
	}()

	if req.AccountID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id is required"))
	}
	if utf8.RuneCountInString(req.Description) > constants.MaxDescriptionLength {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("description longer than %d characters", constants.MaxDescriptionLength))
	}
	tier := req.Complexity
	if tier == "" {
		tier = ComplexityStandard
	}
	units := req.Units
	if units <= 0 {
		units = 1
	}
	cost, err := g.catalog.PriceUnits(req.ServiceID, tier, units)
	if err != nil {
		g.count(req.ServiceID, constants.ConsumeResultError)
		return nil, err
	}

	// 带阶段标记的消费要求阶段已解锁
	if req.StageID != "" {
		if req.WorkflowID == "" {
			return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("workflow id is required with stage id"))
		}
		ok, err := g.tracker.CanAccessStage(ctx, req.AccountID, req.WorkflowID, req.StageID)
		if err != nil {
			g.count(req.ServiceID, constants.ConsumeResultError)
			return nil, err
		}
		if !ok {
			g.count(req.ServiceID, constants.ConsumeResultDenied)
			return nil, creditErrors.ErrStageLocked.WithCause(fmt.Errorf("stage %q", req.StageID))
		}
	}

	var idemKey string
	if req.IdempotencyKey != "" {
		idemKey = constants.IdempotencyConsume + req.AccountID + ":" + req.IdempotencyKey
		existing, err := g.ledger.FindByIdempotencyKey(ctx, idemKey)
		if err != nil {
			g.count(req.ServiceID, constants.ConsumeResultError)
			return nil, err
		}
		if existing != nil {
			return g.replay(ctx, req, existing)
		}
	}

	tx, err := g.ledger.TryDebit(ctx, req.AccountID, cost, TxMeta{
		ServiceID:      req.ServiceID,
		Complexity:     tier,
		Units:          units,
		WorkflowID:     req.WorkflowID,
		StageID:        req.StageID,
		Description:    req.Description,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, creditErrors.ErrInsufficientFunds):
			g.count(req.ServiceID, constants.ConsumeResultDenied)
			balance, berr := g.ledger.Balance(ctx, req.AccountID)
			if berr != nil {
				g.log.Warnf("Balance after denied consume failed: account_id=%s, error=%v", req.AccountID, berr)
			}
			g.log.Infof("consume denied: account_id=%s, service=%s, cost=%d, balance=%d", req.AccountID, req.ServiceID, cost, balance)
			return &ConsumeResult{OK: false, Reason: creditErrors.ReasonInsufficientFunds, Cost: cost, Balance: balance}, nil
		case errors.Is(err, creditErrors.ErrDuplicateGrant):
			// 并发重试同一幂等键，返回先写入的那笔
			existing, ferr := g.ledger.FindByIdempotencyKey(ctx, idemKey)
			if ferr == nil && existing != nil {
				return g.replay(ctx, req, existing)
			}
		}
		g.count(req.ServiceID, constants.ConsumeResultError)
		return nil, err
	}

	g.count(req.ServiceID, constants.ConsumeResultAllowed)
	if g.metrics != nil {
		g.metrics.CreditsConsumed.WithLabelValues(string(req.ServiceID)).Add(float64(cost))
	}

	result := &ConsumeResult{OK: true, Cost: cost, Balance: tx.BalanceAfter, Transaction: tx}
	if req.StageID != "" {
		_, warning, err := g.tracker.RecordSpend(ctx, req.AccountID, req.WorkflowID, req.StageID, cost)
		if err != nil {
			// 扣费已提交，阶段统计失败不影响结果
			g.log.Errorf("RecordSpend failed: account_id=%s, stage_id=%s, transaction_id=%s, error=%v", req.AccountID, req.StageID, tx.ID, err)
		}
		result.BudgetWarning = warning
	}
	return result, nil
}

// Perform 扣费后执行动作，动作失败时退还积分
func (g *ConsumptionGateway) Perform(ctx context.Context, req *ConsumeRequest, action PaidAction) (*ConsumeResult, error) {
	result, err := g.Consume(ctx, req)
	if err != nil || !result.OK || result.Replayed {
		return result, err
	}
	if actionErr := action(ctx); actionErr != nil {
		g.log.Warnf("paid action failed, refunding: account_id=%s, transaction_id=%s, error=%v", req.AccountID, result.Transaction.ID, actionErr)
		refund, err := g.Refund(ctx, req.AccountID, result.Transaction.ID, "action failed: "+actionErr.Error())
		if err != nil {
			g.log.Errorf("refund after failed action failed: transaction_id=%s, error=%v", result.Transaction.ID, err)
			return result, fmt.Errorf("action failed: %w; refund failed: %v", actionErr, err)
		}
		result.Balance = refund.BalanceAfter
		return result, actionErr
	}
	return result, nil
}

// Refund 退还一笔消费，幂等
func (g *ConsumptionGateway) Refund(ctx context.Context, accountID, transactionID, reason string) (*Transaction, error) {
	original, err := g.ledger.Transaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.AccountID != accountID {
		return nil, creditErrors.ErrTransactionNotFound.WithCause(fmt.Errorf("transaction %q", transactionID))
	}
	if original.Type != TxConsumed {
		return nil, creditErrors.ErrRefundNotAllowed.WithCause(fmt.Errorf("transaction %q is %s", transactionID, original.Type))
	}

	key := constants.IdempotencyRefund + transactionID
	tx, err := g.ledger.Credit(ctx, accountID, TxRefunded, -original.Amount, TxMeta{
		ServiceID:      original.ServiceID,
		Complexity:     original.Complexity,
		Units:          original.Units,
		WorkflowID:     original.WorkflowID,
		StageID:        original.StageID,
		Description:    reason,
		IdempotencyKey: key,
		RelatedID:      original.ID,
	})
	if err != nil {
		if errors.Is(err, creditErrors.ErrDuplicateGrant) {
			existing, ferr := g.ledger.FindByIdempotencyKey(ctx, key)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.RefundTotal.WithLabelValues(string(original.ServiceID)).Inc()
		g.metrics.CreditsRefunded.Add(float64(tx.Amount))
	}
	g.log.Infof("refunded: account_id=%s, transaction_id=%s, amount=%d", accountID, transactionID, tx.Amount)
	return tx, nil
}

func (g *ConsumptionGateway) replay(ctx context.Context, req *ConsumeRequest, existing *Transaction) (*ConsumeResult, error) {
	g.count(req.ServiceID, constants.ConsumeResultReplayed)
	balance, err := g.ledger.Balance(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return &ConsumeResult{OK: true, Cost: -existing.Amount, Balance: balance, Transaction: existing, Replayed: true}, nil
}

func (g *ConsumptionGateway) count(service ServiceID, result string) {
	if g.metrics != nil {
		g.metrics.ConsumeTotal.WithLabelValues(string(service), result).Inc()
	}
}
