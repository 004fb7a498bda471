package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// LedgerAudit 账户对账结果
type LedgerAudit struct {
	AccountID  string
	Balance    int64
	Sum        int64
	Consistent bool
}

// CreditLedger 积分账本：每个账户的余额只通过追加流水变化
type CreditLedger struct {
	repo     LedgerRepo
	locker   Locker
	notifier *Notifier
	conf     *BillingConfig
	log      *log.Helper
	metrics  *metrics.CreditMetrics
}

// NewCreditLedger 创建积分账本
func NewCreditLedger(repo LedgerRepo, locker Locker, notifier *Notifier, conf *BillingConfig, logger log.Logger) *CreditLedger {
	return &CreditLedger{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		conf:     conf,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// Balance 查询余额，账户不存在时为 0
func (l *CreditLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id is required"))
	}
	if l.metrics != nil {
		l.metrics.BalanceQueryTotal.Inc()
	}
	balance, err := l.repo.GetBalance(ctx, accountID)
	if err != nil {
		return 0, creditErrors.Persistence(err)
	}
	return balance, nil
}

// TryDebit 扣减积分。余额不足时返回 ErrInsufficientFunds，且不产生任何变更。
func (l *CreditLedger) TryDebit(ctx context.Context, accountID string, amount int64, meta TxMeta) (*Transaction, error) {
	if amount <= 0 {
		return nil, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("debit amount %d", amount))
	}
	return l.append(ctx, accountID, TxConsumed, -amount, meta)
}

// Credit 入账。幂等键已存在时返回 ErrDuplicateGrant。
func (l *CreditLedger) Credit(ctx context.Context, accountID string, txType TransactionType, amount int64, meta TxMeta) (*Transaction, error) {
	if amount <= 0 {
		return nil, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("credit amount %d", amount))
	}
	if !txType.IsCredit() {
		return nil, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("%s is not a credit type", txType))
	}
	return l.append(ctx, accountID, txType, amount, meta)
}

// Transactions 最近的流水在前
func (l *CreditLedger) Transactions(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error) {
	if accountID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id is required"))
	}
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	txs, err := l.repo.ListTransactions(ctx, accountID, limit, offset)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return txs, nil
}

// Transaction 按ID查询流水
func (l *CreditLedger) Transaction(ctx context.Context, transactionID string) (*Transaction, error) {
	tx, err := l.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return tx, nil
}

// FindByIdempotencyKey 按幂等键查询流水，不存在时返回 (nil, nil)
func (l *CreditLedger) FindByIdempotencyKey(ctx context.Context, key string) (*Transaction, error) {
	tx, err := l.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, creditErrors.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, creditErrors.Persistence(err)
	}
	return tx, nil
}

// Verify 对账：余额必须等于流水总和
func (l *CreditLedger) Verify(ctx context.Context, accountID string) (*LedgerAudit, error) {
	account, err := l.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	sum, err := l.repo.SumTransactions(ctx, accountID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	audit := &LedgerAudit{
		AccountID:  accountID,
		Balance:    account.Balance,
		Sum:        sum,
		Consistent: account.Balance == sum && account.Balance >= 0,
	}
	if !audit.Consistent {
		l.log.Errorf("ledger inconsistent: account_id=%s, balance=%d, sum=%d", accountID, account.Balance, sum)
	}
	return audit, nil
}

func (l *CreditLedger) append(ctx context.Context, accountID string, txType TransactionType, amount int64, meta TxMeta) (*Transaction, error) {
	if accountID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id is required"))
	}

	tx, err := l.appendLocked(ctx, accountID, txType, amount, meta)
	if err != nil {
		return nil, err
	}

	if l.metrics != nil {
		l.metrics.LedgerAppendTotal.WithLabelValues(string(txType)).Inc()
		if amount > 0 && txType != TxRefunded {
			l.metrics.CreditsGranted.WithLabelValues(string(txType)).Add(float64(amount))
		}
	}
	if l.notifier != nil {
		l.notifier.Publish(ctx, &BalanceChangedEvent{
			AccountID:     accountID,
			NewBalance:    tx.BalanceAfter,
			Delta:         tx.Amount,
			Reason:        tx.Type,
			TransactionID: tx.ID,
			OccurredAt:    tx.CreatedAt,
		})
	}
	return tx, nil
}

// appendLocked 在账户锁内完成 读取-校验-CAS 写入，版本冲突时重试
func (l *CreditLedger) appendLocked(ctx context.Context, accountID string, txType TransactionType, amount int64, meta TxMeta) (*Transaction, error) {
	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, constants.LockKeyAccount+accountID)
		if err != nil {
			l.log.Errorf("acquire account lock failed: account_id=%s, error=%v", accountID, err)
			return nil, creditErrors.ErrLockFailed.WithCause(err)
		}
		defer unlock()
	}

	retries := l.conf.DebitRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		account, err := l.repo.GetAccount(ctx, accountID)
		if err != nil {
			return nil, creditErrors.Persistence(err)
		}
		if account.Balance+amount < 0 {
			return nil, creditErrors.ErrInsufficientFunds
		}

		tx := &Transaction{
			ID:             uuid.New().String(),
			AccountID:      accountID,
			Type:           txType,
			Amount:         amount,
			BalanceAfter:   account.Balance + amount,
			ServiceID:      meta.ServiceID,
			Complexity:     meta.Complexity,
			Units:          meta.Units,
			WorkflowID:     meta.WorkflowID,
			StageID:        meta.StageID,
			Description:    meta.Description,
			IdempotencyKey: meta.IdempotencyKey,
			RelatedID:      meta.RelatedID,
			CreatedAt:      time.Now(),
		}
		updated, err := l.repo.AppendTransaction(ctx, account, tx)
		if err == nil {
			tx.BalanceAfter = updated.Balance
			return tx, nil
		}
		switch {
		case errors.Is(err, creditErrors.ErrVersionConflict):
			l.log.Warnf("ledger version conflict, retrying: account_id=%s, attempt=%d", accountID, attempt+1)
			if l.metrics != nil {
				l.metrics.LedgerConflictTotal.Inc()
			}
			lastErr = err
			continue
		case errors.Is(err, creditErrors.ErrInsufficientFunds), errors.Is(err, creditErrors.ErrDuplicateGrant):
			return nil, err
		default:
			l.log.Errorf("AppendTransaction failed: account_id=%s, type=%s, error=%v", accountID, txType, err)
			return nil, creditErrors.Persistence(err)
		}
	}
	return nil, lastErr
}
