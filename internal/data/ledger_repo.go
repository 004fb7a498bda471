package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	"credit-service/internal/data/model"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerRepo 账户与流水数据访问
type ledgerRepo struct {
	data     *Data
	cache    redis.Cmdable
	cacheTTL time.Duration
	log      *log.Helper
}

// NewLedgerRepo 创建账本 repo（返回 biz.LedgerRepo 接口）
func NewLedgerRepo(data *Data, conf *biz.BillingConfig, logger log.Logger) biz.LedgerRepo {
	if data.mem != nil {
		return data.mem
	}
	return &ledgerRepo{
		data:     data,
		cache:    data.rdb,
		cacheTTL: conf.BalanceCacheTTL,
		log:      log.NewHelper(logger),
	}
}

// GetAccount 读取账户（权威数据，不走缓存），不存在时返回版本 0 的空账户
func (r *ledgerRepo) GetAccount(ctx context.Context, accountID string) (*biz.Account, error) {
	var m model.CreditAccount
	if err := r.data.db.WithContext(ctx).Where("account_id = ?", accountID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &biz.Account{ID: accountID}, nil
		}
		return nil, fmt.Errorf("query credit account: %w", err)
	}
	return &biz.Account{ID: m.AccountID, Balance: m.Balance, Version: m.Version, UpdatedAt: m.UpdatedAt}, nil
}

// GetBalance 获取余额，优先读 Redis 缓存
func (r *ledgerRepo) GetBalance(ctx context.Context, accountID string) (int64, error) {
	balanceKey := constants.RedisKeyBalance + accountID
	balanceStr, err := r.cache.Get(ctx, balanceKey).Result()
	if err == nil {
		if balance, perr := strconv.ParseInt(balanceStr, 10, 64); perr == nil {
			return balance, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		r.log.Warnf("read balance cache failed: account_id=%s, error=%v", accountID, err)
	}

	// 缓存未命中，从数据库查询
	account, err := r.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	r.fillCache(accountID, account.Balance)
	return account.Balance, nil
}

// AppendTransaction 在一个数据库事务中写入余额与流水
func (r *ledgerRepo) AppendTransaction(ctx context.Context, expected *biz.Account, t *biz.Transaction) (*biz.Account, error) {
	var updated biz.Account
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 锁定账户记录并校验版本
		var account model.CreditAccount
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", t.AccountID).
			First(&account).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if expected.Version != 0 {
				return creditErrors.ErrVersionConflict
			}
			if t.Amount < 0 {
				return creditErrors.ErrInsufficientFunds
			}
			account = model.CreditAccount{AccountID: t.AccountID, Balance: t.Amount, Version: 1}
			if err := tx.Create(&account).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return creditErrors.ErrVersionConflict
				}
				return err
			}
		case err != nil:
			return err
		default:
			if account.Version != expected.Version {
				return creditErrors.ErrVersionConflict
			}
			if account.Balance+t.Amount < 0 {
				return creditErrors.ErrInsufficientFunds
			}
			// 2. 比较并交换：余额与版本号一起更新
			res := tx.Model(&model.CreditAccount{}).
				Where("account_id = ? AND version = ? AND balance + ? >= 0", t.AccountID, expected.Version, t.Amount).
				Updates(map[string]interface{}{
					"balance": gorm.Expr("balance + ?", t.Amount),
					"version": gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return creditErrors.ErrVersionConflict
			}
			account.Balance += t.Amount
			account.Version++
		}

		// 3. 写入流水
		record := toTransactionModel(t)
		record.BalanceAfter = account.Balance
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return creditErrors.ErrDuplicateGrant
			}
			return err
		}

		updated = biz.Account{ID: account.AccountID, Balance: account.Balance, Version: account.Version, UpdatedAt: time.Now()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.setCache(t.AccountID, updated.Balance)
	return &updated, nil
}

// GetTransaction 按ID查询流水
func (r *ledgerRepo) GetTransaction(ctx context.Context, transactionID string) (*biz.Transaction, error) {
	var m model.CreditTransaction
	if err := r.data.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, creditErrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransaction(&m), nil
}

// FindByIdempotencyKey 按幂等键查询流水
func (r *ledgerRepo) FindByIdempotencyKey(ctx context.Context, key string) (*biz.Transaction, error) {
	var m model.CreditTransaction
	if err := r.data.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, creditErrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransaction(&m), nil
}

// ListTransactions 获取流水列表（最近的在前）
func (r *ledgerRepo) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]*biz.Transaction, error) {
	var models []model.CreditTransaction
	if err := listTransactionsQuery(r.data.db.WithContext(ctx), accountID, limit, offset).Find(&models).Error; err != nil {
		return nil, err
	}
	txs := make([]*biz.Transaction, 0, len(models))
	for i := range models {
		txs = append(txs, toTransaction(&models[i]))
	}
	return txs, nil
}

// listTransactionsQuery 按写入顺序倒序，created_at 相同时仍有确定顺序
func listTransactionsQuery(db *gorm.DB, accountID string, limit, offset int) *gorm.DB {
	return db.Where("account_id = ?", accountID).
		Order("seq DESC").
		Offset(offset).
		Limit(limit)
}

// SumTransactions 流水金额总和（对账用）
func (r *ledgerRepo) SumTransactions(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	if err := r.data.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	return sum, nil
}

// setCache 写路径（持有账户锁）更新余额缓存（设置超时避免阻塞），失败时删除旧值
func (r *ledgerRepo) setCache(accountID string, balance int64) {
	balanceKey := constants.RedisKeyBalance + accountID
	cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cacheCancel()
	if err := r.cache.Set(cacheCtx, balanceKey, strconv.FormatInt(balance, 10), r.cacheTTL).Err(); err != nil {
		// 缓存更新失败不影响主流程，只记录日志
		r.log.Warnf("failed to update balance cache: account_id=%s, error=%v", accountID, err)
		r.cache.Del(cacheCtx, balanceKey)
	}
}

// fillCache 读路径回填缓存，只在 key 不存在时写入，不覆盖并发写入的新余额
func (r *ledgerRepo) fillCache(accountID string, balance int64) {
	balanceKey := constants.RedisKeyBalance + accountID
	cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cacheCancel()
	if err := r.cache.SetNX(cacheCtx, balanceKey, strconv.FormatInt(balance, 10), r.cacheTTL).Err(); err != nil {
		r.log.Warnf("failed to fill balance cache: account_id=%s, error=%v", accountID, err)
	}
}

func toTransactionModel(t *biz.Transaction) *model.CreditTransaction {
	m := &model.CreditTransaction{
		TransactionID: t.ID,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		BalanceAfter:  t.BalanceAfter,
		ServiceID:     string(t.ServiceID),
		Complexity:    string(t.Complexity),
		Units:         t.Units,
		WorkflowID:    t.WorkflowID,
		StageID:       t.StageID,
		Description:   truncate(t.Description, constants.MaxDescriptionLength),
		RelatedID:     t.RelatedID,
		CreatedAt:     t.CreatedAt,
	}
	if t.IdempotencyKey != "" {
		key := t.IdempotencyKey
		m.IdempotencyKey = &key
	}
	return m
}

func toTransaction(m *model.CreditTransaction) *biz.Transaction {
	t := &biz.Transaction{
		ID:           m.TransactionID,
		AccountID:    m.AccountID,
		Type:         biz.TransactionType(m.Type),
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		ServiceID:    biz.ServiceID(m.ServiceID),
		Complexity:   biz.ComplexityTier(m.Complexity),
		Units:        m.Units,
		WorkflowID:   m.WorkflowID,
		StageID:      m.StageID,
		Description:  m.Description,
		RelatedID:    m.RelatedID,
		CreatedAt:    m.CreatedAt,
	}
	if m.IdempotencyKey != nil {
		t.IdempotencyKey = *m.IdempotencyKey
	}
	return t
}

// truncate 按字符截断到列宽
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
