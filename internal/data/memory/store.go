package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
)

// Store 进程内存储，实现 biz 层全部 Repo 接口。用于本地开发（data.driver=memory）和测试。
type Store struct {
	mu sync.RWMutex

	// 账本
	accounts map[string]*biz.Account
	txs      []*biz.Transaction // 追加顺序
	txByID   map[string]*biz.Transaction
	txByKey  map[string]*biz.Transaction

	// 购买与订阅
	orders        map[string]*biz.PurchaseOrder
	subscriptions map[string]*biz.AccountSubscription

	// 阶段进度 key: account|workflow
	progress map[string]*biz.WorkflowProgress

	// 版本
	versions     map[string]*biz.ArtifactVersion
	versionOrder []string
}

// New 创建内存存储
func New() *Store {
	return &Store{
		accounts:      make(map[string]*biz.Account),
		txByID:        make(map[string]*biz.Transaction),
		txByKey:       make(map[string]*biz.Transaction),
		orders:        make(map[string]*biz.PurchaseOrder),
		subscriptions: make(map[string]*biz.AccountSubscription),
		progress:      make(map[string]*biz.WorkflowProgress),
		versions:      make(map[string]*biz.ArtifactVersion),
	}
}

// ========== 账本 ==========

func (s *Store) GetAccount(_ context.Context, accountID string) (*biz.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID]; ok {
		cp := *a
		return &cp, nil
	}
	return &biz.Account{ID: accountID}, nil
}

func (s *Store) GetBalance(_ context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID]; ok {
		return a.Balance, nil
	}
	return 0, nil
}

func (s *Store) AppendTransaction(_ context.Context, expected *biz.Account, tx *biz.Transaction) (*biz.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[tx.AccountID]
	if !ok {
		current = &biz.Account{ID: tx.AccountID}
	}
	if current.Version != expected.Version {
		return nil, creditErrors.ErrVersionConflict
	}
	if current.Balance+tx.Amount < 0 {
		return nil, creditErrors.ErrInsufficientFunds
	}
	if tx.IdempotencyKey != "" {
		if _, dup := s.txByKey[tx.IdempotencyKey]; dup {
			return nil, creditErrors.ErrDuplicateGrant
		}
	}

	updated := &biz.Account{
		ID:        tx.AccountID,
		Balance:   current.Balance + tx.Amount,
		Version:   current.Version + 1,
		UpdatedAt: time.Now(),
	}
	stored := *tx
	stored.BalanceAfter = updated.Balance
	s.accounts[tx.AccountID] = updated
	s.txs = append(s.txs, &stored)
	s.txByID[stored.ID] = &stored
	if stored.IdempotencyKey != "" {
		s.txByKey[stored.IdempotencyKey] = &stored
	}

	cp := *updated
	return &cp, nil
}

func (s *Store) GetTransaction(_ context.Context, transactionID string) (*biz.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tx, ok := s.txByID[transactionID]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, creditErrors.ErrTransactionNotFound
}

func (s *Store) FindByIdempotencyKey(_ context.Context, key string) (*biz.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tx, ok := s.txByKey[key]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, creditErrors.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, accountID string, limit, offset int) ([]*biz.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*biz.Transaction, 0, limit)
	skipped := 0
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		tx := s.txs[i]
		if tx.AccountID != accountID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) SumTransactions(_ context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, tx := range s.txs {
		if tx.AccountID == accountID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

// ========== 统计 ==========

func (s *Store) GetUsage(_ context.Context, accountID string, from, to time.Time) ([]*biz.ServiceUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byService := make(map[biz.ServiceID]*biz.ServiceUsage)
	for _, tx := range s.txs {
		if tx.AccountID != accountID || tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		if tx.Type != biz.TxConsumed && tx.Type != biz.TxRefunded {
			continue
		}
		u, ok := byService[tx.ServiceID]
		if !ok {
			u = &biz.ServiceUsage{ServiceID: tx.ServiceID}
			byService[tx.ServiceID] = u
		}
		if tx.Type == biz.TxConsumed {
			u.Count++
			u.Credits += -tx.Amount
		} else {
			u.Refunded += tx.Amount
		}
	}
	out := make([]*biz.ServiceUsage, 0, len(byService))
	for _, u := range byService {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out, nil
}

// ========== 购买订单 ==========

func (s *Store) CreatePurchaseOrder(_ context.Context, order *biz.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("purchase order %s already exists", order.ID)
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, orderID string) (*biz.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, creditErrors.ErrPurchaseNotFound
}

func (s *Store) SetPaymentID(_ context.Context, orderID, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return creditErrors.ErrPurchaseNotFound
	}
	o.PaymentID = paymentID
	o.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdatePurchaseOrderStatus(_ context.Context, orderID string, from []string, to, paymentID, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return false, creditErrors.ErrPurchaseNotFound
	}
	matched := false
	for _, f := range from {
		if o.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	o.Status = to
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	if transactionID != "" {
		o.TransactionID = transactionID
	}
	o.UpdatedAt = time.Now()
	return true, nil
}

// ========== 订阅 ==========

func (s *Store) SaveSubscription(_ context.Context, sub *biz.AccountSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	s.subscriptions[sub.AccountID] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, accountID string) (*biz.AccountSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[accountID]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) ListActiveSubscriptions(_ context.Context, offset, limit int) ([]*biz.AccountSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*biz.AccountSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if sub.Status == constants.SubscriptionStatusActive {
			cp := *sub
			active = append(active, &cp)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].AccountID < active[j].AccountID })
	if offset >= len(active) {
		return []*biz.AccountSubscription{}, nil
	}
	end := offset + limit
	if end > len(active) {
		end = len(active)
	}
	return active[offset:end], nil
}

// ========== 阶段进度 ==========

func progressKey(accountID, workflowID string) string {
	return accountID + "|" + workflowID
}

func (s *Store) GetProgress(_ context.Context, accountID, workflowID string) (*biz.WorkflowProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[progressKey(accountID, workflowID)]
	if !ok {
		return nil, nil
	}
	return cloneProgress(p), nil
}

func (s *Store) SaveProgress(_ context.Context, progress *biz.WorkflowProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey(progress.AccountID, progress.WorkflowID)
	cp := cloneProgress(progress)
	// Spent 只由 AddStageSpend 修改
	if existing, ok := s.progress[key]; ok {
		for _, st := range cp.Stages {
			if old, _ := existing.Stage(st.ID); old != nil {
				st.Spent = old.Spent
			}
		}
	}
	s.progress[key] = cp
	return nil
}

func (s *Store) AddStageSpend(_ context.Context, accountID, workflowID, stageID string, amount int64) (*biz.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.progress[progressKey(accountID, workflowID)]
	if !ok {
		return nil, creditErrors.ErrUnknownStage
	}
	st, _ := p.Stage(stageID)
	if st == nil {
		return nil, creditErrors.ErrUnknownStage
	}
	st.Spent += amount
	cp := *st
	return &cp, nil
}

func cloneProgress(p *biz.WorkflowProgress) *biz.WorkflowProgress {
	cp := *p
	cp.Stages = make([]*biz.Stage, len(p.Stages))
	for i, st := range p.Stages {
		sc := *st
		cp.Stages[i] = &sc
	}
	return &cp
}

// ========== 版本 ==========

func (s *Store) CreateVersion(_ context.Context, v *biz.ArtifactVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.versions[v.ID]; exists {
		return fmt.Errorf("version %s already exists", v.ID)
	}
	s.versions[v.ID] = cloneVersion(v)
	s.versionOrder = append(s.versionOrder, v.ID)
	return nil
}

func (s *Store) GetVersion(_ context.Context, versionID string) (*biz.ArtifactVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.versions[versionID]; ok {
		return cloneVersion(v), nil
	}
	return nil, creditErrors.ErrVersionNotFound
}

func (s *Store) ListVersions(_ context.Context, rootID string) ([]*biz.ArtifactVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*biz.ArtifactVersion, 0)
	for _, id := range s.versionOrder {
		if v := s.versions[id]; v.RootID == rootID {
			out = append(out, cloneVersion(v))
		}
	}
	return out, nil
}

func cloneVersion(v *biz.ArtifactVersion) *biz.ArtifactVersion {
	cp := *v
	cp.Payload = append(json.RawMessage(nil), v.Payload...)
	cp.Options = append([]biz.OptionFlag(nil), v.Options...)
	return &cp
}
