package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendTx(t *testing.T, s *Store, accountID string, amount int64, key string) *biz.Account {
	t.Helper()
	ctx := context.Background()
	acct, err := s.GetAccount(ctx, accountID)
	require.NoError(t, err)
	txType := biz.TxBonus
	if amount < 0 {
		txType = biz.TxConsumed
	}
	updated, err := s.AppendTransaction(ctx, acct, &biz.Transaction{
		ID:             fmt.Sprintf("tx-%d", time.Now().UnixNano()),
		AccountID:      accountID,
		Type:           txType,
		Amount:         amount,
		IdempotencyKey: key,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	return updated
}

func TestStore_AppendTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()

	acct := appendTx(t, s, "acct-1", 50, "")
	assert.Equal(t, int64(50), acct.Balance)
	assert.Equal(t, int64(1), acct.Version)

	// 过期版本
	_, err := s.AppendTransaction(ctx, &biz.Account{ID: "acct-1", Version: 0}, &biz.Transaction{ID: "stale", AccountID: "acct-1", Amount: 1})
	assert.True(t, errors.Is(err, creditErrors.ErrVersionConflict))

	// 透支
	_, err = s.AppendTransaction(ctx, acct, &biz.Transaction{ID: "over", AccountID: "acct-1", Amount: -51})
	assert.True(t, errors.Is(err, creditErrors.ErrInsufficientFunds))

	appendTx(t, s, "acct-1", 10, "k1")
	current, err := s.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, current, &biz.Transaction{ID: "dup", AccountID: "acct-1", Amount: 10, IdempotencyKey: "k1"})
	assert.True(t, errors.Is(err, creditErrors.ErrDuplicateGrant))

	balance, err := s.GetBalance(ctx, "acct-1")
	require.NoError(t, err)
	sum, err := s.SumTransactions(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)
	assert.Equal(t, balance, sum)

	_, err = s.GetTransaction(ctx, "stale")
	assert.True(t, errors.Is(err, creditErrors.ErrTransactionNotFound))
}

func TestStore_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	appendTx(t, s, "acct-1", 50, "k")

	tx, err := s.FindByIdempotencyKey(ctx, "k")
	require.NoError(t, err)
	tx.Amount = 9999

	again, err := s.FindByIdempotencyKey(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(50), again.Amount)
}

func TestStore_ListActiveSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		status := constants.SubscriptionStatusActive
		if i == 2 {
			status = constants.SubscriptionStatusCanceled
		}
		require.NoError(t, s.SaveSubscription(ctx, &biz.AccountSubscription{
			AccountID: fmt.Sprintf("acct-%d", i),
			TierID:    "basic",
			Status:    status,
		}))
	}

	page, err := s.ListActiveSubscriptions(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "acct-0", page[0].AccountID)
	assert.Equal(t, "acct-3", page[2].AccountID)

	page, err = s.ListActiveSubscriptions(ctx, 3, 3)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "acct-4", page[0].AccountID)

	page, err = s.ListActiveSubscriptions(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestStore_UpdatePurchaseOrderStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreatePurchaseOrder(ctx, &biz.PurchaseOrder{ID: "o-1", Status: constants.OrderStatusPending}))
	assert.Error(t, s.CreatePurchaseOrder(ctx, &biz.PurchaseOrder{ID: "o-1"}))

	ok, err := s.UpdatePurchaseOrderStatus(ctx, "o-1", []string{constants.OrderStatusFailed}, constants.OrderStatusSuccess, "", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdatePurchaseOrderStatus(ctx, "o-1", []string{constants.OrderStatusPending}, constants.OrderStatusSuccess, "pay-1", "tx-1")
	require.NoError(t, err)
	assert.True(t, ok)

	order, err := s.GetPurchaseOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusSuccess, order.Status)
	assert.Equal(t, "pay-1", order.PaymentID)
	assert.Equal(t, "tx-1", order.TransactionID)

	_, err = s.UpdatePurchaseOrderStatus(ctx, "o-2", nil, constants.OrderStatusSuccess, "", "")
	assert.True(t, errors.Is(err, creditErrors.ErrPurchaseNotFound))
}

func TestStore_SaveProgressKeepsSpent(t *testing.T) {
	ctx := context.Background()
	s := New()
	progress := &biz.WorkflowProgress{
		AccountID:  "acct-1",
		WorkflowID: "wf",
		Stages:     []*biz.Stage{{ID: "initial", State: biz.StageAvailable, Budget: 50}},
	}
	require.NoError(t, s.SaveProgress(ctx, progress))

	stage, err := s.AddStageSpend(ctx, "acct-1", "wf", "initial", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), stage.Spent)

	progress.Stages[0].State = biz.StageCompleted
	require.NoError(t, s.SaveProgress(ctx, progress))

	loaded, err := s.GetProgress(ctx, "acct-1", "wf")
	require.NoError(t, err)
	assert.Equal(t, biz.StageCompleted, loaded.Stages[0].State)
	assert.Equal(t, int64(20), loaded.Stages[0].Spent)

	_, err = s.AddStageSpend(ctx, "acct-1", "wf", "missing", 1)
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownStage))
}
