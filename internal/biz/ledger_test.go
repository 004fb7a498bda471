package biz_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"credit-service/internal/biz"
	creditErrors "credit-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditLedger_EmptyAccount(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, int64(0), f.balance(t, "acct-new"))
	f.requireConsistent(t, "acct-new")

	_, err := f.ledger.Balance(context.Background(), "")
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidArgument))
}

func TestCreditLedger_CreditAndDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tx, err := f.ledger.Credit(ctx, "acct-1", biz.TxGranted, 100, biz.TxMeta{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), tx.Amount)
	assert.Equal(t, int64(100), tx.BalanceAfter)

	tx, err = f.ledger.TryDebit(ctx, "acct-1", 30, biz.TxMeta{ServiceID: biz.ServiceBasicScan})
	require.NoError(t, err)
	assert.Equal(t, biz.TxConsumed, tx.Type)
	assert.Equal(t, int64(-30), tx.Amount)
	assert.Equal(t, int64(70), tx.BalanceAfter)

	assert.Equal(t, int64(70), f.balance(t, "acct-1"))
	f.requireConsistent(t, "acct-1")
}

func TestCreditLedger_InsufficientFundsLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 10)

	_, err := f.ledger.TryDebit(ctx, "acct-1", 11, biz.TxMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, creditErrors.ErrInsufficientFunds))

	assert.Equal(t, int64(10), f.balance(t, "acct-1"))
	txs, err := f.ledger.Transactions(ctx, "acct-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	f.requireConsistent(t, "acct-1")
}

func TestCreditLedger_InvalidAmounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.TryDebit(ctx, "acct-1", 0, biz.TxMeta{})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidAmount))

	_, err = f.ledger.Credit(ctx, "acct-1", biz.TxBonus, -5, biz.TxMeta{})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidAmount))

	_, err = f.ledger.Credit(ctx, "acct-1", biz.TxConsumed, 5, biz.TxMeta{})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidAmount))

	assert.Equal(t, int64(0), f.balance(t, "acct-1"))
}

func TestCreditLedger_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Credit(ctx, "acct-1", biz.TxBonus, 50, biz.TxMeta{IdempotencyKey: "welcome:acct-1"})
	require.NoError(t, err)
	_, err = f.ledger.Credit(ctx, "acct-1", biz.TxBonus, 50, biz.TxMeta{IdempotencyKey: "welcome:acct-1"})
	assert.True(t, errors.Is(err, creditErrors.ErrDuplicateGrant))

	assert.Equal(t, int64(50), f.balance(t, "acct-1"))

	found, err := f.ledger.FindByIdempotencyKey(ctx, "welcome:acct-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(50), found.Amount)

	missing, err := f.ledger.FindByIdempotencyKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreditLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 100)

	var (
		wg        sync.WaitGroup
		succeeded int64
		denied    int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.TryDebit(ctx, "acct-1", 3, biz.TxMeta{})
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case errors.Is(err, creditErrors.ErrInsufficientFunds):
				atomic.AddInt64(&denied, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(33), succeeded)
	assert.Equal(t, int64(17), denied)
	assert.Equal(t, int64(1), f.balance(t, "acct-1"))
	f.requireConsistent(t, "acct-1")
}

func TestCreditLedger_TransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, amount := range []int64{10, 20, 30} {
		f.fund(t, "acct-1", amount)
	}
	f.fund(t, "acct-2", 99)

	txs, err := f.ledger.Transactions(ctx, "acct-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(30), txs[0].Amount)
	assert.Equal(t, int64(20), txs[1].Amount)

	txs, err = f.ledger.Transactions(ctx, "acct-1", 10, 2)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(10), txs[0].Amount)
}

func TestCreditLedger_PublishesBalanceChanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var events []*biz.BalanceChangedEvent
	f.notifier.Subscribe(func(_ context.Context, e *biz.BalanceChangedEvent) {
		events = append(events, e)
	})

	f.fund(t, "acct-1", 40)
	_, err := f.ledger.TryDebit(ctx, "acct-1", 15, biz.TxMeta{})
	require.NoError(t, err)
	_, err = f.ledger.TryDebit(ctx, "acct-1", 100, biz.TxMeta{})
	require.Error(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, int64(40), events[0].NewBalance)
	assert.Equal(t, biz.TxBonus, events[0].Reason)
	assert.Equal(t, int64(-15), events[1].Delta)
	assert.Equal(t, int64(25), events[1].NewBalance)
	assert.Equal(t, biz.TxConsumed, events[1].Reason)
}
