package biz_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/data/memory"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOrder(t *testing.T, f *fixture, accountID, packageID string) *biz.PurchaseOrder {
	t.Helper()
	order, payURL, err := f.grants.CreatePurchase(context.Background(), accountID, packageID, "https://app.example.com/done")
	require.NoError(t, err)
	assert.NotEmpty(t, payURL)
	return order
}

func TestPurchasePackage_GrantsBaseAndBonus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	order := createOrder(t, f, "acct-1", "starter")
	assert.Equal(t, constants.OrderStatusPending, order.Status)
	require.Len(t, f.payments.requests, 1)
	assert.True(t, decimal.RequireFromString("9.99").Equal(f.payments.requests[0].Amount))

	res, err := f.grants.PurchasePackage(ctx, &biz.PaymentConfirmation{
		OrderID:   order.ID,
		PaymentID: "pay-1",
		Status:    constants.PaymentStatusSuccess,
		Amount:    decimal.RequireFromString("9.99"),
	})
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, int64(600), res.Balance)
	assert.Equal(t, biz.TxPurchased, res.Transaction.Type)
	assert.Equal(t, order.ID, res.Transaction.RelatedID)

	stored, err := f.grants.GetPurchase(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusSuccess, stored.Status)
	assert.Equal(t, res.Transaction.ID, stored.TransactionID)
	f.requireConsistent(t, "acct-1")
}

func TestPurchasePackage_DuplicateWebhookGrantsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := createOrder(t, f, "acct-1", "pro")

	confirm := &biz.PaymentConfirmation{OrderID: order.ID, Status: "success", Amount: decimal.RequireFromString("29.99")}
	first, err := f.grants.PurchasePackage(ctx, confirm)
	require.NoError(t, err)
	require.True(t, first.Granted)

	second, err := f.grants.PurchasePackage(ctx, confirm)
	require.NoError(t, err)
	assert.False(t, second.Granted)
	assert.Equal(t, int64(2500), second.Balance)
	require.NotNil(t, second.Transaction)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	assert.Equal(t, int64(2500), f.balance(t, "acct-1"))
}

func TestPurchasePackage_Unconfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	failed := createOrder(t, f, "acct-1", "starter")
	_, err := f.grants.PurchasePackage(ctx, &biz.PaymentConfirmation{OrderID: failed.ID, Status: "FAILED"})
	assert.True(t, errors.Is(err, creditErrors.ErrPaymentUnconfirmed))
	stored, err := f.grants.GetPurchase(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusFailed, stored.Status)

	mismatch := createOrder(t, f, "acct-1", "starter")
	_, err = f.grants.PurchasePackage(ctx, &biz.PaymentConfirmation{
		OrderID: mismatch.ID,
		Status:  constants.PaymentStatusSuccess,
		Amount:  decimal.RequireFromString("0.99"),
	})
	assert.True(t, errors.Is(err, creditErrors.ErrPaymentUnconfirmed))

	_, err = f.grants.PurchasePackage(ctx, &biz.PaymentConfirmation{OrderID: "purchase_missing", Status: constants.PaymentStatusSuccess})
	assert.True(t, errors.Is(err, creditErrors.ErrPurchaseNotFound))

	assert.Equal(t, int64(0), f.balance(t, "acct-1"))
}

func TestCancelPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	order := createOrder(t, f, "acct-1", "starter")
	canceled, err := f.grants.CancelPurchase(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusCanceled, canceled.Status)

	// 已取消的订单不再发放
	_, err = f.grants.PurchasePackage(ctx, &biz.PaymentConfirmation{OrderID: order.ID, Status: constants.PaymentStatusSuccess})
	assert.True(t, errors.Is(err, creditErrors.ErrPaymentUnconfirmed))
	assert.Equal(t, int64(0), f.balance(t, "acct-1"))

	paid := createOrder(t, f, "acct-1", "starter")
	_, err = f.grants.PurchasePackage(ctx, &biz.PaymentConfirmation{OrderID: paid.ID, Status: constants.PaymentStatusSuccess})
	require.NoError(t, err)
	_, err = f.grants.CancelPurchase(ctx, paid.ID)
	assert.True(t, errors.Is(err, creditErrors.ErrPurchaseNotCancelable))
}

func TestCreatePurchase_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.grants.CreatePurchase(ctx, "acct-1", "mega", "")
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownPackage))

	f.payments.err = errors.New("connection refused")
	_, _, err = f.grants.CreatePurchase(ctx, "acct-1", "starter", "")
	assert.True(t, errors.Is(err, creditErrors.ErrPaymentCreateFailed))

	store := memory.New()
	logger := log.NewStdLogger(io.Discard)
	ledger := biz.NewCreditLedger(store, memory.NewLocker(), nil, f.conf, logger)
	noPayments := biz.NewGrantManager(ledger, store, store, nil, memory.NewLocker(), f.conf, logger)
	_, _, err = noPayments.CreatePurchase(ctx, "acct-1", "starter", "")
	assert.True(t, errors.Is(err, creditErrors.ErrPaymentServiceUnavailable))
}

func TestGrantSubscriptionCredits_OncePerPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.grants.GrantSubscriptionCredits(ctx, "acct-1", "basic", "2025-03")
	require.NoError(t, err)
	assert.True(t, first.Granted)
	assert.Equal(t, int64(200), first.Balance)

	second, err := f.grants.GrantSubscriptionCredits(ctx, "acct-1", "basic", "2025-03")
	require.NoError(t, err)
	assert.False(t, second.Granted)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	next, err := f.grants.GrantSubscriptionCredits(ctx, "acct-1", "basic", "2025-04")
	require.NoError(t, err)
	assert.True(t, next.Granted)
	assert.Equal(t, int64(400), f.balance(t, "acct-1"))

	_, err = f.grants.GrantSubscriptionCredits(ctx, "acct-1", "gold", "2025-04")
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownTier))
}

func TestGrantPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.grants.Subscribe(ctx, "acct-a", "basic")
	require.NoError(t, err)
	_, err = f.grants.Subscribe(ctx, "acct-b", "premium")
	require.NoError(t, err)
	_, err = f.grants.Subscribe(ctx, "acct-c", "basic")
	require.NoError(t, err)
	_, err = f.grants.Unsubscribe(ctx, "acct-c")
	require.NoError(t, err)

	granted, accounts, err := f.grants.GrantPeriod(ctx, "2025-06")
	require.NoError(t, err)
	assert.Equal(t, 2, granted)
	assert.ElementsMatch(t, []string{"acct-a", "acct-b"}, accounts)

	granted, _, err = f.grants.GrantPeriod(ctx, "2025-06")
	require.NoError(t, err)
	assert.Equal(t, 0, granted)

	assert.Equal(t, int64(200), f.balance(t, "acct-a"))
	assert.Equal(t, int64(1000), f.balance(t, "acct-b"))
	assert.Equal(t, int64(0), f.balance(t, "acct-c"))
}

func TestValidatePeriodKey(t *testing.T) {
	assert.NoError(t, biz.ValidatePeriodKey("2025-01"))
	for _, bad := range []string{"", "2025-1", "2025-13", "2025/01", "202501"} {
		assert.True(t, errors.Is(biz.ValidatePeriodKey(bad), creditErrors.ErrInvalidPeriod), bad)
	}
}

func TestGrantBonus_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.grants.GrantBonus(ctx, "acct-1", 25, "referral", "referral:acct-9")
	require.NoError(t, err)
	assert.True(t, res.Granted)

	res, err = f.grants.GrantBonus(ctx, "acct-1", 25, "referral", "referral:acct-9")
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Equal(t, int64(25), res.Balance)
}
