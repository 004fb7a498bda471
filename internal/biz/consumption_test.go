package biz_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsume_Allowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 100)

	res, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{
		AccountID:  "acct-1",
		ServiceID:  biz.ServiceAIAnalysis,
		Complexity: biz.ComplexityPremium,
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int64(40), res.Cost)
	assert.Equal(t, int64(60), res.Balance)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, biz.ServiceAIAnalysis, res.Transaction.ServiceID)
	assert.Equal(t, int64(-40), res.Transaction.Amount)
	f.requireConsistent(t, "acct-1")
}

func TestConsume_InsufficientFundsIsNotAnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 10)

	res, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{
		AccountID: "acct-1",
		ServiceID: biz.ServiceAdvancedAnalysis,
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, creditErrors.ReasonInsufficientFunds, res.Reason)
	assert.Equal(t, int64(15), res.Cost)
	assert.Equal(t, int64(10), res.Balance)
	assert.Nil(t, res.Transaction)

	txs, err := f.ledger.Transactions(ctx, "acct-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestConsume_UnknownServiceChargesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 10)

	_, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: "teleport"})
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownService))
	assert.Equal(t, int64(10), f.balance(t, "acct-1"))
}

func TestConsume_IdempotencyKeyReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 100)

	req := func() *biz.ConsumeRequest {
		return &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceBasicScan, IdempotencyKey: "req-42"}
	}
	first, err := f.gateway.Consume(ctx, req())
	require.NoError(t, err)
	require.True(t, first.OK)
	assert.False(t, first.Replayed)

	second, err := f.gateway.Consume(ctx, req())
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, int64(5), second.Cost)

	assert.Equal(t, int64(95), f.balance(t, "acct-1"))
}

func TestConsume_Units(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 100)

	res, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceDocumentOCR, Units: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Cost)
	assert.Equal(t, 4, res.Transaction.Units)
}

func TestConsume_DoesNotModifyRequest(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "acct-1", 100)

	req := &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceBasicScan}
	res, err := f.gateway.Consume(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, biz.ComplexityStandard, res.Transaction.Complexity)
	assert.Equal(t, 1, res.Transaction.Units)
	assert.Equal(t, biz.ComplexityTier(""), req.Complexity)
	assert.Zero(t, req.Units)
}

func TestConsume_OverflowingUnitsRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "acct-1", 100)

	_, err := f.gateway.Consume(context.Background(), &biz.ConsumeRequest{
		AccountID: "acct-1",
		ServiceID: biz.ServiceBasicScan,
		Units:     3689348814741910324,
	})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidAmount))
	assert.Equal(t, int64(100), f.balance(t, "acct-1"))
}

func TestConsume_DescriptionTooLong(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "acct-1", 100)

	_, err := f.gateway.Consume(context.Background(), &biz.ConsumeRequest{
		AccountID:   "acct-1",
		ServiceID:   biz.ServiceBasicScan,
		Description: strings.Repeat("x", constants.MaxDescriptionLength+1),
	})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidArgument))
	assert.Equal(t, int64(100), f.balance(t, "acct-1"))

	// 多字节字符按字符计数
	res, err := f.gateway.Consume(context.Background(), &biz.ConsumeRequest{
		AccountID:   "acct-1",
		ServiceID:   biz.ServiceBasicScan,
		Description: strings.Repeat("行", constants.MaxDescriptionLength),
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 50)

	res, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceAIAnalysis})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, int64(30), f.balance(t, "acct-1"))

	refund, err := f.gateway.Refund(ctx, "acct-1", res.Transaction.ID, "provider timeout")
	require.NoError(t, err)
	assert.Equal(t, biz.TxRefunded, refund.Type)
	assert.Equal(t, int64(20), refund.Amount)
	assert.Equal(t, res.Transaction.ID, refund.RelatedID)
	assert.Equal(t, int64(50), f.balance(t, "acct-1"))

	// 重复退款返回同一笔流水
	again, err := f.gateway.Refund(ctx, "acct-1", res.Transaction.ID, "retry")
	require.NoError(t, err)
	assert.Equal(t, refund.ID, again.ID)
	assert.Equal(t, int64(50), f.balance(t, "acct-1"))
	f.requireConsistent(t, "acct-1")
}

func TestRefund_Rejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 50)

	txs, err := f.ledger.Transactions(ctx, "acct-1", 1, 0)
	require.NoError(t, err)
	_, err = f.gateway.Refund(ctx, "acct-1", txs[0].ID, "")
	assert.True(t, errors.Is(err, creditErrors.ErrRefundNotAllowed))

	res, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceBasicScan})
	require.NoError(t, err)
	_, err = f.gateway.Refund(ctx, "acct-2", res.Transaction.ID, "")
	assert.True(t, errors.Is(err, creditErrors.ErrTransactionNotFound))

	_, err = f.gateway.Refund(ctx, "acct-1", "missing", "")
	assert.True(t, errors.Is(err, creditErrors.ErrTransactionNotFound))
}

func TestPerform_RefundsFailedAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 30)

	actionErr := errors.New("ocr provider down")
	res, err := f.gateway.Perform(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceDocumentOCR},
		func(context.Context) error { return actionErr })
	require.ErrorIs(t, err, actionErr)
	assert.Equal(t, int64(30), res.Balance)
	assert.Equal(t, int64(30), f.balance(t, "acct-1"))
	f.requireConsistent(t, "acct-1")
}

func TestPerform_RefundsWithLongActionError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 30)

	actionErr := errors.New(strings.Repeat("upstream said no; ", 30))
	_, err := f.gateway.Perform(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceDocumentOCR},
		func(context.Context) error { return actionErr })
	require.ErrorIs(t, err, actionErr)
	assert.Equal(t, int64(30), f.balance(t, "acct-1"))
	f.requireConsistent(t, "acct-1")
}

func TestPerform_SkipsActionWhenDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	called := false
	res, err := f.gateway.Perform(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceBasicScan},
		func(context.Context) error { called = true; return nil })
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, called)
}

func TestConsume_StageGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 200)

	_, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{
		AccountID:  "acct-1",
		ServiceID:  biz.ServiceBasicScan,
		WorkflowID: "visa-1",
		StageID:    "compliance",
	})
	assert.True(t, errors.Is(err, creditErrors.ErrStageLocked))
	assert.Equal(t, int64(200), f.balance(t, "acct-1"))

	res, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{
		AccountID:  "acct-1",
		ServiceID:  biz.ServiceItineraryGeneration,
		Complexity: biz.ComplexityEnterprise,
		WorkflowID: "visa-1",
		StageID:    "initial",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotNil(t, res.BudgetWarning)
	assert.Equal(t, "initial", res.BudgetWarning.StageID)
	assert.Equal(t, int64(50), res.BudgetWarning.Budget)
	assert.Equal(t, int64(75), res.BudgetWarning.Spent)

	spent, err := f.tracker.GetStageCreditsUsed(ctx, "acct-1", "visa-1", "initial")
	require.NoError(t, err)
	assert.Equal(t, int64(75), spent)
}
