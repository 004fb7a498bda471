package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	"credit-service/internal/data/memory"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPayments struct{}

func (stubPayments) CreatePayment(_ context.Context, req *biz.CreatePaymentRequest) (*biz.CreatePaymentReply, error) {
	return &biz.CreatePaymentReply{PaymentID: "pay_" + req.OrderID, PayURL: "https://pay.example.com/" + req.OrderID}, nil
}

func newTestServices(t *testing.T) (*CreditService, *CreditInternalService) {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)
	store := memory.New()
	locker := memory.NewLocker()
	conf := biz.DefaultBillingConfig()

	catalog, err := biz.NewPricingCatalog(conf)
	require.NoError(t, err)
	ledger := biz.NewCreditLedger(store, locker, biz.NewNotifier(nil, conf, logger), conf, logger)
	tracker := biz.NewStageProgressTracker(store, locker, conf, logger)
	gateway := biz.NewConsumptionGateway(catalog, ledger, tracker, logger)
	grants := biz.NewGrantManager(ledger, store, store, stubPayments{}, locker, conf, logger)
	remix := biz.NewRemixVersionManager(store, gateway, logger)
	stats := biz.NewStatsUseCase(store, logger)

	return NewCreditService(ledger, catalog, gateway, grants, tracker, remix, stats, logger),
		NewCreditInternalService(ledger, gateway, grants, logger)
}

func TestCreditInternalService_Consume(t *testing.T) {
	ctx := context.Background()
	svc, internal := newTestServices(t)

	_, err := internal.GrantBonus(ctx, &GrantBonusRequest{AccountID: "acct-1", Amount: 30, Reason: "welcome", IdempotencyKey: "welcome"})
	require.NoError(t, err)

	reply, err := internal.Consume(ctx, &ConsumeRequest{AccountID: "acct-1", ServiceID: "ai_analysis", Complexity: "standard"})
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, int64(20), reply.Cost)
	assert.Equal(t, int64(10), reply.Balance)
	require.NotNil(t, reply.Transaction)
	assert.Equal(t, "consumed", reply.Transaction.Type)

	// 余额不足是结果不是错误
	reply, err = internal.Consume(ctx, &ConsumeRequest{AccountID: "acct-1", ServiceID: "ai_analysis"})
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Equal(t, creditErrors.ReasonInsufficientFunds, reply.Reason)
	assert.Nil(t, reply.Transaction)

	_, err = internal.Consume(ctx, &ConsumeRequest{AccountID: "acct-1", ServiceID: "teleport"})
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownService))
	_, err = internal.Consume(ctx, &ConsumeRequest{AccountID: "acct-1", ServiceID: "basic_scan", Complexity: "ultra"})
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownComplexity))
	_, err = internal.Consume(ctx, &ConsumeRequest{AccountID: "acct-1", ServiceID: "basic_scan", Description: strings.Repeat("a", 256)})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidArgument))

	balance, err := svc.GetBalance(ctx, &GetBalanceRequest{AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance.Balance)

	audit, err := internal.AuditAccount(ctx, &AuditAccountRequest{AccountID: "acct-1"})
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
}

func TestCreditInternalService_PaymentCallback(t *testing.T) {
	ctx := context.Background()
	svc, internal := newTestServices(t)

	order, err := svc.CreatePurchase(ctx, &CreatePurchaseRequest{AccountID: "acct-1", PackageID: "starter"})
	require.NoError(t, err)
	require.NotNil(t, order.Order)

	_, err = internal.PaymentCallback(ctx, &PaymentCallbackRequest{OrderID: order.Order.ID, Status: constants.PaymentStatusSuccess, Amount: "abc"})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidArgument))
	_, err = internal.PaymentCallback(ctx, &PaymentCallbackRequest{Status: constants.PaymentStatusSuccess, Amount: "9.99"})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidArgument))

	req := &PaymentCallbackRequest{OrderID: order.Order.ID, PaymentID: "pay-1", Status: constants.PaymentStatusSuccess, Amount: "9.99"}
	reply, err := internal.PaymentCallback(ctx, req)
	require.NoError(t, err)
	assert.True(t, reply.Granted)
	assert.Equal(t, int64(600), reply.Balance)

	reply, err = internal.PaymentCallback(ctx, req)
	require.NoError(t, err)
	assert.False(t, reply.Granted)
	assert.Equal(t, int64(600), reply.Balance)
}

func TestCreditInternalService_GrantSubscription(t *testing.T) {
	ctx := context.Background()
	svc, internal := newTestServices(t)

	_, err := internal.GrantSubscription(ctx, &GrantSubscriptionRequest{AccountID: "acct-1", Period: "2026-01"})
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownTier))

	_, err = svc.Subscribe(ctx, &SubscribeRequest{AccountID: "acct-1", TierID: "basic"})
	require.NoError(t, err)

	first, err := internal.GrantSubscription(ctx, &GrantSubscriptionRequest{AccountID: "acct-1", Period: "2026-01"})
	require.NoError(t, err)
	assert.True(t, first.Granted)

	again, err := internal.GrantSubscription(ctx, &GrantSubscriptionRequest{AccountID: "acct-1", Period: "2026-01"})
	require.NoError(t, err)
	assert.False(t, again.Granted)
	assert.Equal(t, first.Balance, again.Balance)
}

func TestCreditService_Quote(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t)

	reply, err := svc.Quote(ctx, &QuoteRequest{ServiceID: "document_ocr", Units: 3})
	require.NoError(t, err)
	assert.Equal(t, "standard", reply.Complexity)
	assert.Equal(t, int32(3), reply.Units)
	assert.Equal(t, int64(30), reply.Cost)

	_, err = svc.Quote(ctx, &QuoteRequest{ServiceID: "teleport"})
	assert.True(t, errors.Is(err, creditErrors.ErrUnknownService))

	rules, err := svc.ListPricingRules(ctx, &ListPricingRulesRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, rules.Rules)
	assert.Len(t, rules.Multipliers, 5)
}

func TestCreditService_Versions(t *testing.T) {
	ctx := context.Background()
	svc, internal := newTestServices(t)

	_, err := internal.GrantBonus(ctx, &GrantBonusRequest{AccountID: "acct-1", Amount: 100, Reason: "test", IdempotencyKey: "seed"})
	require.NoError(t, err)

	root, err := svc.CreateRootVersion(ctx, &CreateRootVersionRequest{
		AccountID: "acct-1",
		Payload:   json.RawMessage(`{"destination":"Lisbon","dates":{"start":"2026-05-01","end":"2026-05-04"}}`),
	})
	require.NoError(t, err)
	require.True(t, root.OK)
	require.NotNil(t, root.Version)

	suggestions, err := svc.GetSuggestions(ctx, &VersionRequest{AccountID: "acct-1", VersionID: root.Version.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"addActivities", "changeAccommodation"}, suggestions.Options)

	child, err := svc.Remix(ctx, &RemixRequest{
		AccountID: "acct-1",
		VersionID: root.Version.ID,
		CostTier:  "basic",
		Options:   map[string]bool{"addActivities": true},
	})
	require.NoError(t, err)
	require.True(t, child.OK)
	assert.Equal(t, root.Version.ID, child.Version.ParentID)

	tree, err := svc.ListVersions(ctx, &VersionRequest{AccountID: "acct-1", VersionID: child.Version.ID})
	require.NoError(t, err)
	assert.Len(t, tree.Versions, 2)

	_, err = svc.Remix(ctx, &RemixRequest{AccountID: "acct-1", VersionID: root.Version.ID})
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidArgument))

	_, err = svc.GetVersion(ctx, &VersionRequest{AccountID: "acct-2", VersionID: root.Version.ID})
	assert.True(t, errors.Is(err, creditErrors.ErrVersionNotFound))
}
