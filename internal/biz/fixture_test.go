package biz_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"credit-service/internal/biz"
	"credit-service/internal/data/memory"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

type fixture struct {
	store    *memory.Store
	conf     *biz.BillingConfig
	notifier *biz.Notifier
	ledger   *biz.CreditLedger
	catalog  *biz.PricingCatalog
	tracker  *biz.StageProgressTracker
	gateway  *biz.ConsumptionGateway
	grants   *biz.GrantManager
	remix    *biz.RemixVersionManager
	stats    *biz.StatsUseCase
	payments *fakePayments
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith 可替换版本存储（用于模拟写入失败）
func newFixtureWith(t *testing.T, versions biz.VersionRepo) *fixture {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)
	store := memory.New()
	locker := memory.NewLocker()
	conf := biz.DefaultBillingConfig()

	catalog, err := biz.NewPricingCatalog(conf)
	require.NoError(t, err)

	if versions == nil {
		versions = store
	}
	f := &fixture{store: store, conf: conf, catalog: catalog, payments: &fakePayments{}}
	f.notifier = biz.NewNotifier(nil, conf, logger)
	f.ledger = biz.NewCreditLedger(store, locker, f.notifier, conf, logger)
	f.tracker = biz.NewStageProgressTracker(store, locker, conf, logger)
	f.gateway = biz.NewConsumptionGateway(catalog, f.ledger, f.tracker, logger)
	f.grants = biz.NewGrantManager(f.ledger, store, store, f.payments, locker, conf, logger)
	f.remix = biz.NewRemixVersionManager(versions, f.gateway, logger)
	f.stats = biz.NewStatsUseCase(store, logger)
	return f
}

// fund 以 bonus 方式给账户充值
func (f *fixture) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	_, err := f.ledger.Credit(context.Background(), accountID, biz.TxBonus, amount, biz.TxMeta{Description: "test funding"})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

func (f *fixture) requireConsistent(t *testing.T, accountID string) {
	t.Helper()
	audit, err := f.ledger.Verify(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, audit.Consistent, "balance %d != sum %d", audit.Balance, audit.Sum)
}

type fakePayments struct {
	mu       sync.Mutex
	requests []*biz.CreatePaymentRequest
	err      error
}

func (p *fakePayments) CreatePayment(_ context.Context, req *biz.CreatePaymentRequest) (*biz.CreatePaymentReply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, req)
	return &biz.CreatePaymentReply{PaymentID: "pay_" + req.OrderID, PayURL: "https://pay.example.com/" + req.OrderID}, nil
}

// failingVersions 写入总是失败的版本存储
type failingVersions struct {
	biz.VersionRepo
	fail bool
}

func (r *failingVersions) CreateVersion(ctx context.Context, v *biz.ArtifactVersion) error {
	if r.fail {
		return errors.New("disk full")
	}
	return r.VersionRepo.CreateVersion(ctx, v)
}
