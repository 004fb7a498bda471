package service

import (
	"context"
	"fmt"
	"time"

	"credit-service/internal/biz"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// CreditService 面向前端的服务
type CreditService struct {
	ledger  *biz.CreditLedger
	catalog *biz.PricingCatalog
	gateway *biz.ConsumptionGateway
	grants  *biz.GrantManager
	tracker *biz.StageProgressTracker
	remix   *biz.RemixVersionManager
	stats   *biz.StatsUseCase
	log     *log.Helper
}

// NewCreditService 创建 CreditService
func NewCreditService(
	ledger *biz.CreditLedger,
	catalog *biz.PricingCatalog,
	gateway *biz.ConsumptionGateway,
	grants *biz.GrantManager,
	tracker *biz.StageProgressTracker,
	remix *biz.RemixVersionManager,
	stats *biz.StatsUseCase,
	logger log.Logger,
) *CreditService {
	return &CreditService{
		ledger:  ledger,
		catalog: catalog,
		gateway: gateway,
		grants:  grants,
		tracker: tracker,
		remix:   remix,
		stats:   stats,
		log:     log.NewHelper(logger),
	}
}

// GetBalance 查询余额
func (s *CreditService) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceReply, error) {
	balance, err := s.ledger.Balance(ctx, req.AccountID)
	if err != nil {
		s.log.Errorf("GetBalance failed: %v", err)
		return nil, err
	}
	return &GetBalanceReply{AccountID: req.AccountID, Balance: balance}, nil
}

// ListTransactions 查询流水（最新在前）
func (s *CreditService) ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsReply, error) {
	txs, err := s.ledger.Transactions(ctx, req.AccountID, int(req.Limit), int(req.Offset))
	if err != nil {
		s.log.Errorf("ListTransactions failed: %v", err)
		return nil, err
	}
	reply := &ListTransactionsReply{Transactions: make([]*TransactionInfo, 0, len(txs))}
	for _, tx := range txs {
		reply.Transactions = append(reply.Transactions, toTransactionInfo(tx))
	}
	return reply, nil
}

// GetUsage 消费统计
func (s *CreditService) GetUsage(ctx context.Context, req *GetUsageRequest) (*GetUsageReply, error) {
	summary, err := s.stats.GetUsage(ctx, req.AccountID, req.Period, time.Now())
	if err != nil {
		s.log.Errorf("GetUsage failed: %v", err)
		return nil, err
	}
	reply := &GetUsageReply{
		AccountID:    summary.AccountID,
		Period:       summary.Period,
		From:         formatTime(summary.From),
		To:           formatTime(summary.To),
		TotalCount:   int32(summary.TotalCount),
		TotalCredits: summary.TotalCredits,
		Services:     make([]*ServiceUsageInfo, 0, len(summary.Services)),
	}
	for _, u := range summary.Services {
		reply.Services = append(reply.Services, &ServiceUsageInfo{
			ServiceID: string(u.ServiceID),
			Count:     int32(u.Count),
			Credits:   u.Credits,
			Refunded:  u.Refunded,
		})
	}
	return reply, nil
}

// Quote 报价
func (s *CreditService) Quote(ctx context.Context, req *QuoteRequest) (*QuoteReply, error) {
	service, err := biz.ParseServiceID(req.ServiceID)
	if err != nil {
		return nil, err
	}
	tier, err := biz.ParseComplexityTier(req.Complexity)
	if err != nil {
		return nil, err
	}
	units := req.Units
	if units <= 0 {
		units = 1
	}
	cost, err := s.gateway.Quote(service, tier, int(units))
	if err != nil {
		return nil, err
	}
	return &QuoteReply{
		ServiceID:  string(service),
		Complexity: string(tier),
		Units:      units,
		Cost:       cost,
	}, nil
}

// ListPricingRules 定价规则与档位倍率
func (s *CreditService) ListPricingRules(ctx context.Context, req *ListPricingRulesRequest) (*ListPricingRulesReply, error) {
	rules := s.catalog.Rules()
	reply := &ListPricingRulesReply{
		Rules:       make([]*PricingRuleInfo, 0, len(rules)),
		Multipliers: make(map[string]string),
	}
	for _, r := range rules {
		reply.Rules = append(reply.Rules, &PricingRuleInfo{ServiceID: string(r.ServiceID), BaseCost: r.BaseCost})
	}
	for _, tier := range []biz.ComplexityTier{
		biz.ComplexityBasic,
		biz.ComplexityStandard,
		biz.ComplexityAdvanced,
		biz.ComplexityPremium,
		biz.ComplexityEnterprise,
	} {
		m, err := s.catalog.Multiplier(tier)
		if err != nil {
			return nil, err
		}
		reply.Multipliers[string(tier)] = m.String()
	}
	return reply, nil
}

// ListPackages 积分包列表
func (s *CreditService) ListPackages(ctx context.Context, req *ListPackagesRequest) (*ListPackagesReply, error) {
	pkgs := s.grants.Packages()
	reply := &ListPackagesReply{Packages: make([]*PackageInfo, 0, len(pkgs))}
	for _, p := range pkgs {
		reply.Packages = append(reply.Packages, &PackageInfo{
			ID:           p.ID,
			Name:         p.Name,
			Price:        p.Price.StringFixed(2),
			Currency:     p.Currency,
			BaseCredits:  p.BaseCredits,
			BonusCredits: p.BonusCredits,
			TotalCredits: p.TotalCredits(),
		})
	}
	return reply, nil
}

// CreatePurchase 发起积分包购买
func (s *CreditService) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest) (*PurchaseReply, error) {
	order, payURL, err := s.grants.CreatePurchase(ctx, req.AccountID, req.PackageID, req.ReturnURL)
	if err != nil {
		s.log.Errorf("CreatePurchase failed: %v", err)
		return nil, err
	}
	return &PurchaseReply{Order: toPurchaseOrderInfo(order), PayURL: payURL}, nil
}

// GetPurchase 查询购买订单
func (s *CreditService) GetPurchase(ctx context.Context, req *GetPurchaseRequest) (*PurchaseReply, error) {
	order, err := s.grants.GetPurchase(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return &PurchaseReply{Order: toPurchaseOrderInfo(order)}, nil
}

// CancelPurchase 取消未支付订单
func (s *CreditService) CancelPurchase(ctx context.Context, req *CancelPurchaseRequest) (*PurchaseReply, error) {
	order, err := s.grants.CancelPurchase(ctx, req.OrderID)
	if err != nil {
		s.log.Errorf("CancelPurchase failed: %v", err)
		return nil, err
	}
	return &PurchaseReply{Order: toPurchaseOrderInfo(order)}, nil
}

// Subscribe 订阅
func (s *CreditService) Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscriptionReply, error) {
	sub, err := s.grants.Subscribe(ctx, req.AccountID, req.TierID)
	if err != nil {
		s.log.Errorf("Subscribe failed: %v", err)
		return nil, err
	}
	return toSubscriptionReply(req.AccountID, sub), nil
}

// GetSubscription 查询订阅，未订阅时只返回账户ID
func (s *CreditService) GetSubscription(ctx context.Context, req *GetSubscriptionRequest) (*SubscriptionReply, error) {
	sub, err := s.grants.GetSubscription(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return toSubscriptionReply(req.AccountID, sub), nil
}

// Unsubscribe 取消订阅
func (s *CreditService) Unsubscribe(ctx context.Context, req *UnsubscribeRequest) (*SubscriptionReply, error) {
	sub, err := s.grants.Unsubscribe(ctx, req.AccountID)
	if err != nil {
		s.log.Errorf("Unsubscribe failed: %v", err)
		return nil, err
	}
	return toSubscriptionReply(req.AccountID, sub), nil
}

// GetWorkflow 工作流阶段列表，首次访问时初始化
func (s *CreditService) GetWorkflow(ctx context.Context, req *WorkflowRequest) (*WorkflowReply, error) {
	progress, err := s.tracker.Stages(ctx, req.AccountID, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	return toWorkflowReply(progress), nil
}

// CanAccessStage 阶段是否已解锁
func (s *CreditService) CanAccessStage(ctx context.Context, req *StageRequest) (*CanAccessStageReply, error) {
	ok, err := s.tracker.CanAccessStage(ctx, req.AccountID, req.WorkflowID, req.StageID)
	if err != nil {
		return nil, err
	}
	return &CanAccessStageReply{StageID: req.StageID, Accessible: ok}, nil
}

// SetCurrentStage 进入阶段
func (s *CreditService) SetCurrentStage(ctx context.Context, req *StageRequest) (*StageReply, error) {
	stage, err := s.tracker.SetCurrentStage(ctx, req.AccountID, req.WorkflowID, req.StageID)
	if err != nil {
		return nil, err
	}
	return &StageReply{Stage: toStageInfo(stage)}, nil
}

// CompleteStage 完成阶段并解锁下一阶段
func (s *CreditService) CompleteStage(ctx context.Context, req *StageRequest) (*WorkflowReply, error) {
	progress, err := s.tracker.CompleteStage(ctx, req.AccountID, req.WorkflowID, req.StageID)
	if err != nil {
		s.log.Errorf("CompleteStage failed: %v", err)
		return nil, err
	}
	return toWorkflowReply(progress), nil
}

// GetStageCredits 阶段已用积分
func (s *CreditService) GetStageCredits(ctx context.Context, req *StageRequest) (*StageCreditsReply, error) {
	spent, err := s.tracker.GetStageCreditsUsed(ctx, req.AccountID, req.WorkflowID, req.StageID)
	if err != nil {
		return nil, err
	}
	return &StageCreditsReply{StageID: req.StageID, Spent: spent}, nil
}

// CreateRootVersion 生成根版本（按 itinerary_generation 计费）
func (s *CreditService) CreateRootVersion(ctx context.Context, req *CreateRootVersionRequest) (*RemixReply, error) {
	res, err := s.remix.CreateRootVersion(ctx, req.AccountID, req.Payload, req.Description)
	if err != nil {
		s.log.Errorf("CreateRootVersion failed: %v", err)
		return nil, err
	}
	return toRemixReply(res), nil
}

// Remix 基于已有版本付费生成新版本，余额不足时 ok=false 且不创建版本
func (s *CreditService) Remix(ctx context.Context, req *RemixRequest) (*RemixReply, error) {
	if req.CostTier == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("cost tier is required"))
	}
	options := make(map[biz.OptionFlag]bool, len(req.Options))
	for k, v := range req.Options {
		options[biz.OptionFlag(k)] = v
	}
	res, err := s.remix.CreateVersion(ctx, &biz.RemixRequest{
		AccountID:   req.AccountID,
		ParentID:    req.VersionID,
		CostTier:    biz.CostTier(req.CostTier),
		Options:     options,
		Parameters:  req.Parameters,
		Description: req.Description,
	})
	if err != nil {
		s.log.Errorf("Remix failed: %v", err)
		return nil, err
	}
	return toRemixReply(res), nil
}

// GetVersion 查询版本
func (s *CreditService) GetVersion(ctx context.Context, req *VersionRequest) (*VersionReply, error) {
	v, err := s.remix.GetVersion(ctx, req.AccountID, req.VersionID)
	if err != nil {
		return nil, err
	}
	return &VersionReply{Version: toVersionInfo(v)}, nil
}

// ListVersions 版本所在的整棵树（按创建时间升序）
func (s *CreditService) ListVersions(ctx context.Context, req *VersionRequest) (*ListVersionsReply, error) {
	v, err := s.remix.GetVersion(ctx, req.AccountID, req.VersionID)
	if err != nil {
		return nil, err
	}
	versions, err := s.remix.ListVersions(ctx, req.AccountID, v.RootID)
	if err != nil {
		return nil, err
	}
	reply := &ListVersionsReply{Versions: make([]*VersionInfo, 0, len(versions))}
	for _, v := range versions {
		reply.Versions = append(reply.Versions, toVersionInfo(v))
	}
	return reply, nil
}

// GetSuggestions 推荐的 Remix 调整项
func (s *CreditService) GetSuggestions(ctx context.Context, req *VersionRequest) (*SuggestionsReply, error) {
	v, err := s.remix.GetVersion(ctx, req.AccountID, req.VersionID)
	if err != nil {
		return nil, err
	}
	reply := &SuggestionsReply{VersionID: v.ID, Options: []string{}}
	for _, o := range s.remix.GetSuggestedOptions(v) {
		reply.Options = append(reply.Options, string(o))
	}
	return reply, nil
}
