package biz

import (
	"fmt"
	"sort"
	"time"

	"credit-service/internal/conf"

	"github.com/shopspring/decimal"
)

// BillingConfig 计费配置（已校验、已应用默认值）
type BillingConfig struct {
	Services            map[ServiceID]int64
	Complexity          map[ComplexityTier]decimal.Decimal
	Packages            map[string]*CreditPackage
	SubscriptionTiers   map[string]*SubscriptionTier
	Stages              []*StageDefinition // 按 Order 升序
	LowBalanceThreshold int64              // 低余额阈值（积分）
	BalanceCacheTTL     time.Duration
	LockExpiry          time.Duration
	DebitRetries        int
}

// DefaultBillingConfig 内置默认配置
func DefaultBillingConfig() *BillingConfig {
	return &BillingConfig{
		Services: map[ServiceID]int64{
			ServiceBasicScan:           5,
			ServiceAdvancedAnalysis:    15,
			ServiceDocumentOCR:         10,
			ServiceAIAnalysis:          20,
			ServiceBookingProcessing:   8,
			ServiceItineraryGeneration: 25,
			ServiceRemixBasic:          10,
			ServiceRemixAdvanced:       20,
			ServiceRemixPremium:        35,
		},
		Complexity: map[ComplexityTier]decimal.Decimal{
			ComplexityBasic:      decimal.RequireFromString("0.5"),
			ComplexityStandard:   decimal.NewFromInt(1),
			ComplexityAdvanced:   decimal.RequireFromString("1.5"),
			ComplexityPremium:    decimal.NewFromInt(2),
			ComplexityEnterprise: decimal.NewFromInt(3),
		},
		Packages: map[string]*CreditPackage{
			"starter": {ID: "starter", Name: "Starter", Price: decimal.RequireFromString("9.99"), Currency: "USD", BaseCredits: 500, BonusCredits: 100},
			"pro":     {ID: "pro", Name: "Pro", Price: decimal.RequireFromString("29.99"), Currency: "USD", BaseCredits: 2000, BonusCredits: 500},
		},
		SubscriptionTiers: map[string]*SubscriptionTier{
			"basic":   {ID: "basic", Name: "Basic", MonthlyCredits: 200},
			"premium": {ID: "premium", Name: "Premium", MonthlyCredits: 1000},
		},
		Stages: []*StageDefinition{
			{ID: "initial", Order: 1, Budget: 50},
			{ID: "compliance", Order: 2, Budget: 100},
			{ID: "documentation", Order: 3, Budget: 100},
			{ID: "submission", Order: 4, Budget: 50},
		},
		LowBalanceThreshold: 20,
		BalanceCacheTTL:     5 * time.Minute,
		LockExpiry:          5 * time.Second,
		DebitRetries:        3,
	}
}

// NewBillingConfig 从配置创建 BillingConfig，未配置的项使用默认值
func NewBillingConfig(c *conf.Bootstrap) (*BillingConfig, error) {
	config := DefaultBillingConfig()
	if c == nil || c.Billing == nil {
		return config, nil
	}
	b := c.Billing

	for k, v := range b.Services {
		id, err := ParseServiceID(k)
		if err != nil {
			return nil, fmt.Errorf("billing.services: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("billing.services.%s: base cost must be positive, got %d", k, v)
		}
		config.Services[id] = v
	}
	for k, v := range b.Complexity {
		tier, err := ParseComplexityTier(k)
		if err != nil {
			return nil, fmt.Errorf("billing.complexity: %w", err)
		}
		if !v.IsPositive() {
			return nil, fmt.Errorf("billing.complexity.%s: multiplier must be positive, got %s", k, v)
		}
		config.Complexity[tier] = v
	}
	if len(b.Packages) > 0 {
		config.Packages = make(map[string]*CreditPackage, len(b.Packages))
		for _, p := range b.Packages {
			if p.Id == "" || p.BaseCredits <= 0 || p.BonusCredits < 0 || !p.Price.IsPositive() {
				return nil, fmt.Errorf("billing.packages: invalid package %q", p.Id)
			}
			currency := p.Currency
			if currency == "" {
				currency = "USD"
			}
			config.Packages[p.Id] = &CreditPackage{
				ID:           p.Id,
				Name:         p.Name,
				Price:        p.Price,
				Currency:     currency,
				BaseCredits:  p.BaseCredits,
				BonusCredits: p.BonusCredits,
			}
		}
	}
	if len(b.SubscriptionTiers) > 0 {
		config.SubscriptionTiers = make(map[string]*SubscriptionTier, len(b.SubscriptionTiers))
		for _, t := range b.SubscriptionTiers {
			if t.Id == "" || t.MonthlyCredits <= 0 {
				return nil, fmt.Errorf("billing.subscription_tiers: invalid tier %q", t.Id)
			}
			config.SubscriptionTiers[t.Id] = &SubscriptionTier{ID: t.Id, Name: t.Name, MonthlyCredits: t.MonthlyCredits}
		}
	}
	if len(b.Stages) > 0 {
		stages := make([]*StageDefinition, 0, len(b.Stages))
		seen := make(map[string]bool, len(b.Stages))
		for _, s := range b.Stages {
			if s.Id == "" || seen[s.Id] || s.Budget < 0 {
				return nil, fmt.Errorf("billing.stages: invalid or duplicate stage %q", s.Id)
			}
			seen[s.Id] = true
			stages = append(stages, &StageDefinition{ID: s.Id, Order: int(s.Order), Budget: s.Budget})
		}
		sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
		config.Stages = stages
	}
	// 从配置读取阈值，如果未配置则使用默认值
	if b.LowBalanceThreshold > 0 {
		config.LowBalanceThreshold = b.LowBalanceThreshold
	}
	if d := b.BalanceCacheTtl.AsDuration(); d > 0 {
		config.BalanceCacheTTL = d
	}
	if d := b.LockExpiry.AsDuration(); d > 0 {
		config.LockExpiry = d
	}
	if b.DebitRetries > 0 {
		config.DebitRetries = int(b.DebitRetries)
	}
	return config, nil
}
