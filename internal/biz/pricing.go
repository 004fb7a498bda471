package biz

import (
	"fmt"
	"math"
	"sort"

	creditErrors "credit-service/internal/errors"

	"github.com/shopspring/decimal"
)

// ServiceID 可计费服务标识（封闭集合）
type ServiceID string

const (
	ServiceBasicScan           ServiceID = "basic_scan"
	ServiceAdvancedAnalysis    ServiceID = "advanced_analysis"
	ServiceDocumentOCR         ServiceID = "document_ocr"
	ServiceAIAnalysis          ServiceID = "ai_analysis"
	ServiceBookingProcessing   ServiceID = "booking_processing"
	ServiceItineraryGeneration ServiceID = "itinerary_generation"
	ServiceRemixBasic          ServiceID = "REMIX_BASIC"
	ServiceRemixAdvanced       ServiceID = "REMIX_ADVANCED"
	ServiceRemixPremium        ServiceID = "REMIX_PREMIUM"
)

var knownServices = map[ServiceID]bool{
	ServiceBasicScan:           true,
	ServiceAdvancedAnalysis:    true,
	ServiceDocumentOCR:         true,
	ServiceAIAnalysis:          true,
	ServiceBookingProcessing:   true,
	ServiceItineraryGeneration: true,
	ServiceRemixBasic:          true,
	ServiceRemixAdvanced:       true,
	ServiceRemixPremium:        true,
}

// ParseServiceID 校验服务标识
func ParseServiceID(s string) (ServiceID, error) {
	id := ServiceID(s)
	if !knownServices[id] {
		return "", creditErrors.ErrUnknownService.WithCause(fmt.Errorf("service %q", s))
	}
	return id, nil
}

// ComplexityTier 复杂度档位（封闭集合）
type ComplexityTier string

const (
	ComplexityBasic      ComplexityTier = "basic"
	ComplexityStandard   ComplexityTier = "standard"
	ComplexityAdvanced   ComplexityTier = "advanced"
	ComplexityPremium    ComplexityTier = "premium"
	ComplexityEnterprise ComplexityTier = "enterprise"
)

var knownTiers = map[ComplexityTier]bool{
	ComplexityBasic:      true,
	ComplexityStandard:   true,
	ComplexityAdvanced:   true,
	ComplexityPremium:    true,
	ComplexityEnterprise: true,
}

// ParseComplexityTier 校验复杂度档位，空字符串视为 standard
func ParseComplexityTier(s string) (ComplexityTier, error) {
	if s == "" {
		return ComplexityStandard, nil
	}
	tier := ComplexityTier(s)
	if !knownTiers[tier] {
		return "", creditErrors.ErrUnknownComplexity.WithCause(fmt.Errorf("complexity %q", s))
	}
	return tier, nil
}

// PricingRule 服务定价规则
type PricingRule struct {
	ServiceID ServiceID
	BaseCost  int64
}

// PricingCatalog 服务定价目录，只读
type PricingCatalog struct {
	rules map[ServiceID]int64
	tiers map[ComplexityTier]decimal.Decimal
}

// NewPricingCatalog 创建定价目录
func NewPricingCatalog(conf *BillingConfig) (*PricingCatalog, error) {
	c := &PricingCatalog{
		rules: make(map[ServiceID]int64, len(conf.Services)),
		tiers: make(map[ComplexityTier]decimal.Decimal, len(conf.Complexity)),
	}
	for id, cost := range conf.Services {
		if !knownServices[id] {
			return nil, creditErrors.ErrUnknownService.WithCause(fmt.Errorf("service %q", id))
		}
		if cost <= 0 {
			return nil, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("base cost of %s is %d", id, cost))
		}
		c.rules[id] = cost
	}
	for tier, m := range conf.Complexity {
		if !m.IsPositive() {
			return nil, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("multiplier of %s is %s", tier, m))
		}
		c.tiers[tier] = m
	}
	if _, ok := c.tiers[ComplexityStandard]; !ok {
		c.tiers[ComplexityStandard] = decimal.NewFromInt(1)
	}
	return c, nil
}

// Price 计算单次服务价格：ceil(baseCost × multiplier)
func (c *PricingCatalog) Price(service ServiceID, tier ComplexityTier) (int64, error) {
	base, ok := c.rules[service]
	if !ok {
		return 0, creditErrors.ErrUnknownService.WithCause(fmt.Errorf("service %q", service))
	}
	m, err := c.Multiplier(tier)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromInt(base).Mul(m).Ceil().IntPart(), nil
}

// maxCost 单次扣费上限
var maxCost = decimal.NewFromInt(math.MaxInt64)

// PriceUnits 按件计费（如按文档数 OCR）
func (c *PricingCatalog) PriceUnits(service ServiceID, tier ComplexityTier, units int) (int64, error) {
	if units <= 0 {
		return 0, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("units %d", units))
	}
	unit, err := c.Price(service, tier)
	if err != nil {
		return 0, err
	}
	total := decimal.NewFromInt(unit).Mul(decimal.NewFromInt(int64(units)))
	if total.GreaterThan(maxCost) {
		return 0, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("cost of %d x %s overflows", units, service))
	}
	return total.IntPart(), nil
}

// Multiplier 返回档位倍率，空档位按 standard 处理
func (c *PricingCatalog) Multiplier(tier ComplexityTier) (decimal.Decimal, error) {
	if tier == "" {
		tier = ComplexityStandard
	}
	m, ok := c.tiers[tier]
	if !ok {
		return decimal.Zero, creditErrors.ErrUnknownComplexity.WithCause(fmt.Errorf("complexity %q", tier))
	}
	return m, nil
}

// Rules 返回所有定价规则（按服务标识排序）
func (c *PricingCatalog) Rules() []PricingRule {
	rules := make([]PricingRule, 0, len(c.rules))
	for id, cost := range c.rules {
		rules = append(rules, PricingRule{ServiceID: id, BaseCost: cost})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ServiceID < rules[j].ServiceID })
	return rules
}
