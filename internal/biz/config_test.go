package biz_test

import (
	"testing"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/conf"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBillingConfig_Defaults(t *testing.T) {
	c, err := biz.NewBillingConfig(&conf.Bootstrap{})
	require.NoError(t, err)
	assert.Equal(t, int64(25), c.Services[biz.ServiceItineraryGeneration])
	assert.Len(t, c.Stages, 4)
	assert.Equal(t, int64(600), c.Packages["starter"].TotalCredits())
	assert.Equal(t, 3, c.DebitRetries)
}

func TestNewBillingConfig_Overrides(t *testing.T) {
	c, err := biz.NewBillingConfig(&conf.Bootstrap{Billing: &conf.Billing{
		Services:   map[string]int64{"basic_scan": 7},
		Complexity: map[string]decimal.Decimal{"premium": decimal.RequireFromString("2.5")},
		Stages: []*conf.Billing_Stage{
			{Id: "review", Order: 2, Budget: 10},
			{Id: "draft", Order: 1, Budget: 20},
		},
		BalanceCacheTtl: conf.NewDuration(time.Minute),
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.Services[biz.ServiceBasicScan])
	assert.Equal(t, int64(15), c.Services[biz.ServiceAdvancedAnalysis])
	assert.True(t, decimal.RequireFromString("2.5").Equal(c.Complexity[biz.ComplexityPremium]))
	require.Len(t, c.Stages, 2)
	assert.Equal(t, "draft", c.Stages[0].ID)
	assert.Equal(t, time.Minute, c.BalanceCacheTTL)
}

func TestNewBillingConfig_Invalid(t *testing.T) {
	_, err := biz.NewBillingConfig(&conf.Bootstrap{Billing: &conf.Billing{Services: map[string]int64{"teleport": 3}}})
	assert.Error(t, err)

	_, err = biz.NewBillingConfig(&conf.Bootstrap{Billing: &conf.Billing{Services: map[string]int64{"basic_scan": 0}}})
	assert.Error(t, err)

	_, err = biz.NewBillingConfig(&conf.Bootstrap{Billing: &conf.Billing{Stages: []*conf.Billing_Stage{{Id: "a"}, {Id: "a"}}}})
	assert.Error(t, err)
}

func TestNewBillingConfig_RejectsNonPositivePackagePrice(t *testing.T) {
	for _, price := range []string{"0", "-1.00"} {
		_, err := biz.NewBillingConfig(&conf.Bootstrap{Billing: &conf.Billing{Packages: []*conf.Billing_Package{
			{Id: "free", Name: "Free", Price: decimal.RequireFromString(price), BaseCredits: 100},
		}}})
		assert.Error(t, err, price)
	}

	c, err := biz.NewBillingConfig(&conf.Bootstrap{Billing: &conf.Billing{Packages: []*conf.Billing_Package{
		{Id: "mini", Name: "Mini", Price: decimal.RequireFromString("0.99"), BaseCredits: 50},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "USD", c.Packages["mini"].Currency)
}
