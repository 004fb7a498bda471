package biz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsUseCase_GetUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "acct-1", 200)

	for i := 0; i < 2; i++ {
		_, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceBasicScan})
		require.NoError(t, err)
	}
	res, err := f.gateway.Consume(ctx, &biz.ConsumeRequest{AccountID: "acct-1", ServiceID: biz.ServiceAIAnalysis})
	require.NoError(t, err)
	_, err = f.gateway.Refund(ctx, "acct-1", res.Transaction.ID, "failed")
	require.NoError(t, err)

	summary, err := f.stats.GetUsage(ctx, "acct-1", constants.StatsPeriodMonth, time.Now())
	require.NoError(t, err)
	assert.Equal(t, constants.StatsPeriodMonth, summary.Period)
	assert.Equal(t, 3, summary.TotalCount)
	assert.Equal(t, int64(10), summary.TotalCredits)
	require.Len(t, summary.Services, 2)

	byService := make(map[biz.ServiceID]*biz.ServiceUsage)
	for _, s := range summary.Services {
		byService[s.ServiceID] = s
	}
	assert.Equal(t, 2, byService[biz.ServiceBasicScan].Count)
	assert.Equal(t, int64(10), byService[biz.ServiceBasicScan].Credits)
	assert.Equal(t, int64(20), byService[biz.ServiceAIAnalysis].Credits)
	assert.Equal(t, int64(20), byService[biz.ServiceAIAnalysis].Refunded)

	// 上个月没有数据
	summary, err = f.stats.GetUsage(ctx, "acct-1", "", time.Now().AddDate(0, -1, 0))
	require.NoError(t, err)
	assert.Empty(t, summary.Services)
}

func TestStatsUseCase_InvalidPeriod(t *testing.T) {
	f := newFixture(t)
	_, err := f.stats.GetUsage(context.Background(), "acct-1", "year", time.Now())
	assert.True(t, errors.Is(err, creditErrors.ErrInvalidArgument))
}
