package biz

import (
	"context"
	"fmt"
	"time"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// ServiceUsage 单个服务的消费统计
type ServiceUsage struct {
	ServiceID ServiceID
	Count     int   // 消费次数
	Credits   int64 // 消耗积分
	Refunded  int64 // 退还积分
}

// UsageSummary 汇总统计
type UsageSummary struct {
	AccountID    string
	Period       string
	From         time.Time
	To           time.Time
	TotalCount   int
	TotalCredits int64 // 扣除退款后的净消耗
	Services     []*ServiceUsage
}

// StatsRepo 统计数据层接口（定义在 biz 层）
type StatsRepo interface {
	// GetUsage 统计 [from, to) 内按服务分组的 consumed/refunded 流水
	GetUsage(ctx context.Context, accountID string, from, to time.Time) ([]*ServiceUsage, error)
}

// StatsUseCase 统计业务逻辑
type StatsUseCase struct {
	repo StatsRepo
	log  *log.Helper
}

// NewStatsUseCase 创建统计 UseCase
func NewStatsUseCase(repo StatsRepo, logger log.Logger) *StatsUseCase {
	return &StatsUseCase{
		repo: repo,
		log:  log.NewHelper(logger),
	}
}

// GetUsage 获取今日或本月的消费统计
func (uc *StatsUseCase) GetUsage(ctx context.Context, accountID, period string, now time.Time) (*UsageSummary, error) {
	var from, to time.Time
	switch period {
	case constants.StatsPeriodToday:
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		to = from.AddDate(0, 0, 1)
	case "", constants.StatsPeriodMonth:
		period = constants.StatsPeriodMonth
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		to = from.AddDate(0, 1, 0)
	default:
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("period %q", period))
	}

	services, err := uc.repo.GetUsage(ctx, accountID, from, to)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	summary := &UsageSummary{AccountID: accountID, Period: period, From: from, To: to, Services: services}
	for _, s := range services {
		summary.TotalCount += s.Count
		summary.TotalCredits += s.Credits - s.Refunded
	}
	return summary, nil
}
