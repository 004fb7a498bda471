package data

import (
	"context"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
)

// statsRepo 统计相关数据访问
type statsRepo struct {
	data *Data
	log  *log.Helper
}

// NewStatsRepo 创建统计 repo（返回 biz.StatsRepo 接口）
func NewStatsRepo(data *Data, logger log.Logger) biz.StatsRepo {
	if data.mem != nil {
		return data.mem
	}
	return &statsRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

type usageRow struct {
	ServiceID string
	Type      string
	Count     int
	Total     int64
}

// GetUsage 按服务分组统计消费与退款
func (r *statsRepo) GetUsage(ctx context.Context, accountID string, from, to time.Time) ([]*biz.ServiceUsage, error) {
	var rows []usageRow
	if err := r.data.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Select("service_id, type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("account_id = ? AND created_at >= ? AND created_at < ? AND type IN ?",
			accountID, from, to, []string{string(biz.TxConsumed), string(biz.TxRefunded)}).
		Group("service_id, type").
		Order("service_id ASC").
		Scan(&rows).Error; err != nil {
		r.log.Errorf("GetUsage failed: account_id=%s, error=%v", accountID, err)
		return nil, err
	}

	byService := make(map[string]*biz.ServiceUsage)
	usages := make([]*biz.ServiceUsage, 0, len(rows))
	for _, row := range rows {
		u, ok := byService[row.ServiceID]
		if !ok {
			u = &biz.ServiceUsage{ServiceID: biz.ServiceID(row.ServiceID)}
			byService[row.ServiceID] = u
			usages = append(usages, u)
		}
		if row.Type == string(biz.TxConsumed) {
			u.Count += row.Count
			u.Credits += -row.Total
		} else {
			u.Refunded += row.Total
		}
	}
	return usages, nil
}
