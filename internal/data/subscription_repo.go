package data

import (
	"context"
	"errors"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	"credit-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepo 订阅相关数据访问
type subscriptionRepo struct {
	data *Data
	log  *log.Helper
}

// NewSubscriptionRepo 创建订阅 repo（返回 biz.SubscriptionRepo 接口）
func NewSubscriptionRepo(data *Data, logger log.Logger) biz.SubscriptionRepo {
	if data.mem != nil {
		return data.mem
	}
	return &subscriptionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// SaveSubscription 新增或更新订阅
func (r *subscriptionRepo) SaveSubscription(ctx context.Context, sub *biz.AccountSubscription) error {
	m := model.AccountSubscription{
		AccountID: sub.AccountID,
		TierID:    sub.TierID,
		Status:    sub.Status,
		CreatedAt: sub.CreatedAt,
	}
	return r.data.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier_id", "status", "updated_at"}),
	}).Create(&m).Error
}

// GetSubscription 查询订阅
func (r *subscriptionRepo) GetSubscription(ctx context.Context, accountID string) (*biz.AccountSubscription, error) {
	var m model.AccountSubscription
	if err := r.data.db.WithContext(ctx).Where("account_id = ?", accountID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toSubscription(&m), nil
}

// ListActiveSubscriptions 分页获取生效中的订阅
func (r *subscriptionRepo) ListActiveSubscriptions(ctx context.Context, offset, limit int) ([]*biz.AccountSubscription, error) {
	var models []model.AccountSubscription
	if err := r.data.db.WithContext(ctx).
		Where("status = ?", constants.SubscriptionStatusActive).
		Order("account_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	subs := make([]*biz.AccountSubscription, 0, len(models))
	for i := range models {
		subs = append(subs, toSubscription(&models[i]))
	}
	return subs, nil
}

func toSubscription(m *model.AccountSubscription) *biz.AccountSubscription {
	return &biz.AccountSubscription{
		AccountID: m.AccountID,
		TierID:    m.TierID,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
