package data

import (
	"context"
	"errors"

	"credit-service/internal/biz"
	"credit-service/internal/data/model"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// purchaseRepo 购买订单相关数据访问
type purchaseRepo struct {
	data *Data
	log  *log.Helper
}

// NewPurchaseRepo 创建购买订单 repo（返回 biz.PurchaseRepo 接口）
func NewPurchaseRepo(data *Data, logger log.Logger) biz.PurchaseRepo {
	if data.mem != nil {
		return data.mem
	}
	return &purchaseRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreatePurchaseOrder 创建订单记录
func (r *purchaseRepo) CreatePurchaseOrder(ctx context.Context, order *biz.PurchaseOrder) error {
	m := model.PurchaseOrder{
		OrderID:   order.ID,
		AccountID: order.AccountID,
		PackageID: order.PackageID,
		Price:     order.Price,
		Currency:  order.Currency,
		Status:    order.Status,
	}
	return r.data.db.WithContext(ctx).Create(&m).Error
}

// GetPurchaseOrder 通过订单ID查询
func (r *purchaseRepo) GetPurchaseOrder(ctx context.Context, orderID string) (*biz.PurchaseOrder, error) {
	var m model.PurchaseOrder
	if err := r.data.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, creditErrors.ErrPurchaseNotFound
		}
		return nil, err
	}

	return &biz.PurchaseOrder{
		ID:            m.OrderID,
		AccountID:     m.AccountID,
		PackageID:     m.PackageID,
		Price:         m.Price,
		Currency:      m.Currency,
		Status:        m.Status,
		PaymentID:     m.PaymentID,
		TransactionID: m.TransactionID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

// SetPaymentID 记录支付流水号
func (r *purchaseRepo) SetPaymentID(ctx context.Context, orderID, paymentID string) error {
	return r.data.db.WithContext(ctx).Model(&model.PurchaseOrder{}).
		Where("order_id = ?", orderID).
		Update("payment_id", paymentID).Error
}

// UpdatePurchaseOrderStatus 条件更新订单状态
func (r *purchaseRepo) UpdatePurchaseOrderStatus(ctx context.Context, orderID string, from []string, to, paymentID, transactionID string) (bool, error) {
	updates := map[string]interface{}{
		"status": to,
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}

	res := r.data.db.WithContext(ctx).Model(&model.PurchaseOrder{}).
		Where("order_id = ? AND status IN ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
