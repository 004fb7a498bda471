package data

import (
	"context"
	"fmt"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	"credit-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// paymentClient 支付服务 HTTP 客户端，实现 biz.PaymentClient
type paymentClient struct {
	cc        *http.Client
	notifyURL string
	log       *log.Helper
}

type createPaymentRequest struct {
	OrderID   string `json:"order_id"`
	AccountID string `json:"account_id"`
	Source    string `json:"source"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Subject   string `json:"subject"`
	ReturnURL string `json:"return_url"`
	NotifyURL string `json:"notify_url"`
	ClientIP  string `json:"client_ip,omitempty"`
}

type createPaymentReply struct {
	PaymentID string `json:"payment_id"`
	PayURL    string `json:"pay_url"`
}

// NewPaymentClient 创建支付服务客户端，未配置 endpoint 时返回 nil（购买功能不可用）
func NewPaymentClient(c *conf.Bootstrap, logger log.Logger) (biz.PaymentClient, func(), error) {
	logHelper := log.NewHelper(logger)
	if c == nil || c.Payment == nil || c.Payment.Endpoint == "" {
		logHelper.Warn("payment endpoint is not configured, purchases are disabled")
		return nil, func() {}, nil
	}

	opts := []http.ClientOption{
		http.WithEndpoint(c.Payment.Endpoint),
		http.WithMiddleware(
			recovery.Recovery(),
		),
	}
	if timeout := c.Payment.Timeout.AsDuration(); timeout > 0 {
		opts = append(opts, http.WithTimeout(timeout))
	}
	cc, err := http.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create payment client: %w", err)
	}

	cleanup := func() {
		if err := cc.Close(); err != nil {
			logHelper.Errorf("failed to close payment client: %v", err)
		}
	}
	return &paymentClient{
		cc:        cc,
		notifyURL: c.Payment.NotifyUrl,
		log:       logHelper,
	}, cleanup, nil
}

// CreatePayment 创建支付订单
func (c *paymentClient) CreatePayment(ctx context.Context, req *biz.CreatePaymentRequest) (*biz.CreatePaymentReply, error) {
	in := &createPaymentRequest{
		OrderID:   req.OrderID,
		AccountID: req.AccountID,
		Source:    constants.PaymentSourceCredit,
		Amount:    req.Amount.StringFixed(2),
		Currency:  req.Currency,
		Subject:   req.Subject,
		ReturnURL: req.ReturnURL,
		NotifyURL: c.notifyURL,
		ClientIP:  req.ClientIP,
	}
	var out createPaymentReply
	if err := c.cc.Invoke(ctx, "POST", "/v1/payments", in, &out); err != nil {
		c.log.Errorf("CreatePayment failed: order_id=%s, error=%v", req.OrderID, err)
		return nil, err
	}
	return &biz.CreatePaymentReply{
		PaymentID: out.PaymentID,
		PayURL:    out.PayURL,
	}, nil
}
