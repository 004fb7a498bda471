package server

import (
	"context"
	"encoding/json"
	"errors"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	creditErrors "credit-service/internal/errors"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// MQConsumerServer 消费支付结果消息并发放积分包
type MQConsumerServer struct {
	c       rocketmq.PushConsumer
	grants  *biz.GrantManager
	conf    *conf.Data
	log     *log.Helper
	enabled bool
}

// NewMQConsumerServer 创建 RocketMQ 消费者
func NewMQConsumerServer(c *conf.Data, grants *biz.GrantManager, logger log.Logger) *MQConsumerServer {
	helper := log.NewHelper(logger)
	if c == nil || c.Rocketmq == nil || !c.Rocketmq.Enabled || c.Rocketmq.PaymentTopic == "" {
		return &MQConsumerServer{grants: grants, log: helper, enabled: false}
	}

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(c.Rocketmq.NameServers)),
		consumer.WithGroupName(c.Rocketmq.GroupName),
		consumer.WithRetry(int(c.Rocketmq.RetryTimes)),
		consumer.WithConsumeMessageBatchMaxSize(16),
	)
	if err != nil {
		helper.Errorf("init consumer error: %v", err)
		return &MQConsumerServer{grants: grants, log: helper, enabled: false}
	}

	return &MQConsumerServer{
		c:       r,
		grants:  grants,
		conf:    c,
		log:     helper,
		enabled: true,
	}
}

// Start 订阅支付结果 topic
func (s *MQConsumerServer) Start(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		s.log.Infof("MQConsumerServer is disabled, skipping startup")
		return nil
	}

	topic := s.conf.Rocketmq.PaymentTopic
	s.log.Infof("Starting MQConsumerServer, topic: %s", topic)

	if err := s.c.Subscribe(topic, consumer.MessageSelector{}, s.handler); err != nil {
		// RocketMQ 不可用时仍可通过 HTTP 回调发放
		s.log.Errorf("Failed to subscribe to topic %s: %v", topic, err)
		return nil
	}
	if err := s.c.Start(); err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		return nil
	}
	return nil
}

// Stop 停止消费
func (s *MQConsumerServer) Stop(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		return nil
	}
	s.log.Info("Stopping MQConsumerServer")
	return s.c.Shutdown()
}

func (s *MQConsumerServer) handler(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		if retry := s.handle(ctx, msg.Body); retry {
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// handle 处理单条支付结果，返回是否需要重试
func (s *MQConsumerServer) handle(ctx context.Context, body []byte) bool {
	var confirmation biz.PaymentConfirmation
	if err := json.Unmarshal(body, &confirmation); err != nil {
		s.log.Errorf("Unmarshal message failed: %v, body: %s", err, string(body))
		return false
	}

	res, err := s.grants.PurchasePackage(ctx, &confirmation)
	if err != nil {
		// 业务拒绝（未确认、订单不存在等）重试无意义
		if isPermanent(err) {
			s.log.Warnf("payment message rejected: order_id=%s, error=%v", confirmation.OrderID, err)
			return false
		}
		s.log.Errorf("PurchasePackage failed: order_id=%s, error=%v", confirmation.OrderID, err)
		return true
	}
	if !res.Granted {
		s.log.Infof("payment message duplicate: order_id=%s", confirmation.OrderID)
	}
	return false
}

func isPermanent(err error) bool {
	return errors.Is(err, creditErrors.ErrPaymentUnconfirmed) ||
		errors.Is(err, creditErrors.ErrPurchaseNotFound) ||
		errors.Is(err, creditErrors.ErrInvalidArgument) ||
		errors.Is(err, creditErrors.ErrUnknownPackage)
}
