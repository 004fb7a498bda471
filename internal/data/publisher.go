package data

import (
	"context"
	"encoding/json"

	"credit-service/internal/biz"
	"credit-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// mqEventPublisher 通过 RocketMQ 投递余额变动事件
type mqEventPublisher struct {
	data  *Data
	topic string
	log   *log.Helper
}

// NewEventPublisher 创建事件投递器，MQ 未启用时返回 nil
func NewEventPublisher(c *conf.Data, data *Data, logger log.Logger) biz.EventPublisher {
	if data.mq == nil || c.Rocketmq == nil || c.Rocketmq.BalanceTopic == "" {
		return nil
	}
	return &mqEventPublisher{
		data:  data,
		topic: c.Rocketmq.BalanceTopic,
		log:   log.NewHelper(logger),
	}
}

// PublishBalanceChanged 同步发送事件，消息 key 为账户ID
func (p *mqEventPublisher) PublishBalanceChanged(ctx context.Context, event *biz.BalanceChangedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := primitive.NewMessage(p.topic, body)
	msg.WithKeys([]string{event.AccountID})
	msg.WithTag(string(event.Reason))

	res, err := p.data.mq.SendSync(ctx, msg)
	if err != nil {
		return err
	}
	p.log.Debugf("balance event sent: account_id=%s, msg_id=%s", event.AccountID, res.MsgID)
	return nil
}
