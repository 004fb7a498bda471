package data

import (
	"context"
	"fmt"
	"time"

	"credit-service/internal/conf"
	"credit-service/internal/data/memory"
	"credit-service/internal/data/model"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// DriverMemory 进程内存储驱动
const DriverMemory = "memory"

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewLedgerRepo,
	NewPurchaseRepo,
	NewSubscriptionRepo,
	NewStageRepo,
	NewVersionRepo,
	NewStatsRepo,
	NewLocker,
	NewEventPublisher,
	NewPaymentClient,
)

// Data 数据层结构体
type Data struct {
	db   *gorm.DB
	rdb  *redis.Client
	sync *redsync.Redsync
	mq   rocketmq.Producer

	// memory 驱动
	mem       *memory.Store
	memLocker *memory.Locker
}

// NewDB 创建数据库连接
func NewDB(c *conf.Data) (*gorm.DB, error) {
	if c == nil || c.Database == nil {
		return nil, fmt.Errorf("database config is nil")
	}
	db, err := gorm.Open(mysql.Open(c.Database.Source), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if c.Database.AutoMigrate {
		if err := db.AutoMigrate(
			&model.CreditAccount{},
			&model.CreditTransaction{},
			&model.PurchaseOrder{},
			&model.AccountSubscription{},
			&model.WorkflowProgress{},
			&model.WorkflowStage{},
			&model.ArtifactVersion{},
		); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return db, nil
}

// NewRedis 创建 Redis 连接
func NewRedis(c *conf.Data) (*redis.Client, error) {
	if c == nil || c.Redis == nil {
		return nil, fmt.Errorf("redis config is nil")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Redis.Addr,
		Password:     c.Redis.Password,
		DB:           int(c.Redis.Db),
		ReadTimeout:  c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Redis.WriteTimeout.AsDuration(),
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// NewProducer 创建 RocketMQ 生产者，未启用时返回 nil
func NewProducer(c *conf.Data) (rocketmq.Producer, error) {
	if c == nil || c.Rocketmq == nil || !c.Rocketmq.Enabled {
		return nil, nil
	}
	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(c.Rocketmq.NameServers)),
		producer.WithGroupName(c.Rocketmq.GroupName),
		producer.WithRetry(int(c.Rocketmq.RetryTimes)),
	)
	if err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewData 创建数据层实例
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	if c != nil && c.Driver == DriverMemory {
		helper.Warn("data driver is memory, state is not persisted")
		return &Data{
			mem:       memory.New(),
			memLocker: memory.NewLocker(),
		}, func() {}, nil
	}

	db, err := NewDB(c)
	if err != nil {
		return nil, nil, err
	}
	rdb, err := NewRedis(c)
	if err != nil {
		return nil, nil, err
	}
	mq, err := NewProducer(c)
	if err != nil {
		// MQ 不可用时降级为不投递外部事件
		helper.Errorf("init rocketmq producer failed, events will not be published: %v", err)
		mq = nil
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
		if err := rdb.Close(); err != nil {
			helper.Errorf("failed to close redis: %v", err)
		}
		if mq != nil {
			if err := mq.Shutdown(); err != nil {
				helper.Errorf("failed to shutdown rocketmq producer: %v", err)
			}
		}
	}

	return &Data{
		db:   db,
		rdb:  rdb,
		sync: redsync.New(goredis.NewPool(rdb)),
		mq:   mq,
	}, cleanup, nil
}
