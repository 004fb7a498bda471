package data

import (
	"context"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/constants"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// redisLocker 基于 redsync 的分布式锁，实现 biz.Locker
type redisLocker struct {
	sync    *redsync.Redsync
	expiry  time.Duration
	log     *log.Helper
	metrics *metrics.CreditMetrics
}

// NewLocker 创建锁（memory 驱动下为进程内锁）
func NewLocker(data *Data, conf *biz.BillingConfig, logger log.Logger) biz.Locker {
	if data.mem != nil {
		return data.memLocker
	}
	return &redisLocker{
		sync:    data.sync,
		expiry:  conf.LockExpiry,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Lock 获取分布式锁，返回解锁函数
func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockStart := time.Now()
	mutex := l.sync.NewMutex(constants.RedisKeyLock+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(25*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if l.metrics != nil {
			l.metrics.LockAcquireTotal.WithLabelValues("failed").Inc()
			l.metrics.LockAcquireDuration.Observe(time.Since(lockStart).Seconds())
		}
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.LockAcquireTotal.WithLabelValues("success").Inc()
		l.metrics.LockAcquireDuration.Observe(time.Since(lockStart).Seconds())
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.log.Warnf("release lock failed: key=%s, error=%v", key, err)
		}
	}, nil
}
