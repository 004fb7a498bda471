package memory

import (
	"context"
	"sync"
)

// slot 单个 key 的锁，refs 为持有者与等待者数量
type slot struct {
	ch   chan struct{}
	refs int
}

// Locker 进程内按 key 互斥，实现 biz.Locker
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewLocker 创建进程内锁
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

// Lock 获取 key 对应的锁，ctx 取消时放弃等待
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

// release 引用归零时回收 slot
func (l *Locker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size 当前持有的 slot 数
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
