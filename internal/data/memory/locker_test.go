package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_MutualExclusion(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), "account:1")
	require.NoError(t, err)

	// 其他 key 不受影响
	other, err := l.Lock(context.Background(), "account:2")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "account:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // 重复释放无副作用

	again, err := l.Lock(context.Background(), "account:1")
	require.NoError(t, err)
	again()
}

func TestLocker_ReleasesIdleSlots(t *testing.T) {
	l := NewLocker()
	for i := 0; i < 100; i++ {
		unlock, err := l.Lock(context.Background(), fmt.Sprintf("account:%d", i))
		require.NoError(t, err)
		unlock()
	}
	assert.Equal(t, 0, l.size())

	// 等待超时的一方也要释放引用
	unlock, err := l.Lock(context.Background(), "account:x")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "account:x")
	require.Error(t, err)
	assert.Equal(t, 1, l.size())
	unlock()
	assert.Equal(t, 0, l.size())
}

func TestLocker_ContendedKeyStaysExclusive(t *testing.T) {
	l := NewLocker()
	var (
		wg     sync.WaitGroup
		inside int
		maxIn  int
		mu     sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "account:hot")
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > maxIn {
				maxIn = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxIn)
	assert.Equal(t, 0, l.size())
}
