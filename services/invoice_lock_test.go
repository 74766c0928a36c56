package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalInvoiceLocker_SerializesPerInvoice(t *testing.T) {
	l := NewLocalInvoiceLocker()
	id := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), id)
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, l.held())
}

func TestLocalInvoiceLocker_OtherInvoicesProceed(t *testing.T) {
	l := NewLocalInvoiceLocker()
	unlock, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	other, err := l.Lock(ctx, uuid.New())
	require.NoError(t, err)
	other()
}

func TestLocalInvoiceLocker_Timeout(t *testing.T) {
	l := NewLocalInvoiceLocker()
	id := uuid.New()
	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, id)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()
	assert.Zero(t, l.held())

	again, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	again()
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisInvoiceLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisInvoiceLocker(client, ttl, zap.NewNop())
	l.retry = 5 * time.Millisecond
	return l, mr
}

func TestRedisInvoiceLocker_LockAndRelease(t *testing.T) {
	l, mr := newRedisLocker(t, time.Minute)
	id := uuid.New()
	key := l.prefix + id.String()

	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, id)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists(key))

	again, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	again()
}

func TestRedisInvoiceLocker_WaitsForRelease(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)
	id := uuid.New()

	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := l.Lock(ctx, id)
	require.NoError(t, err)
	second()
}

func TestRedisInvoiceLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	id := uuid.New()
	key := l.prefix + id.String()

	first, err := l.Lock(context.Background(), id)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	second, err := l.Lock(context.Background(), id)
	require.NoError(t, err)

	first()
	assert.True(t, mr.Exists(key), "expired holder must not release the new holder's lock")

	second()
	assert.False(t, mr.Exists(key))
}
