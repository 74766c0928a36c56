package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when another request holds the invoice lock
// for longer than the caller was willing to wait.
var ErrLockTimeout = errors.New("invoice lock wait timed out")

// InvoiceLocker serialises payment-link creation and cancellation per invoice.
type InvoiceLocker interface {
	// Lock blocks until the invoice is free or ctx is done. The returned
	// unlock func is safe to call more than once.
	Lock(ctx context.Context, invoiceID uuid.UUID) (unlock func(), err error)
}

type localLock struct {
	sem  *semaphore.Weighted
	refs int
}

// LocalInvoiceLocker guards invoices within a single process.
type LocalInvoiceLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*localLock
}

func NewLocalInvoiceLocker() *LocalInvoiceLocker {
	return &LocalInvoiceLocker{locks: make(map[uuid.UUID]*localLock)}
}

func (l *LocalInvoiceLocker) Lock(ctx context.Context, invoiceID uuid.UUID) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[invoiceID]
	if !ok {
		lk = &localLock{sem: semaphore.NewWeighted(1)}
		l.locks[invoiceID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	if err := lk.sem.Acquire(ctx, 1); err != nil {
		l.release(invoiceID, lk)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			lk.sem.Release(1)
			l.release(invoiceID, lk)
		})
	}, nil
}

func (l *LocalInvoiceLocker) release(invoiceID uuid.UUID, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, invoiceID)
	}
}

// held reports how many invoices currently have a lock entry.
func (l *LocalInvoiceLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// unlockScript deletes the key only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisInvoiceLocker guards invoices across replicas with SET NX PX.
// The TTL bounds how long a crashed holder can block an invoice.
type RedisInvoiceLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisInvoiceLocker(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisInvoiceLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisInvoiceLocker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		prefix: "billing:invoice-lock:",
		logger: logger,
	}
}

func (l *RedisInvoiceLocker) Lock(ctx context.Context, invoiceID uuid.UUID) (func(), error) {
	key := l.prefix + invoiceID.String()
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, lockCtxErr(ctx)
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, lockCtxErr(ctx)
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done; release regardless.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := unlockScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Warn("Failed to release invoice lock",
					zap.String("invoice_id", invoiceID.String()),
					zap.Error(err),
				)
			}
		})
	}, nil
}

func lockCtxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return ctx.Err()
}
