package leaselock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tradegraph/backend/pkg/logger"
)

var (
	// ErrBusy is returned when the lock is held by another process and
	// waiting was not requested.
	ErrBusy = errors.New("lease lock busy")
	// ErrLost means the lease expired or was taken over; the holder's
	// context is cancelled with this cause.
	ErrLost = errors.New("lease lock lost")
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client hands out expiring single-holder locks backed by the app_locks
// table. Worker loops take one per pipeline stage so a deployment runs at
// most one extraction coordinator and one materializer, while crashed
// holders free themselves through TTL expiry.
type Client struct {
	db dbConn
}

type Options struct {
	TTL       time.Duration
	Heartbeat time.Duration

	Wait         bool
	WaitInterval time.Duration
}

// Lease is one held lock. Context is cancelled with ErrLost when a heartbeat
// discovers the lease is gone, so work guarded by the lease stops instead of
// racing the next holder.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	client *Client
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

// WithLease acquires the lock, runs fn under the lease context, and releases.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.Background())
	}()
	return fn(lease.Context)
}

// Hold keeps fn running under the lock for the lifetime of ctx. When the
// lease is lost mid-run, fn's context is cancelled with ErrLost and Hold
// reacquires the lock and restarts fn instead of returning, so a transient
// DB hiccup or TTL expiry never halts the guarded loop permanently. Hold
// returns fn's result once it finishes with the lease still held, or ctx's
// error on shutdown.
func (c *Client) Hold(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	for {
		lease, err := c.Acquire(ctx, key, opts)
		if err != nil {
			return err
		}

		err = fn(lease.Context)
		lost := errors.Is(context.Cause(lease.Context), ErrLost)
		_ = lease.Release(context.Background())

		if ctx.Err() != nil {
			return err
		}
		if lost {
			logger.Warn("[LeaseLock] Lease lost, reacquiring", "key", key)
			continue
		}
		return err
	}
}

func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}

	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Minute
	}
	if opts.Heartbeat <= 0 || opts.Heartbeat >= opts.TTL {
		opts.Heartbeat = max(opts.TTL/3, time.Second)
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = 500 * time.Millisecond
	}

	token, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	ttlMs := opts.TTL.Milliseconds()
	for {
		ok, err := c.tryAcquire(ctx, key, token, ttlMs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}

		t := time.NewTimer(opts.WaitInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	go lease.heartbeat(opts.Heartbeat, ttlMs)

	return lease, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, token string, ttlMs int64) (bool, error) {
	var returnedKey string
	err := c.db.QueryRow(ctx, tryAcquireSQL, key, token, ttlMs).Scan(&returnedKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})

	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) heartbeat(every time.Duration, ttlMs int64) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renew(ttlMs); err != nil {
				l.cancel(err)
				return
			}
		}
	}
}

func (l *Lease) renew(ttlMs int64) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		renewCtx, cancel := context.WithTimeout(l.Context, 10*time.Second)
		var returnedKey string
		err := l.client.db.QueryRow(renewCtx, renewSQL, l.Key, l.Token, ttlMs).Scan(&returnedKey)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		lastErr = err

		t := time.NewTimer(200 * time.Millisecond)
		select {
		case <-l.Context.Done():
			t.Stop()
			return l.Context.Err()
		case <-t.C:
		}
	}
	return lastErr
}

const tryAcquireSQL = `
INSERT INTO app_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at < now()
   OR app_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE app_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM app_locks
WHERE lock_key = $1 AND locked_by = $2;
`
