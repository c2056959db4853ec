package leaselock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	err error
	key string
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if p, ok := dest[0].(*string); ok {
			*p = r.key
		}
	}
	return nil
}

// fakeDB acquires every lease immediately. Renewals fail with ErrNoRows for
// leases up to loseFirst, simulating a takeover after TTL expiry.
type fakeDB struct {
	mu        sync.Mutex
	acquires  int
	loseFirst int
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	switch sql {
	case tryAcquireSQL:
		db.acquires++
		return fakeRow{key: args[0].(string)}
	case renewSQL:
		if db.acquires <= db.loseFirst {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: args[0].(string)}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (db *fakeDB) acquireCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.acquires
}

func TestHoldReacquiresAfterLostLease(t *testing.T) {
	db := &fakeDB{loseFirst: 1}
	c := &Client{db: db}

	opts := Options{TTL: 50 * time.Millisecond, Heartbeat: 5 * time.Millisecond}

	var runs atomic.Int32
	err := c.Hold(context.Background(), "extraction_coordinator", opts, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			// First holder waits out the lease loss and exits the way a
			// polling loop does on cancellation.
			<-ctx.Done()
			if !errors.Is(context.Cause(ctx), ErrLost) {
				t.Errorf("first run cancelled with cause %v, want ErrLost", context.Cause(ctx))
			}
			return nil
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}

	if got := runs.Load(); got != 2 {
		t.Errorf("fn ran %d times, want 2 (restart after lost lease)", got)
	}
	if got := db.acquireCount(); got != 2 {
		t.Errorf("lock acquired %d times, want 2", got)
	}
}

func TestHoldReturnsOnShutdown(t *testing.T) {
	db := &fakeDB{}
	c := &Client{db: db}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	err := c.Hold(ctx, "graph_materializer", Options{TTL: time.Minute}, func(leaseCtx context.Context) error {
		runs.Add(1)
		cancel()
		<-leaseCtx.Done()
		return leaseCtx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Hold = %v, want context.Canceled", err)
	}

	if got := runs.Load(); got != 1 {
		t.Errorf("fn ran %d times, want 1 (no reacquire on shutdown)", got)
	}
	if got := db.acquireCount(); got != 1 {
		t.Errorf("lock acquired %d times, want 1", got)
	}
}
