// Package lock serializes dispatch and resend of a single campaign.
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
)

// CampaignLocker grants exclusive ownership of a campaign for one dispatch.
// TryLock never waits: a held lock returns appErrors.ErrDispatchInProgress.
type CampaignLocker interface {
	TryLock(ctx context.Context, campaignID int) (unlock func(), err error)
}

// New picks the best available backend: Redis, then Postgres advisory locks,
// then an in-process lock.
func New(client *redis.Client, db *sql.DB, ttl time.Duration) CampaignLocker {
	switch {
	case client != nil:
		return NewRedisLocker(client, ttl)
	case db != nil:
		return NewPGAdvisoryLocker(db)
	default:
		return NewLocalLocker()
	}
}

func key(campaignID int) string {
	return fmt.Sprintf("campaign:%d:dispatch", campaignID)
}

// LocalLocker is only safe when a single process dispatches.
type LocalLocker struct {
	mu   sync.Mutex
	held map[int]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[int]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, campaignID int) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[campaignID]; busy {
		return nil, appErrors.ErrDispatchInProgress
	}
	l.held[campaignID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, campaignID)
			l.mu.Unlock()
		})
	}, nil
}

// PGAdvisoryLocker uses session-scoped pg_try_advisory_lock. The session is
// a connection pinned from the pool until unlock.
type PGAdvisoryLocker struct {
	db *sql.DB
}

func NewPGAdvisoryLocker(db *sql.DB) *PGAdvisoryLocker {
	return &PGAdvisoryLocker{db: db}
}

func advisoryID(campaignID int) int64 {
	h := fnv.New64a()
	h.Write([]byte(key(campaignID)))
	return int64(h.Sum64())
}

func (l *PGAdvisoryLocker) TryLock(ctx context.Context, campaignID int) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock: pin connection: %w", err)
	}
	id := advisoryID(campaignID)

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		conn.Close()
		return nil, fmt.Errorf("lock: advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, appErrors.ErrDispatchInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id)
			conn.Close()
		})
	}, nil
}
