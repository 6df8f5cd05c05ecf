package pgnotify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Rand interface {
	Int63n(n int64) int64
}

type Storage struct {
	db *pgxpool.Pool

	maxAttempts int32
	backoffBase time.Duration
	backoffCap  time.Duration

	// rMu: math/rand.Rand не безопасен для конкурентного использования,
	// а Nack зовётся из пула горутин диспетчера.
	rMu sync.Mutex
	r   Rand
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{
		db:          db,
		maxAttempts: 3,
		backoffBase: 30 * time.Second,
		backoffCap:  30 * time.Minute,
		r:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) WithRetryPolicy(maxAttempts int32, base, cap time.Duration) *Storage {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if base > 0 {
		s.backoffBase = base
	}
	if cap > 0 {
		s.backoffCap = cap
	}
	return s
}

func (s *Storage) WithRand(r Rand) *Storage {
	if r != nil {
		s.r = r
	}
	return s
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// retryDelay — экспоненциальный backoff с cap и jitter (до +20%),
// чтобы ретраи не били в провайдера одновременно. Первый ретрай
// (attempt=1) ждёт ровно base, дальше удваиваем до cap.
func (s *Storage) retryDelay(attempt int32) time.Duration {
	d := s.backoffBase
	for i := int32(1); i < attempt; i++ {
		d *= 2
		if d >= s.backoffCap {
			d = s.backoffCap
			break
		}
	}
	jitterRange := int64(d / 5)
	if jitterRange > 0 {
		s.rMu.Lock()
		d += time.Duration(s.r.Int63n(jitterRange))
		s.rMu.Unlock()
	}
	return d
}
