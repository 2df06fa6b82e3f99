package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"iq-quiz-client/internal/domain"
)

// RankingLoader fetches the ranking board from the backend.
type RankingLoader interface {
	GetRanking(ctx context.Context) (domain.Ranking, error)
}

// RankingRepository caches the ranking with TTL to avoid hitting the backend
// on every view; concurrent misses share one fetch.
type RankingRepository struct {
	loader RankingLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    domain.Ranking
	expiresAt time.Time
	valid     bool
}

func NewRankingRepository(loader RankingLoader, ttl time.Duration) *RankingRepository {
	return &RankingRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RankingRepository) GetRanking(ctx context.Context) (domain.Ranking, error) {
	if ranking, ok := r.fresh(); ok {
		return ranking, nil
	}

	result, err, _ := r.sf.Do("ranking", func() (interface{}, error) {
		if ranking, ok := r.fresh(); ok {
			return ranking, nil
		}

		now := r.clock()
		ranking, err := r.loader.GetRanking(ctx)
		if err != nil {
			return domain.Ranking{}, err
		}

		ttl := r.ttlWithJitter()
		r.mu.Lock()
		r.cached = ranking
		r.expiresAt = now.Add(ttl)
		r.valid = ttl > 0
		r.mu.Unlock()
		return ranking, nil
	})
	if err != nil {
		return domain.Ranking{}, err
	}
	return result.(domain.Ranking), nil
}

// Invalidate drops the cached board so a fresh submission shows up.
func (r *RankingRepository) Invalidate(_ context.Context) error {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
	return nil
}

func (r *RankingRepository) fresh() (domain.Ranking, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.valid && r.expiresAt.After(r.clock()) {
		return r.cached, true
	}
	return domain.Ranking{}, false
}

func (r *RankingRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
