package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"iq-quiz-client/internal/domain"
)

// RankingLoader fetches the ranking board from the backend.
type RankingLoader interface {
	GetRanking(ctx context.Context) (domain.Ranking, error)
}

// RankingRepository caches the ranking board in Redis as JSON and falls back
// to the loader on a miss:
//
//	SET iq:ranking {json} EX ttl+jitter
type RankingRepository struct {
	client *redis.Client
	loader RankingLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

const rankingKey = "iq:ranking"

func NewRankingRepository(client *redis.Client, loader RankingLoader, ttl time.Duration) *RankingRepository {
	return &RankingRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RankingRepository) GetRanking(ctx context.Context) (domain.Ranking, error) {
	if ranking, ok := r.cached(ctx); ok {
		return ranking, nil
	}

	result, err, _ := r.sf.Do(rankingKey, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if ranking, ok := r.cached(ctx); ok {
			return ranking, nil
		}

		ranking, err := r.loader.GetRanking(ctx)
		if err != nil {
			return domain.Ranking{}, err
		}
		if ttl := r.ttlWithJitter(); ttl > 0 {
			if raw, err := json.Marshal(ranking); err == nil {
				_ = r.client.Set(ctx, rankingKey, raw, ttl).Err()
			}
		}
		return ranking, nil
	})
	if err != nil {
		return domain.Ranking{}, err
	}
	return result.(domain.Ranking), nil
}

// Invalidate removes the cached board.
func (r *RankingRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, rankingKey).Err()
}

func (r *RankingRepository) cached(ctx context.Context) (domain.Ranking, bool) {
	raw, err := r.client.Get(ctx, rankingKey).Bytes()
	if err != nil {
		return domain.Ranking{}, false
	}
	var ranking domain.Ranking
	if err := json.Unmarshal(raw, &ranking); err != nil {
		return domain.Ranking{}, false
	}
	return ranking, true
}

func (r *RankingRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
