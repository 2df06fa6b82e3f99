package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"iq-quiz-client/internal/domain"
)

// SessionStore keeps per-session state in one Redis hash so several front
// instances can serve the same browsing session:
//
//	HSET iq:session:{id} nickname {name} handoff {json} history {json}
//
// The whole hash expires ttl after the last write.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

const (
	fieldNickname = "nickname"
	fieldHandoff  = "handoff"
	fieldHistory  = "history"
)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) SetNickname(ctx context.Context, sessionID, nickname string) error {
	return s.write(ctx, sessionID, fieldNickname, nickname)
}

func (s *SessionStore) Nickname(ctx context.Context, sessionID string) (string, error) {
	name, err := s.client.HGet(ctx, s.key(sessionID), fieldNickname).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return name, err
}

func (s *SessionStore) SaveHandoff(ctx context.Context, sessionID string, h domain.Handoff) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode hand-off: %w", err)
	}
	return s.write(ctx, sessionID, fieldHandoff, raw)
}

func (s *SessionStore) Handoff(ctx context.Context, sessionID string) (domain.Handoff, bool, error) {
	raw, err := s.client.HGet(ctx, s.key(sessionID), fieldHandoff).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Handoff{}, false, nil
	}
	if err != nil {
		return domain.Handoff{}, false, err
	}
	var h domain.Handoff
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.Handoff{}, false, fmt.Errorf("decode hand-off: %w", err)
	}
	return h, true, nil
}

func (s *SessionStore) History(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	raw, err := s.client.HGet(ctx, s.key(sessionID), fieldHistory).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var history []domain.HistoryEntry
	if err := json.Unmarshal(raw, &history); err != nil {
		// a corrupt history is treated as empty
		return nil, nil
	}
	return history, nil
}

func (s *SessionStore) SaveHistory(ctx context.Context, sessionID string, history []domain.HistoryEntry) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.write(ctx, sessionID, fieldHistory, raw)
}

func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.HDel(ctx, s.key(sessionID), fieldNickname, fieldHandoff).Err()
}

func (s *SessionStore) write(ctx context.Context, sessionID, field string, value interface{}) error {
	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) key(sessionID string) string {
	return "iq:session:" + sessionID
}
