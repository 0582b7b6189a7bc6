package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type sessionRepoRedis struct {
	rdb *redis.Client
}

func NewSessionRepoRedis(rdb *redis.Client) SessionRepo {
	return &sessionRepoRedis{rdb: rdb}
}

type sessionValue struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *sessionRepoRedis) key(tok string) string { return "sess:" + tok }

func (s *sessionRepoRedis) Create(ctx context.Context, token, userID string, expires time.Time) error {
	ttl := time.Until(expires)
	if ttl <= 0 {
		return nil
	}
	val, err := json.Marshal(sessionValue{UserID: userID, ExpiresAt: expires.UTC()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(token), val, ttl).Err()
}

func (s *sessionRepoRedis) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.key(token)).Err()
}

func (s *sessionRepoRedis) Lookup(ctx context.Context, token string) (string, time.Time, error) {
	v, err := s.rdb.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, err
	}
	var sv sessionValue
	if err := json.Unmarshal([]byte(v), &sv); err != nil {
		return "", time.Time{}, err
	}
	return sv.UserID, sv.ExpiresAt, nil
}
