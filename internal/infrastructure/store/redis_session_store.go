package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/session"
)

// RedisSessionStore implements session.Store on Redis. Records carry a TTL
// equal to the session lifetime, so Redis reaps them once they can never be
// active again; the public contract still exposes no delete operation.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisSessionStore(addr string) *RedisSessionStore {
	return &RedisSessionStore{
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		keyPrefix: "commerce",
	}
}

func (rs *RedisSessionStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", rs.keyPrefix, sessionID)
}

func (rs *RedisSessionStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user_sessions:%s", rs.keyPrefix, userID)
}

func (rs *RedisSessionStore) Insert(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired at insert", s.ID)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, rs.sessionKey(s.ID), data, ttl)
	pipe.SAdd(ctx, rs.userKey(s.UserID), s.ID)
	pipe.Expire(ctx, rs.userKey(s.UserID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (rs *RedisSessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	data, err := rs.client.Get(ctx, rs.sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	if err != nil {
		return nil, err
	}

	var s session.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (rs *RedisSessionStore) MarkLoggedOut(ctx context.Context, sessionID string, at time.Time) (*session.Session, error) {
	s, err := rs.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.LoggedOutAt != nil {
		// Logout is terminal; the original timestamp stands.
		return s, nil
	}

	s.LoggedOutAt = &at
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := rs.client.Set(ctx, rs.sessionKey(sessionID), data, redis.KeepTTL).Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (rs *RedisSessionStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	ids, err := rs.client.SMembers(ctx, rs.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		s, err := rs.Get(ctx, id)
		if err != nil {
			// An expired member reaped by Redis is simply no longer listed.
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (rs *RedisSessionStore) Close() error {
	return rs.client.Close()
}
