package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
)

const sessionKeyPrefix = "sess:"

// RedisStore is the production session store for distributed deployments.
// Records are JSON values with a TTL matching the session expiry, so Redis
// garbage-collects expired sessions on its own.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, sessionKey(sess.ID), payload, ttlFor(sess)).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	// SET XX is a single atomic write; the expiry extension is never split
	// across two operations.
	ok, err := s.client.SetXX(ctx, sessionKey(sess.ID), payload, ttlFor(sess)).Result()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	// DEL on a missing key is a no-op, which gives us idempotent deletion
	// for free.
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}

func ttlFor(sess *Session) time.Duration {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		// Keep the record momentarily so the resolver can observe the
		// expiry and return the typed failure rather than a bare miss.
		ttl = time.Minute
	}
	return ttl
}
