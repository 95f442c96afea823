package data

import (
	"context"

	"github.com/adscope/adscope-backend/internal/searchcache/biz"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionStore sweeps the short-lived Redis keys the UI layer writes under
// the session prefix. The store never writes these keys itself; it only
// clears them as part of a full reset.
type SessionStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewSessionStore creates a session store bound to the given key prefix
func NewSessionStore(client *redis.Client, prefix string, logger *zap.Logger) biz.SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// ClearSessionKeys deletes every key under the session prefix
func (s *SessionStore) ClearSessionKeys(ctx context.Context) error {
	var cursor uint64
	deleted := 0

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			deleted += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if deleted > 0 {
		s.logger.Debug("cleared session keys", zap.Int("count", deleted))
	}

	return nil
}
