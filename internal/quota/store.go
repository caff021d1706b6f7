package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	genKeyPrefix = "quota:gen:" // quota:gen:{user_id}:{yyyy-mm}

	// keyTTL is one day longer than the longest calendar month so a key
	// always expires after its period rolls over.
	keyTTL = 32 * 24 * time.Hour
)

// Store is the fast external counter backing Consume. It is an optimization
// for atomic concurrent consumption; the relational count stays authoritative.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Incr atomically increments the user's counter for the current period and
// returns the post-increment count. The expiry is refreshed in the same
// pipeline so a counter never outlives its period by more than the TTL.
func (s *Store) Incr(ctx context.Context, userID string, now time.Time) (int64, error) {
	key := periodKey(userID, now)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("quota incr: %w", err)
	}
	return incr.Val(), nil
}

// Count returns the current counter value without mutating it.
func (s *Store) Count(ctx context.Context, userID string, now time.Time) (int64, error) {
	n, err := s.client.Get(ctx, periodKey(userID, now)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota count: %w", err)
	}
	return n, nil
}

// Clear removes the counter for the current period. Used by the reconcile
// protocol when the counter has drifted ahead of the durable count.
func (s *Store) Clear(ctx context.Context, userID string, now time.Time) error {
	if err := s.client.Del(ctx, periodKey(userID, now)).Err(); err != nil {
		return fmt.Errorf("quota clear: %w", err)
	}
	return nil
}

func periodKey(userID string, now time.Time) string {
	return fmt.Sprintf("%s%s:%s", genKeyPrefix, userID, now.UTC().Format("2006-01"))
}
