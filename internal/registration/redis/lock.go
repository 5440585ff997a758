package redis

import (
	"context"
	"fmt"
	"time"

	"smec-portal/internal/logger"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL bounds how long a crashed submitter can hold a lock.
const DefaultTTL = 2 * time.Minute

// releaseScript deletes the key only while owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmissionLock keeps one purchase per user and event in flight across
// every process that shares the Redis instance.
type SubmissionLock struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	Logger *logger.Logger
}

func NewSubmissionLock(client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *SubmissionLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SubmissionLock{Client: client, Prefix: prefix, TTL: ttl, Logger: log}
}

func (l *SubmissionLock) key(userID, eventID string) string {
	return fmt.Sprintf("%s:submit:%s:%s", l.Prefix, userID, eventID)
}

// Acquire reports false when another owner holds the lock.
func (l *SubmissionLock) Acquire(ctx context.Context, userID, eventID, owner string) (bool, error) {
	if l.Client == nil {
		return false, fmt.Errorf("redis client not initialized")
	}
	ok, err := l.Client.SetNX(ctx, l.key(userID, eventID), owner, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire submission lock: %w", err)
	}
	if !ok {
		l.Logger.Debug("REDIS", fmt.Sprintf("Submission lock for %s/%s held elsewhere", userID, eventID))
	}
	return ok, nil
}

// Release is a no-op when the lock expired or changed hands.
func (l *SubmissionLock) Release(ctx context.Context, userID, eventID, owner string) error {
	if l.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if err := releaseScript.Run(ctx, l.Client, []string{l.key(userID, eventID)}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release submission lock: %w", err)
	}
	return nil
}

// Held reports whether any owner holds the lock.
func (l *SubmissionLock) Held(ctx context.Context, userID, eventID string) (bool, error) {
	n, err := l.Client.Exists(ctx, l.key(userID, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
