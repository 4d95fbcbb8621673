package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "dialog-manager/internal/common/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "dialogue:session:"
	lockKeyPrefix    = "dialogue:lock:"
	lockRetryDelay   = 25 * time.Millisecond
)

// unlockScript deletes the lock only when it is still held by our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTracker stores contexts as JSON with a TTL refreshed on every save,
// so Redis expiry performs inactivity eviction.
type RedisTracker struct {
	client *redis.Client
	opts   Options
	logger Logger
}

func NewRedisTracker(client *redis.Client, opts Options, log Logger) *RedisTracker {
	return &RedisTracker{client: client, opts: opts.withDefaults(), logger: log}
}

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }
func lockKey(sessionID string) string    { return lockKeyPrefix + sessionID }

func (t *RedisTracker) Load(ctx context.Context, sessionID string) (*Context, error) {
	raw, err := t.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(sessionID, t.opts.HistorySize, t.opts.IntentQueueSize), nil
	}
	if err != nil {
		return nil, apperrors.NewSessionStoreFailedError(sessionID, err)
	}

	var conv Context
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, apperrors.NewSessionStoreFailedError(sessionID, fmt.Errorf("decode session: %w", err))
	}
	return &conv, nil
}

func (t *RedisTracker) Save(ctx context.Context, conv *Context) error {
	conv.Touch(time.Now())
	payload, err := json.Marshal(conv)
	if err != nil {
		return apperrors.NewSessionStoreFailedError(conv.SessionID, fmt.Errorf("encode session: %w", err))
	}
	if err := t.client.Set(ctx, sessionKey(conv.SessionID), payload, t.opts.TTL).Err(); err != nil {
		return apperrors.NewSessionStoreFailedError(conv.SessionID, err)
	}
	return nil
}

func (t *RedisTracker) Delete(ctx context.Context, sessionID string) error {
	if err := t.client.Del(ctx, sessionKey(sessionID), lockKey(sessionID)).Err(); err != nil {
		return apperrors.NewSessionStoreFailedError(sessionID, err)
	}
	return nil
}

// Lock takes a SET NX PX lock, retrying until ctx is done. The lock expires
// after LockTTL so a crashed holder cannot block the session forever.
func (t *RedisTracker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := lockKey(sessionID)
	token := uuid.NewString()

	for {
		ok, err := t.client.SetNX(ctx, key, token, t.opts.LockTTL).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewSessionStoreFailedError(sessionID, err)
		}
		if ok {
			return func() {
				unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := unlockScript.Run(unlockCtx, t.client, []string{key}, token).Err(); err != nil {
					t.logger.Warn("Failed to release session lock", map[string]interface{}{
						"sessionId": sessionID,
						"error":     err.Error(),
					})
				}
			}, nil
		}

		timer := time.NewTimer(lockRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.NewSessionLockedError(sessionID)
		case <-timer.C:
		}
	}
}

var _ Tracker = (*RedisTracker)(nil)
