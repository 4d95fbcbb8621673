package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{TTL: time.Hour, SweepInterval: 10 * time.Millisecond, LockTTL: time.Second, HistorySize: 4, IntentQueueSize: 4}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func trackers(t *testing.T) map[string]Tracker {
	_, client := setupRedis(t)
	return map[string]Tracker{
		"memory": NewMemoryTracker(testOptions(), logger.NewTestLogger(t)),
		"redis":  NewRedisTracker(client, testOptions(), logger.NewTestLogger(t)),
	}
}

func TestTracker_LoadSaveRoundTrip(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv, err := tracker.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "s1", conv.SessionID)
			assert.Equal(t, StateUnresolved, conv.ResolutionState)
			assert.Equal(t, 4, conv.History.Size)

			conv.CurrentIntent = models.NewIntent("root.billing.refund", 0.8)
			conv.MergeEntities([]models.Entity{entity("order_id", "A1", 0.9)})
			conv.AddHistory(models.RoleUser, "refund A1")
			conv.IncrementInquiry()
			require.NoError(t, tracker.Save(ctx, conv))

			loaded, err := tracker.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "root.billing.refund", loaded.CurrentIntent.Name)
			assert.Equal(t, 1, loaded.InquiryTimes)
			assert.Equal(t, []string{"order_id"}, loaded.FilledSlotNames())
			assert.Equal(t, 1, loaded.History.Len())

			require.NoError(t, tracker.Delete(ctx, "s1"))
			fresh, err := tracker.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Nil(t, fresh.CurrentIntent)
		})
	}
}

func TestTracker_LockIsExclusivePerSession(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			unlock, err := tracker.Lock(ctx, "s1")
			require.NoError(t, err)

			// a different session is independent
			other, err := tracker.Lock(ctx, "s2")
			require.NoError(t, err)
			other()

			waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
			defer cancel()
			_, err = tracker.Lock(waitCtx, "s1")
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionLocked), "got %v", err)

			unlock()
			again, err := tracker.Lock(ctx, "s1")
			require.NoError(t, err)
			again()
		})
	}
}

func TestTracker_LockSerializesTurns(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				active int
				peak   int
			)
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := tracker.Lock(ctx, "shared")
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					active++
					if active > peak {
						peak = active
					}
					mu.Unlock()

					time.Sleep(5 * time.Millisecond)

					mu.Lock()
					active--
					mu.Unlock()
					unlock()
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, peak)
		})
	}
}

func TestMemoryTracker_SweepEvictsInactive(t *testing.T) {
	tracker := NewMemoryTracker(testOptions(), logger.NewTestLogger(t))
	now := time.Now()
	tracker.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, tracker.Save(ctx, New("old", 4, 4)))
	now = now.Add(30 * time.Minute)
	require.NoError(t, tracker.Save(ctx, New("recent", 4, 4)))

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 1, tracker.Sweep())

	conv, err := tracker.Load(ctx, "recent")
	require.NoError(t, err)
	assert.Equal(t, "recent", conv.SessionID)
	assert.Len(t, tracker.sessions, 1)
}

func TestMemoryTracker_LoadTreatsExpiredAsNew(t *testing.T) {
	tracker := NewMemoryTracker(testOptions(), logger.NewTestLogger(t))
	now := time.Now()
	tracker.now = func() time.Time { return now }

	conv := New("s1", 4, 4)
	conv.InquiryTimes = 2
	require.NoError(t, tracker.Save(context.Background(), conv))

	now = now.Add(2 * time.Hour)
	loaded, err := tracker.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.InquiryTimes)
}

func TestMemoryTracker_StartStop(t *testing.T) {
	tracker := NewMemoryTracker(testOptions(), logger.NewTestLogger(t))
	now := time.Now()
	var mu sync.Mutex
	tracker.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	require.NoError(t, tracker.Save(context.Background(), New("s1", 4, 4)))
	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	tracker.Start(context.Background())
	assert.Eventually(t, func() bool {
		tracker.mu.RLock()
		defer tracker.mu.RUnlock()
		return len(tracker.sessions) == 0
	}, time.Second, 10*time.Millisecond)

	tracker.Stop()
	tracker.Stop()
}

func TestMemoryTracker_StopWithoutStart(t *testing.T) {
	tracker := NewMemoryTracker(testOptions(), logger.NewTestLogger(t))
	assert.NotPanics(t, tracker.Stop)
}

func TestRedisTracker_SessionExpires(t *testing.T) {
	mr, client := setupRedis(t)
	tracker := NewRedisTracker(client, testOptions(), logger.NewTestLogger(t))
	ctx := context.Background()

	conv := New("s1", 4, 4)
	conv.InquiryTimes = 1
	require.NoError(t, tracker.Save(ctx, conv))
	assert.Equal(t, time.Hour, mr.TTL(sessionKey("s1")))

	mr.FastForward(time.Hour + time.Second)
	loaded, err := tracker.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.InquiryTimes)
}

func TestRedisTracker_UnlockKeepsForeignLock(t *testing.T) {
	mr, client := setupRedis(t)
	tracker := NewRedisTracker(client, testOptions(), logger.NewTestLogger(t))

	unlock, err := tracker.Lock(context.Background(), "s1")
	require.NoError(t, err)

	// our lock expired and someone else took it
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(lockKey("s1"), "someone-else"))

	unlock()
	val, err := mr.Get(lockKey("s1"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestRedisTracker_StoreFailures(t *testing.T) {
	client, mock := redismock.NewClientMock()
	tracker := NewRedisTracker(client, testOptions(), logger.NewTestLogger(t))
	ctx := context.Background()

	mock.ExpectGet(sessionKey("s1")).SetErr(errors.New("connection refused"))
	_, err := tracker.Load(ctx, "s1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionStoreFailed))
	assert.True(t, apperrors.IsRetryable(err))

	mock.ExpectGet(sessionKey("s2")).SetVal("{not json")
	_, err = tracker.Load(ctx, "s2")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionStoreFailed))

	mock.ExpectDel(sessionKey("s3"), lockKey("s3")).SetErr(errors.New("readonly"))
	err = tracker.Delete(ctx, "s3")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionStoreFailed))

	assert.NoError(t, mock.ExpectationsWereMet())
}
