package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/common/metrics"
)

type sessionLock struct {
	ch   chan struct{}
	refs int
}

// MemoryTracker keeps sessions in process. Sessions idle for longer than
// TTL are evicted by a sweep goroutine started with Start and stopped with Stop.
type MemoryTracker struct {
	opts   Options
	logger Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Context

	locksMu sync.Mutex
	locks   map[string]*sessionLock

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewMemoryTracker(opts Options, log Logger) *MemoryTracker {
	return &MemoryTracker{
		opts:     opts.withDefaults(),
		logger:   log,
		now:      time.Now,
		sessions: make(map[string]*Context),
		locks:    make(map[string]*sessionLock),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *MemoryTracker) Load(_ context.Context, sessionID string) (*Context, error) {
	t.mu.RLock()
	conv, ok := t.sessions[sessionID]
	t.mu.RUnlock()

	if ok && !t.expired(conv) {
		return conv.Clone(), nil
	}
	return New(sessionID, t.opts.HistorySize, t.opts.IntentQueueSize), nil
}

func (t *MemoryTracker) Save(_ context.Context, conv *Context) error {
	stored := conv.Clone()
	stored.Touch(t.now())

	t.mu.Lock()
	t.sessions[conv.SessionID] = stored
	n := len(t.sessions)
	t.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return nil
}

func (t *MemoryTracker) Delete(_ context.Context, sessionID string) error {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	return nil
}

// Lock waits for the session until ctx is done.
func (t *MemoryTracker) Lock(ctx context.Context, sessionID string) (func(), error) {
	t.locksMu.Lock()
	l, ok := t.locks[sessionID]
	if !ok {
		l = &sessionLock{ch: make(chan struct{}, 1)}
		t.locks[sessionID] = l
	}
	l.refs++
	t.locksMu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				t.release(sessionID, l)
			})
		}, nil
	case <-ctx.Done():
		t.release(sessionID, l)
		return nil, apperrors.NewSessionLockedError(sessionID)
	}
}

func (t *MemoryTracker) release(sessionID string, l *sessionLock) {
	t.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, sessionID)
	}
	t.locksMu.Unlock()
}

func (t *MemoryTracker) expired(conv *Context) bool {
	return t.now().Sub(conv.UpdatedAt) > t.opts.TTL
}

// Start runs the inactivity sweep until ctx is cancelled or Stop is called.
func (t *MemoryTracker) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.opts.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.Sweep()
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep goroutine and waits for it to exit.
func (t *MemoryTracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	if t.started.Load() {
		<-t.done
	}
}

// Sweep evicts expired sessions and returns how many were removed.
func (t *MemoryTracker) Sweep() int {
	t.mu.Lock()
	removed := 0
	for id, conv := range t.sessions {
		if t.expired(conv) {
			delete(t.sessions, id)
			removed++
		}
	}
	n := len(t.sessions)
	t.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	if removed > 0 {
		t.logger.Debug("Evicted inactive sessions", map[string]interface{}{
			"removed":   removed,
			"remaining": n,
		})
	}
	return removed
}

var _ Tracker = (*MemoryTracker)(nil)
