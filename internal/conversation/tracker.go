package conversation

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Tracker persists contexts between turns. Load returns a fresh context for
// unknown sessions. Lock gives one turn exclusive use of a session until the
// returned unlock is called.
type Tracker interface {
	Load(ctx context.Context, sessionID string) (*Context, error)
	Save(ctx context.Context, conv *Context) error
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
	Delete(ctx context.Context, sessionID string) error
}

// Options configures session lifetime and the shape of new contexts.
type Options struct {
	TTL             time.Duration
	SweepInterval   time.Duration
	LockTTL         time.Duration
	HistorySize     int
	IntentQueueSize int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Hour
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 10
	}
	if o.IntentQueueSize <= 0 {
		o.IntentQueueSize = 10
	}
	return o
}
