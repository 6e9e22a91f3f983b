package mutex

import (
	"context"
	"errors"
	"fmt"
	tm "time"

	"github.com/pixperk/objmutex/pkg/store"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// a lock object that is currently held
type LockState struct {
	Identity     types.Identity
	Remaining    tm.Duration
	LastModified tm.Time
}

// decides whether the lock object at key is held
// a missing, expired or unparsable lock object all read as absent (nil state)
type Reader struct {
	store   store.Store
	key     string
	timeout tm.Duration
	clock   time.Clock
	log     *zap.Logger
}

func NewReader(s store.Store, lockKey string, timeout tm.Duration, clock time.Clock, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{store: s, key: lockKey, timeout: timeout, clock: clock, log: log}
}

func (r *Reader) Key() string {
	return r.key
}

func (r *Reader) Read(ctx context.Context) (*LockState, error) {
	return r.ReadWithTimeout(ctx, r.timeout)
}

// same as Read with a different validity window, exit uses a shortened one
func (r *Reader) ReadWithTimeout(ctx context.Context, timeout tm.Duration) (*LockState, error) {
	obj, err := r.store.Get(ctx, r.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock %s: %w", r.key, err)
	}

	remaining := obj.LastModified.Add(timeout).Sub(r.clock.Now())
	if remaining <= 0 {
		return nil, nil
	}

	id, err := types.ParseIdentity(obj.Body)
	if err != nil {
		r.log.Warn("ignoring lock object with invalid body", zap.String("key", r.key), zap.Error(err))
		return nil, nil
	}

	return &LockState{
		Identity:     id,
		Remaining:    remaining,
		LastModified: obj.LastModified,
	}, nil
}

// logs an identity as a nested object
type identityField types.Identity

func (id identityField) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("farm_id", id.FarmID)
	enc.AddString("queue_id", id.QueueID)
	enc.AddString("fleet_id", id.FleetID)
	enc.AddString("job_id", id.JobID)
	enc.AddString("session_id", id.SessionID)
	enc.AddString("worker_id", id.WorkerID)
	return nil
}
