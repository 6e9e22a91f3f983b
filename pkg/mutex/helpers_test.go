package mutex

import (
	"context"
	"testing"
	tm "time"

	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/store"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = tm.Date(2024, 3, 1, 12, 0, 0, 0, tm.UTC)

var resource = store.ResourceURL{Scheme: store.BackendMemory, Bucket: "farm", Key: "conda/pkg.tar.bz2"}

const lockKey = "conda/pkg.tar.bz2.s3-object-mutex-lock.json"

func identity(session string) types.Identity {
	return types.Identity{
		FarmID:    "farm-1",
		QueueID:   "queue-1",
		FleetID:   "fleet-1",
		JobID:     "job-" + session,
		SessionID: session,
		WorkerID:  "worker-" + session,
	}
}

func defaultTimeouts() config.Timeouts {
	return config.Default().Timeouts
}

type fixture struct {
	clock *time.FakeClock
	store *store.MemoryStore
	logs  *observer.ObservedLogs
	log   *zap.Logger
}

func newFixture() *fixture {
	core, logs := observer.New(zapcore.DebugLevel)
	clock := time.NewFakeClock(t0)
	return &fixture{
		clock: clock,
		store: store.NewMemoryStore(clock, 2),
		logs:  logs,
		log:   zap.New(core),
	}
}

func (f *fixture) mutex(t *testing.T, session string) *Mutex {
	t.Helper()
	return f.mutexOn(t, f.store, session)
}

func (f *fixture) mutexOn(t *testing.T, s store.Store, session string) *Mutex {
	t.Helper()
	m, err := New(Config{
		Store:    s,
		Resource: resource,
		Identity: identity(session),
		Timeouts: defaultTimeouts(),
		Clock:    f.clock,
		Logger:   f.log.With(zap.String("session", session)),
	})
	require.NoError(t, err)
	return m
}

// current lock holder and write time, fails the test when there is no lock object
func (f *fixture) lock(t *testing.T) (types.Identity, tm.Time) {
	t.Helper()
	obj, err := f.store.Get(context.Background(), lockKey)
	require.NoError(t, err)
	id, err := types.ParseIdentity(obj.Body)
	require.NoError(t, err)
	return id, obj.LastModified
}

func (f *fixture) exists(key string) bool {
	_, err := f.store.Head(context.Background(), key)
	return err == nil
}

// store wrapper that fails selected operations
type faultyStore struct {
	store.Store
	getErr    error
	putErr    error
	deleteErr error
	listErr   error
}

func (s *faultyStore) Get(ctx context.Context, key string) (*types.Object, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *faultyStore) Put(ctx context.Context, key string, body []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, key, body)
}

func (s *faultyStore) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, key)
}

func (s *faultyStore) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	if s.listErr != nil {
		return types.ListPage{}, s.listErr
	}
	return s.Store.List(ctx, prefix, token)
}

// matches log entries written by the named session's logger
func zapSession(session string) zap.Field {
	return zap.String("session", session)
}
