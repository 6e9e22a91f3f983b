package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	tm "time"

	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
)

type memObject struct {
	body    []byte
	modTime tm.Time
}

// process-local store, timestamps come from the injected clock
// used by tests and by single-host runs
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]memObject
	clock    time.Clock
	pageSize int
}

func NewMemoryStore(clock time.Clock, pageSize int) *MemoryStore {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &MemoryStore{
		objects:  make(map[string]memObject),
		clock:    clock,
		pageSize: pageSize,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*types.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &types.Object{
		ObjectInfo: m.info(key, obj),
		Body:       append([]byte(nil), obj.body...),
	}, nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.ObjectInfo{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return types.ObjectInfo{}, ErrNotFound
	}
	return m.info(key, obj), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, body []byte) error {
	return m.PutAt(ctx, key, body, m.clock.Now())
}

// writes an object with an explicit modification time
func (m *MemoryStore) PutAt(ctx context.Context, key string, body []byte, modTime tm.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memObject{body: append([]byte(nil), body...), modTime: modTime}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return types.ListPage{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page types.ListPage
	if len(keys) > m.pageSize {
		keys = keys[:m.pageSize]
		page.NextToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		page.Objects = append(page.Objects, m.info(k, m.objects[k]))
	}
	return page, nil
}

// number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) info(key string, obj memObject) types.ObjectInfo {
	return types.ObjectInfo{Key: key, LastModified: obj.modTime, Size: int64(len(obj.body))}
}
