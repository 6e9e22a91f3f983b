package fsm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pixperk/objmutex/pkg/types"
)

// stored object state
// ModTime is carried in the log entry, never read from the local clock,
// so every replica holds identical timestamps
type Entry struct {
	Body    []byte    `msgpack:"body"`
	ModTime time.Time `msgpack:"mtime"`
}

// replicated object map keyed by "<bucket>/<key>"
type FSM struct {
	mu sync.RWMutex

	objects map[string]*Entry
}

func NewFSM() *FSM {
	return &FSM{
		objects: make(map[string]*Entry),
	}
}

// applies a command to the FSM and returns the result or error
func (f *FSM) Apply(cmd types.Command) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch c := cmd.(type) {
	case types.PutObjectCmd:
		return f.applyPut(c)
	case types.DeleteObjectCmd:
		return f.applyDelete(c)
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnknownCommand, cmd)
	}
}

func (f *FSM) applyPut(cmd types.PutObjectCmd) (any, error) {
	if cmd.Key == "" {
		return nil, fmt.Errorf("%w: empty key", types.ErrMalformedEntry)
	}

	f.objects[cmd.Key] = &Entry{
		Body:    append([]byte(nil), cmd.Body...),
		ModTime: cmd.ModTime,
	}

	return types.ObjectInfo{
		Key:          cmd.Key,
		LastModified: cmd.ModTime,
		Size:         int64(len(cmd.Body)),
	}, nil
}

// returned when an object is deleted
type DeleteResponse struct {
	Existed bool
}

func (f *FSM) applyDelete(cmd types.DeleteObjectCmd) (any, error) {
	_, existed := f.objects[cmd.Key]
	delete(f.objects, cmd.Key)
	return DeleteResponse{Existed: existed}, nil
}

func (f *FSM) Get(key string) (*types.Object, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	e, ok := f.objects[key]
	if !ok {
		return nil, false
	}
	return &types.Object{
		ObjectInfo: e.info(key),
		Body:       append([]byte(nil), e.Body...),
	}, true
}

// page of keys under prefix sorted ascending, starting after token
func (f *FSM) List(prefix, token string, limit int) types.ListPage {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0)
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page types.ListPage
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		page.NextToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		page.Objects = append(page.Objects, f.objects[k].info(k))
	}
	return page
}

type Stats struct {
	Objects int
	Bytes   int64
}

func (f *FSM) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stats := Stats{Objects: len(f.objects)}
	for _, e := range f.objects {
		stats.Bytes += int64(len(e.Body))
	}
	return stats
}

func (e *Entry) info(key string) types.ObjectInfo {
	return types.ObjectInfo{Key: key, LastModified: e.ModTime, Size: int64(len(e.Body))}
}
