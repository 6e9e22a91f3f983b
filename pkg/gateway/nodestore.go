package gateway

import (
	"context"
	"strings"

	"github.com/pixperk/objmutex/pkg/server"
	"github.com/pixperk/objmutex/pkg/types"
)

// read side of store.Store over the local node, scoped to one bucket
// lets the lock reader and ticket listing run against replicated state directly
type nodeStore struct {
	node     server.Backend
	ns       string
	pageSize int
}

func newNodeStore(node server.Backend, bucket string, pageSize int) *nodeStore {
	return &nodeStore{node: node, ns: bucket + "/", pageSize: pageSize}
}

func (s *nodeStore) Get(ctx context.Context, key string) (*types.Object, error) {
	obj, err := s.node.Get(ctx, s.ns+key)
	if err != nil {
		return nil, err
	}
	obj.Key = key
	return obj, nil
}

func (s *nodeStore) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	info, err := s.node.Head(ctx, s.ns+key)
	if err != nil {
		return types.ObjectInfo{}, err
	}
	info.Key = key
	return info, nil
}

func (s *nodeStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.node.Put(ctx, s.ns+key, body)
	return err
}

func (s *nodeStore) Delete(ctx context.Context, key string) error {
	return s.node.Delete(ctx, s.ns+key)
}

func (s *nodeStore) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	if token != "" {
		token = s.ns + token
	}
	page, err := s.node.List(ctx, s.ns+prefix, token, s.pageSize)
	if err != nil {
		return types.ListPage{}, err
	}
	for i := range page.Objects {
		page.Objects[i].Key = strings.TrimPrefix(page.Objects[i].Key, s.ns)
	}
	page.NextToken = strings.TrimPrefix(page.NextToken, s.ns)
	return page, nil
}

func (s *nodeStore) Close() error {
	return nil
}
