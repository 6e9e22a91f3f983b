package store

import (
	"context"
	"fmt"

	"github.com/pixperk/objmutex/pkg/types"
)

// returned by Get and Head when the key does not exist
var ErrNotFound = types.ErrNotFound

// a flat key/object namespace scoped to one bucket
// implementations must give read-after-write consistency per key and
// stamp LastModified themselves, callers never choose it
type Store interface {
	Get(ctx context.Context, key string) (*types.Object, error)
	Head(ctx context.Context, key string) (types.ObjectInfo, error)
	// overwrites unconditionally
	Put(ctx context.Context, key string, body []byte) error
	// deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// one page of keys under prefix in ascending order, starting after token
	List(ctx context.Context, prefix, token string) (types.ListPage, error)
	Close() error
}

// follows NextToken until the listing is complete
func ListAll(ctx context.Context, s Store, prefix string) ([]types.ObjectInfo, error) {
	var (
		all   []types.ObjectInfo
		token string
	)
	for {
		page, err := s.List(ctx, prefix, token)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		all = append(all, page.Objects...)

		if page.NextToken == "" {
			return all, nil
		}
		if page.NextToken == token {
			return nil, fmt.Errorf("list %s: pagination token %q did not advance", prefix, token)
		}
		token = page.NextToken
	}
}
