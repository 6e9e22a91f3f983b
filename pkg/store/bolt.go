package store

import (
	"bytes"
	"context"
	"fmt"
	tm "time"

	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

type boltRecord struct {
	Body    []byte `msgpack:"body"`
	ModTime int64  `msgpack:"mtime"` // unix nanoseconds
}

// single file store for sessions sharing one host or a network filesystem
// bbolt holds an exclusive file lock, so concurrent processes wait on Open
type BoltStore struct {
	db       *bolt.DB
	bucket   []byte
	clock    time.Clock
	pageSize int
}

func NewBoltStore(path, bucket string, clock time.Clock, pageSize int) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 30 * tm.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	if pageSize <= 0 {
		pageSize = 1000
	}
	return &BoltStore{db: db, bucket: []byte(bucket), clock: clock, pageSize: pageSize}, nil
}

func (b *BoltStore) Get(ctx context.Context, key string) (*types.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var obj *types.Object
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(b.bucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		rec, err := decodeBoltRecord(raw)
		if err != nil {
			return fmt.Errorf("bolt object %s: %w", key, err)
		}
		obj = &types.Object{ObjectInfo: rec.info(key), Body: rec.Body}
		return nil
	})
	return obj, err
}

func (b *BoltStore) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	obj, err := b.Get(ctx, key)
	if err != nil {
		return types.ObjectInfo{}, err
	}
	return obj.ObjectInfo, nil
}

func (b *BoltStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := msgpack.Marshal(boltRecord{Body: body, ModTime: b.clock.Now().UnixNano()})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), raw)
	})
}

func (b *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

func (b *BoltStore) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return types.ListPage{}, err
	}

	var page types.ListPage
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()

		start := []byte(prefix)
		if token > prefix {
			start = []byte(token)
		}

		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, v = c.Next() {
			if string(k) <= token {
				continue
			}
			if len(page.Objects) == b.pageSize {
				page.NextToken = page.Objects[len(page.Objects)-1].Key
				return nil
			}
			rec, err := decodeBoltRecord(v)
			if err != nil {
				return fmt.Errorf("bolt object %s: %w", k, err)
			}
			page.Objects = append(page.Objects, rec.info(string(k)))
		}
		return nil
	})
	return page, err
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func decodeBoltRecord(raw []byte) (boltRecord, error) {
	var rec boltRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return boltRecord{}, err
	}
	return rec, nil
}

func (r boltRecord) info(key string) types.ObjectInfo {
	return types.ObjectInfo{
		Key:          key,
		LastModified: tm.Unix(0, r.ModTime).UTC(),
		Size:         int64(len(r.Body)),
	}
}
