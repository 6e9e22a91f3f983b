package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	tm "time"

	"github.com/pixperk/objmutex/pkg/types"
	"github.com/redis/go-redis/v9"
)

// the timestamp comes from the redis server clock so all workers agree on it
var putScript = redis.NewScript(`
local t = redis.call('TIME')
redis.call('HSET', KEYS[1], 'body', ARGV[1], 'sec', t[1], 'usec', t[2])
redis.call('ZADD', KEYS[2], 0, ARGV[2])
return 1
`)

// objects are hashes {body, sec, usec}; a per-bucket sorted set with equal scores
// keeps the keys in lexical order for prefix listing
type RedisStore struct {
	rdb      redis.UniversalClient
	bucket   string
	pageSize int
}

func NewRedisStore(rdb redis.UniversalClient, bucket string, pageSize int) *RedisStore {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &RedisStore{rdb: rdb, bucket: bucket, pageSize: pageSize}
}

func (r *RedisStore) objectKey(key string) string {
	return fmt.Sprintf("objmutex:{%s}:obj:%s", r.bucket, key)
}

func (r *RedisStore) indexKey() string {
	return fmt.Sprintf("objmutex:{%s}:index", r.bucket)
}

func (r *RedisStore) Get(ctx context.Context, key string) (*types.Object, error) {
	vals, err := r.rdb.HMGet(ctx, r.objectKey(key), "body", "sec", "usec").Result()
	if err != nil {
		return nil, err
	}
	return decodeRedisObject(key, vals)
}

func (r *RedisStore) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	obj, err := r.Get(ctx, key)
	if err != nil {
		return types.ObjectInfo{}, err
	}
	return obj.ObjectInfo, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	keys := []string{r.objectKey(key), r.indexKey()}
	return putScript.Run(ctx, r.rdb, keys, body, key).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.objectKey(key))
		pipe.ZRem(ctx, r.indexKey(), key)
		return nil
	})
	return err
}

func (r *RedisStore) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	lo := "[" + prefix
	if token != "" {
		lo = "(" + token
	}
	// 0xff never occurs in utf-8, so it bounds every key under prefix
	hi := "[" + prefix + "\xff"

	keys, err := r.rdb.ZRangeByLex(ctx, r.indexKey(), &redis.ZRangeBy{
		Min:   lo,
		Max:   hi,
		Count: int64(r.pageSize + 1),
	}).Result()
	if err != nil {
		return types.ListPage{}, err
	}

	var page types.ListPage
	if len(keys) > r.pageSize {
		keys = keys[:r.pageSize]
		page.NextToken = keys[len(keys)-1]
	}
	if len(keys) == 0 {
		return page, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(ctx, r.objectKey(k), "body", "sec", "usec")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.ListPage{}, err
	}

	for i, k := range keys {
		obj, err := decodeRedisObject(k, cmds[i].Val())
		if errors.Is(err, ErrNotFound) {
			// deleted between the index read and the fetch
			continue
		}
		if err != nil {
			return types.ListPage{}, err
		}
		page.Objects = append(page.Objects, obj.ObjectInfo)
	}
	return page, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func decodeRedisObject(key string, vals []interface{}) (*types.Object, error) {
	if len(vals) != 3 || vals[0] == nil || vals[1] == nil || vals[2] == nil {
		return nil, ErrNotFound
	}

	body, _ := vals[0].(string)
	sec, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis object %s: bad timestamp: %w", key, err)
	}
	usec, err := strconv.ParseInt(fmt.Sprint(vals[2]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis object %s: bad timestamp: %w", key, err)
	}

	return &types.Object{
		ObjectInfo: types.ObjectInfo{
			Key:          key,
			LastModified: tm.Unix(sec, usec*int64(tm.Microsecond)).UTC(),
			Size:         int64(len(body)),
		},
		Body: []byte(body),
	}, nil
}
