package store

import (
	"fmt"
	"strings"

	"github.com/pixperk/objmutex/pkg/types"
)

// backend names double as resource url schemes
const (
	BackendS3     = "s3"
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendSQL    = "sql"
	BackendRaft   = "raft"
	BackendMemory = "mem"
)

var backends = map[string]bool{
	BackendS3:     true,
	BackendRedis:  true,
	BackendFile:   true,
	BackendSQL:    true,
	BackendRaft:   true,
	BackendMemory: true,
}

// <scheme>://<bucket>/<object key>
type ResourceURL struct {
	Scheme string
	Bucket string
	Key    string
}

func (u ResourceURL) String() string {
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// address of another object in the same bucket, used in log lines
func (u ResourceURL) Object(key string) string {
	return u.Scheme + "://" + u.Bucket + "/" + key
}

// splits a resource url; '#' and '?' are kept as part of the key
func ParseResourceURL(raw string) (ResourceURL, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || !validScheme(scheme) {
		return ResourceURL{}, fmt.Errorf("%w: %q has no scheme", types.ErrInvalidResourceURL, raw)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if bucket == "" {
		return ResourceURL{}, fmt.Errorf("%w: %q has no bucket", types.ErrInvalidResourceURL, raw)
	}
	if key == "" {
		return ResourceURL{}, fmt.Errorf("%w: %q has no object key", types.ErrInvalidResourceURL, raw)
	}

	return ResourceURL{Scheme: strings.ToLower(scheme), Bucket: bucket, Key: key}, nil
}

// the url must address the configured backend
func (u ResourceURL) CheckScheme(backend string) error {
	if u.Scheme != backend {
		return fmt.Errorf("%w: input object %s is not a %s:// URL", types.ErrSchemeMismatch, u, backend)
	}
	return nil
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func knownBackend(name string) bool {
	return backends[name]
}
