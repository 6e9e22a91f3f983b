package types

import "time"

// metadata of a stored object
// LastModified is the only clock the mutex protocol trusts
type ObjectInfo struct {
	Key          string    `msgpack:"key" json:"key"`
	LastModified time.Time `msgpack:"last_modified" json:"lastModified"`
	Size         int64     `msgpack:"size" json:"size"`
}

// age of the object relative to now
func (o ObjectInfo) Age(now time.Time) time.Duration {
	return now.Sub(o.LastModified)
}

type Object struct {
	ObjectInfo
	Body []byte `msgpack:"body" json:"-"`
}

// one page of a prefix listing, keys ascending
// an empty NextToken means the listing is complete
type ListPage struct {
	Objects   []ObjectInfo `msgpack:"objects" json:"objects"`
	NextToken string       `msgpack:"next_token" json:"nextToken,omitempty"`
}
