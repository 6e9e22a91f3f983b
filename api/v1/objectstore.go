// Package v1 defines the objmutex.v1.ObjectStore gRPC service served by replicated
// store nodes. Messages are plain structs carried with the msgpack codec.
package v1

import (
	"github.com/pixperk/objmutex/pkg/types"
)

type GetRequest struct {
	Bucket string `msgpack:"bucket"`
	Key    string `msgpack:"key"`
}

type GetResponse struct {
	Object types.Object `msgpack:"object"`
}

type HeadRequest struct {
	Bucket string `msgpack:"bucket"`
	Key    string `msgpack:"key"`
}

type HeadResponse struct {
	Info types.ObjectInfo `msgpack:"info"`
}

type PutRequest struct {
	Bucket string `msgpack:"bucket"`
	Key    string `msgpack:"key"`
	Body   []byte `msgpack:"body"`
}

// Info carries the timestamp the leader stamped on the write
type PutResponse struct {
	Info types.ObjectInfo `msgpack:"info"`
}

type DeleteRequest struct {
	Bucket string `msgpack:"bucket"`
	Key    string `msgpack:"key"`
}

type DeleteResponse struct{}

type ListRequest struct {
	Bucket string `msgpack:"bucket"`
	Prefix string `msgpack:"prefix"`
	Token  string `msgpack:"token"`
}

type ListResponse struct {
	Page types.ListPage `msgpack:"page"`
}

type StatusRequest struct{}

type StatusResponse struct {
	NodeID       string `msgpack:"node_id" json:"nodeId"`
	State        string `msgpack:"state" json:"state"`
	IsLeader     bool   `msgpack:"is_leader" json:"isLeader"`
	LeaderAddr   string `msgpack:"leader_addr" json:"leaderAddr"`
	ClusterSize  int    `msgpack:"cluster_size" json:"clusterSize"`
	Objects      int    `msgpack:"objects" json:"objects"`
	AppliedIndex uint64 `msgpack:"applied_index" json:"appliedIndex"`
}

type JoinRequest struct {
	NodeID   string `msgpack:"node_id"`
	RaftAddr string `msgpack:"raft_addr"`
}

type JoinResponse struct{}
