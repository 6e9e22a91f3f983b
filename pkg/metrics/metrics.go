package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// time from enter until the lock object is written
	// includes every poll spent waiting behind other sessions, so buckets span seconds to hours
	LockAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objmutex_lock_acquire_duration_seconds",
			Help:    "time taken to acquire a lock",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2h
		},
		[]string{"backend"},
	)

	// labels: backend, status (success/failure)
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objmutex_lock_acquire_total",
			Help: "total number of lock acquisitions",
		},
		[]string{"backend", "status"},
	)

	// labels: backend, outcome (released/not_owner/failure)
	// not_owner means the lock expired or was taken over before exit
	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objmutex_lock_release_total",
			Help: "total number of lock releases",
		},
		[]string{"backend", "outcome"},
	)

	// live tickets seen on the last poll, the caller included
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "objmutex_queue_depth",
			Help: "number of live tickets seen on the last poll",
		},
	)

	// own ticket rewritten because it went missing or aged past the refresh threshold
	TicketRefreshTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "objmutex_ticket_refresh_total",
			Help: "total number of ticket re-registrations",
		},
	)

	// stale tickets removed during post-acquire cleanup
	TicketCleanupTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "objmutex_ticket_cleanup_total",
			Help: "total number of stale tickets deleted",
		},
	)

	// labels: backend, op (get/head/put/delete/list), status (success/not_found/failure)
	StoreOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objmutex_store_op_total",
			Help: "total number of object store operations",
		},
		[]string{"backend", "op", "status"},
	)

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objmutex_store_op_duration_seconds",
			Help:    "object store operation latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"backend", "op"},
	)

	// objects held by this replicated node
	NodeObjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "objmutex_node_objects",
			Help: "number of objects stored on this node",
		},
	)

	// raft leader status - 1 if this node is leader, 0 if follower
	// exactly one node in cluster should have this = 1
	RaftIsLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "objmutex_raft_is_leader",
			Help: "whether this node is the raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "objmutex_raft_peers",
			Help: "number of peers in the raft cluster",
		},
	)

	// raft log index - last index applied to FSM
	RaftAppliedIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "objmutex_raft_applied_index",
			Help: "last raft log index applied to the fsm",
		},
	)

	// admin http api, endpoint is the route pattern not the raw path
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objmutex_http_requests_total",
			Help: "total number of admin http requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objmutex_http_request_duration_seconds",
			Help:    "admin http request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// service uptime - always 1 when running
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "objmutex_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

func init() {
	Up.Set(1)
}
