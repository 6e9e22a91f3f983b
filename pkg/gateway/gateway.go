// Package gateway serves the admin HTTP API of a store node: health, metrics,
// cluster status, object listings and the lock state of protected resources.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	tm "time"

	"github.com/gin-gonic/gin"
	pb "github.com/pixperk/objmutex/api/v1"
	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/mutex"
	"github.com/pixperk/objmutex/pkg/server"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Config struct {
	Addr       string
	LockSuffix string
	Timeouts   config.Timeouts
	PageSize   int
	Clock      time.Clock
	Logger     *zap.Logger
}

type Server struct {
	httpServer *http.Server
	node       server.Backend
	cfg        Config
	log        *zap.Logger
}

func NewServer(node server.Backend, cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = time.NewClock()
	}
	if cfg.LockSuffix == "" {
		cfg.LockSuffix = config.DefaultLockSuffix
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		node: node,
		cfg:  cfg,
		log:  log,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * tm.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metricsMiddleware(), loggingMiddleware(s.log))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/status", s.status)
	v1.GET("/objects/:bucket", s.listObjects)
	v1.GET("/locks/:bucket/*key", s.lockState)

	return r
}

// serves until Stop is called; requests inherit ctx
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP gateway: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"leader": s.node.IsLeader(),
	})
}

func (s *Server) status(c *gin.Context) {
	st := s.node.Status()
	c.JSON(http.StatusOK, pb.StatusResponse{
		NodeID:       st.NodeID,
		State:        st.State,
		IsLeader:     st.IsLeader,
		LeaderAddr:   st.LeaderAddr,
		ClusterSize:  st.ClusterSize,
		Objects:      st.Objects,
		AppliedIndex: st.AppliedIndex,
	})
}

func (s *Server) listObjects(c *gin.Context) {
	bucket := c.Param("bucket")
	if !s.leaderOnly(c) {
		return
	}

	page, err := newNodeStore(s.node, bucket, s.cfg.PageSize).List(c.Request.Context(), c.Query("prefix"), c.Query("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if page.Objects == nil {
		page.Objects = []types.ObjectInfo{}
	}
	c.JSON(http.StatusOK, page)
}

type queueEntry struct {
	SessionID string  `json:"sessionId"`
	Since     tm.Time `json:"since"`
}

type lockResponse struct {
	Lock         string          `json:"lock"`
	Held         bool            `json:"held"`
	Holder       *types.Identity `json:"holder,omitempty"`
	ExpiresIn    float64         `json:"expiresInSeconds,omitempty"`
	LastModified *tm.Time        `json:"lastModified,omitempty"`
	Queue        []queueEntry    `json:"queue"`
}

// lock state and live queue exactly as a session entering now would see them
func (s *Server) lockState(c *gin.Context) {
	bucket := c.Param("bucket")
	key := strings.TrimLeft(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "object key required"})
		return
	}
	if !s.leaderOnly(c) {
		return
	}

	ctx := c.Request.Context()
	ns := newNodeStore(s.node, bucket, s.cfg.PageSize)
	lockKey := key + s.cfg.LockSuffix

	state, err := mutex.NewReader(ns, lockKey, s.cfg.Timeouts.Lock, s.cfg.Clock, s.log).Read(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	tickets := mutex.NewTickets(ns, lockKey, "", s.cfg.Timeouts)
	all, err := tickets.List(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := lockResponse{Lock: bucket + "/" + lockKey, Queue: []queueEntry{}}
	if state != nil {
		resp.Held = true
		resp.Holder = &state.Identity
		resp.ExpiresIn = state.Remaining.Seconds()
		resp.LastModified = &state.LastModified
	}
	for _, o := range mutex.Order(tickets.Live(all, s.cfg.Clock.Now())) {
		resp.Queue = append(resp.Queue, queueEntry{SessionID: mutex.SessionOf(o.Key), Since: o.LastModified})
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) leaderOnly(c *gin.Context) bool {
	if s.node.IsLeader() {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":  "not leader",
		"leader": s.node.GetLeader(),
	})
	return false
}

func (s *Server) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotLeader):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusInternalServerError {
		s.log.Error("admin request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
