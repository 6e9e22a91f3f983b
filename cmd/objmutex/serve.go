package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	tm "time"

	"github.com/google/uuid"
	pb "github.com/pixperk/objmutex/api/v1"
	"github.com/pixperk/objmutex/pkg/client"
	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/gateway"
	"github.com/pixperk/objmutex/pkg/logger"
	"github.com/pixperk/objmutex/pkg/raft"
	"github.com/pixperk/objmutex/pkg/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

type serveFlags struct {
	nodeID    string
	raftAddr  string
	grpcAddr  string
	httpAddr  string
	dataDir   string
	bootstrap bool
	join      string
}

func parseServeFlags(args []string, stderr io.Writer) (*serveFlags, error) {
	f := &serveFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.nodeID, "node-id", "", "unique node ID (kept in the data dir if empty)")
	fs.StringVar(&f.raftAddr, "raft-addr", "127.0.0.1:7000", "raft bind address")
	fs.StringVar(&f.grpcAddr, "grpc-addr", ":9000", "gRPC server address")
	fs.StringVar(&f.httpAddr, "http-addr", ":8080", "HTTP admin address")
	fs.StringVar(&f.dataDir, "data-dir", "./data", "data directory for raft storage")
	fs.BoolVar(&f.bootstrap, "bootstrap", false, "bootstrap a new cluster")
	fs.StringVar(&f.join, "join", "", "comma separated gRPC addresses of cluster members to join through")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if f.bootstrap && f.join != "" {
		return nil, errors.New("-bootstrap and -join are exclusive")
	}
	return f, nil
}

// a generated id is written to the data dir so restarts keep their raft identity
func resolveNodeID(flagValue, dataDir string) (uuid.UUID, error) {
	if flagValue != "" {
		return uuid.Parse(flagValue)
	}

	path := filepath.Join(dataDir, "node-id")
	if data, err := os.ReadFile(path); err == nil {
		return uuid.Parse(strings.TrimSpace(string(data)))
	} else if !errors.Is(err, os.ErrNotExist) {
		return uuid.Nil, err
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return uuid.Nil, err
	}
	nid := uuid.New()
	if err := os.WriteFile(path, []byte(nid.String()+"\n"), 0o644); err != nil {
		return uuid.Nil, err
	}
	return nid, nil
}

func runServe(ctx context.Context, args []string, configPath string, stdout, stderr io.Writer) int {
	f, err := parseServeFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer log.Sync()

	if err := serve(ctx, f, cfg, log); err != nil {
		log.Error("node failed", zap.Error(err))
		return 1
	}
	return 0
}

func serve(ctx context.Context, f *serveFlags, cfg *config.Config, log *zap.Logger) error {
	nid, err := resolveNodeID(f.nodeID, f.dataDir)
	if err != nil {
		return fmt.Errorf("node id: %w", err)
	}

	log.Info("starting store node",
		zap.String("node_id", nid.String()),
		zap.String("raft_addr", f.raftAddr),
		zap.String("grpc_addr", f.grpcAddr),
		zap.String("http_addr", f.httpAddr),
		zap.String("data_dir", f.dataDir),
		zap.Bool("bootstrap", f.bootstrap),
	)

	node, err := raft.NewNode(&raft.Config{
		NodeID:    nid,
		BindAddr:  f.raftAddr,
		DataDir:   f.dataDir,
		Bootstrap: f.bootstrap,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(server.UnaryLogger(log.Named("grpc"))))
	pb.RegisterObjectStoreServer(grpcServer, server.NewServer(node, cfg.Store.PageSize))

	listener, err := net.Listen("tcp", f.grpcAddr)
	if err != nil {
		node.Shutdown()
		return fmt.Errorf("listen on %s: %w", f.grpcAddr, err)
	}

	gw := gateway.NewServer(node, gateway.Config{
		Addr:       f.httpAddr,
		LockSuffix: cfg.LockSuffix,
		Timeouts:   cfg.Timeouts,
		PageSize:   cfg.Store.PageSize,
		Logger:     log.Named("http"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc server listening", zap.String("addr", listener.Addr().String()))
		return grpcServer.Serve(listener)
	})
	g.Go(func() error {
		log.Info("http gateway listening", zap.String("addr", f.httpAddr))
		return gw.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		grpcServer.GracefulStop()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*tm.Second)
		defer cancel()
		if err := gw.Stop(stopCtx); err != nil {
			log.Warn("http gateway shutdown", zap.Error(err))
		}
		return node.Shutdown()
	})

	if f.join != "" {
		g.Go(func() error {
			return joinCluster(ctx, f.join, nid.String(), node.Addr(), cfg.Store.Timeout, log)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// asks the cluster to add this node, retrying until a leader accepts
func joinCluster(ctx context.Context, endpoints, nodeID, raftAddr string, timeout tm.Duration, log *zap.Logger) error {
	c, err := client.NewClient(client.ParseEndpoints(endpoints), "", timeout)
	if err != nil {
		return err
	}
	defer c.Close()

	for {
		err := c.Join(ctx, nodeID, raftAddr)
		if err == nil {
			log.Info("joined cluster", zap.String("via", endpoints))
			return nil
		}
		log.Warn("join failed, retrying", zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tm.After(2 * tm.Second):
		}
	}
}
