package main

import (
	"context"
	"errors"
	"io"
	tm "time"

	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/logger"
	"github.com/pixperk/objmutex/pkg/metrics"
	"github.com/pixperk/objmutex/pkg/mutex"
	"github.com/pixperk/objmutex/pkg/openjd"
	"github.com/pixperk/objmutex/pkg/store"
	"github.com/pixperk/objmutex/pkg/telemetry"
	"github.com/pixperk/objmutex/pkg/time"
	"go.uber.org/zap"
)

func runMutex(ctx context.Context, action string, args []string, configPath string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		openjd.Fail(stdout, "usage: objmutex "+action+" <resource-url>")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		openjd.Fail(stdout, err.Error())
		return 1
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		openjd.Fail(stdout, err.Error())
		return 1
	}
	defer log.Sync()

	if err := mutexAction(ctx, action, args[0], cfg, log); err != nil {
		log.Error(action+" failed", zap.Error(err))
		openjd.Fail(stdout, err.Error())
		return 1
	}
	return 0
}

func mutexAction(ctx context.Context, action, rawURL string, cfg *config.Config, log *zap.Logger) error {
	// validated before anything touches the store
	u, err := store.ParseResourceURL(rawURL)
	if err != nil {
		return err
	}
	if err := u.CheckScheme(cfg.Store.Backend); err != nil {
		return err
	}
	id, err := config.LoadIdentity()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	clock := time.NewClock()
	s, err := store.Open(ctx, cfg.Store, u.Bucket, clock)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := mutex.New(mutex.Config{
		Store:      s,
		Resource:   u,
		Identity:   id,
		LockSuffix: cfg.LockSuffix,
		Timeouts:   cfg.Timeouts,
		Clock:      clock,
		Logger:     log.With(zap.String("session_id", id.SessionID)),
	})
	if err != nil {
		return err
	}
	defer pushMetrics(cfg.Telemetry, id.SessionID, log)

	switch action {
	case "enter":
		return m.Enter(ctx)
	case "exit":
		released, err := m.Exit(ctx)
		if err != nil {
			return err
		}
		if released {
			log.Info("mutex released")
		}
		return nil
	default:
		return errors.New("unknown action " + action)
	}
}

func pushMetrics(cfg config.TelemetryConfig, session string, log *zap.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*tm.Second)
	defer cancel()

	if err := metrics.Push(ctx, cfg.PushgatewayURL, cfg.ServiceName, map[string]string{"session": session}); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}
