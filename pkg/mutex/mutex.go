// Package mutex implements a fair distributed mutex on top of a plain object store.
//
// A session queues by writing a ticket object next to the lock object, waits until
// its ticket is the oldest live one and then writes the lock object with its
// identity. Expired locks and tickets are treated as absent, so a session that
// disappears never blocks the others for longer than the configured timeouts.
package mutex

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	tm "time"

	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/metrics"
	"github.com/pixperk/objmutex/pkg/store"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/pixperk/objmutex/pkg/mutex")

// cleanup deletes run with at most this many in flight
const cleanupConcurrency = 8

type State int32

const (
	StateIdle State = iota
	StateWaitingForLock
	StateTicketRegistered
	StatePollingQueue
	StateHoldingLock
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitingForLock:
		return "WAITING_FOR_LOCK"
	case StateTicketRegistered:
		return "TICKET_REGISTERED"
	case StatePollingQueue:
		return "POLLING_QUEUE"
	case StateHoldingLock:
		return "HOLDING_LOCK"
	case StateReleased:
		return "RELEASED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Config struct {
	Store      store.Store
	Resource   store.ResourceURL
	Identity   types.Identity
	LockSuffix string
	Timeouts   config.Timeouts
	Clock      time.Clock
	Logger     *zap.Logger
}

// one session's handle on the mutex guarding one resource
type Mutex struct {
	store    store.Store
	resource store.ResourceURL
	identity types.Identity
	timeouts config.Timeouts
	clock    time.Clock
	log      *zap.Logger

	lockKey string
	reader  *Reader
	tickets *Tickets
	state   atomic.Int32
}

func New(cfg Config) (*Mutex, error) {
	if cfg.Store == nil {
		return nil, errors.New("mutex: store is required")
	}
	if err := cfg.Identity.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Timeouts.Validate(); err != nil {
		return nil, err
	}
	if cfg.LockSuffix == "" {
		cfg.LockSuffix = config.DefaultLockSuffix
	}
	if cfg.Clock == nil {
		cfg.Clock = time.NewClock()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	lockKey := cfg.Resource.Key + cfg.LockSuffix
	log = log.With(zap.String("lock", cfg.Resource.Object(lockKey)))

	return &Mutex{
		store:    cfg.Store,
		resource: cfg.Resource,
		identity: cfg.Identity,
		timeouts: cfg.Timeouts,
		clock:    cfg.Clock,
		log:      log,
		lockKey:  lockKey,
		reader:   NewReader(cfg.Store, lockKey, cfg.Timeouts.Lock, cfg.Clock, log),
		tickets:  NewTickets(cfg.Store, lockKey, cfg.Identity.SessionID, cfg.Timeouts),
	}, nil
}

func (m *Mutex) State() State {
	return State(m.state.Load())
}

func (m *Mutex) LockKey() string {
	return m.lockKey
}

func (m *Mutex) TicketKey() string {
	return m.tickets.OwnKey()
}

func (m *Mutex) setState(s State) {
	m.state.Store(int32(s))
}

// blocks until this session holds the lock
// on error or cancellation nothing is cleaned up, the ticket expires on its own
func (m *Mutex) Enter(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Mutex.Enter")
	span.SetAttributes(
		attribute.String("objmutex.lock", m.lockKey),
		attribute.String("objmutex.session", m.identity.SessionID),
	)
	defer span.End()

	start := m.clock.Now()
	if err := m.enter(ctx); err != nil {
		metrics.LockAcquireTotal.WithLabelValues(m.resource.Scheme, "failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metrics.LockAcquireTotal.WithLabelValues(m.resource.Scheme, "success").Inc()
	metrics.LockAcquireDuration.WithLabelValues(m.resource.Scheme).Observe(m.clock.Now().Sub(start).Seconds())
	return nil
}

func (m *Mutex) enter(ctx context.Context) error {
	m.setState(StateWaitingForLock)
	if err := m.waitWhileLocked(ctx); err != nil {
		return err
	}

	m.log.Info("creating ticket", zap.String("ticket", m.resource.Object(m.tickets.OwnKey())))
	if err := m.tickets.Register(ctx); err != nil {
		return err
	}
	m.setState(StateTicketRegistered)

	all, now, err := m.awaitHead(ctx)
	if err != nil {
		return err
	}

	body, err := m.identity.Marshal()
	if err != nil {
		return err
	}
	m.log.Info("creating lock object")
	if err := m.store.Put(ctx, m.lockKey, body); err != nil {
		return fmt.Errorf("write lock %s: %w", m.lockKey, err)
	}
	m.setState(StateHoldingLock)
	m.log.Info("lock acquired", zap.String("session_id", m.identity.SessionID))

	m.cleanup(ctx, all, now)
	return nil
}

// polls the ticket queue until the own ticket is at the head and the lock is free
// returns the final listing and the time it was judged at
func (m *Mutex) awaitHead(ctx context.Context) ([]types.ObjectInfo, tm.Time, error) {
	for {
		m.setState(StatePollingQueue)
		if err := m.waitWhileLocked(ctx); err != nil {
			return nil, tm.Time{}, err
		}

		all, err := m.tickets.List(ctx)
		if err != nil {
			return nil, tm.Time{}, err
		}
		now := m.clock.Now()

		if reason := m.tickets.NeedsRefresh(all, now); reason != RefreshNone {
			m.log.Info("re-creating ticket", zap.String("reason", string(reason)))
			metrics.TicketRefreshTotal.Inc()
			if err := m.tickets.Register(ctx); err != nil {
				return nil, tm.Time{}, err
			}
			continue
		}

		ordered := Order(m.tickets.Live(all, now))
		metrics.QueueDepth.Set(float64(len(ordered)))

		pos, ok := Locate(ordered, m.tickets.OwnKey())
		if !ok {
			m.log.Warn("own ticket missing from live tickets, retrying", zap.Int("live", len(ordered)))
			if err := m.clock.Sleep(ctx, m.timeouts.Poll); err != nil {
				return nil, tm.Time{}, err
			}
			continue
		}

		if !pos.Head {
			sessions := make([]string, len(pos.Ahead))
			for i, o := range pos.Ahead {
				sessions[i] = SessionOf(o.Key)
			}
			m.log.Info("sessions waiting for the mutex ahead of us",
				zap.Int("position", pos.Index), zap.Strings("ahead", sessions))
			if err := m.clock.Sleep(ctx, m.timeouts.Poll); err != nil {
				return nil, tm.Time{}, err
			}
			continue
		}

		// last check before the unconditional write; another head may still slip in
		// between this read and the put
		state, err := m.reader.Read(ctx)
		if err != nil {
			return nil, tm.Time{}, err
		}
		if state != nil {
			m.log.Info("lock taken while at the head of the queue",
				zap.String("holder_session", state.Identity.SessionID))
			continue
		}
		return all, now, nil
	}
}

func (m *Mutex) waitWhileLocked(ctx context.Context) error {
	for {
		state, err := m.reader.Read(ctx)
		if err != nil {
			return err
		}
		if state == nil {
			return nil
		}

		m.log.Info("waiting, the lock is held",
			zap.Duration("expires_in", state.Remaining),
			zap.Object("holder", identityField(state.Identity)))
		if err := m.clock.Sleep(ctx, m.timeouts.Poll); err != nil {
			return err
		}
	}
}

// deletes the own ticket and every stale one from the final listing
// failures are logged only, the lock is already held and leftovers expire anyway
func (m *Mutex) cleanup(ctx context.Context, all []types.ObjectInfo, now tm.Time) {
	keys := []string{m.tickets.OwnKey()}
	for _, o := range m.tickets.Stale(all, now) {
		if o.Key != m.tickets.OwnKey() {
			keys = append(keys, o.Key)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			m.log.Info("deleting ticket", zap.String("ticket", m.resource.Object(key)))
			if err := m.store.Delete(gctx, key); err != nil {
				return fmt.Errorf("delete ticket %s: %w", key, err)
			}
			if key != m.tickets.OwnKey() {
				metrics.TicketCleanupTotal.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Warn("ticket cleanup incomplete", zap.Error(err))
	}
}

// deletes the lock object if this session still owns it with time to spare
// released is false when the lock expired, was taken over or never existed
func (m *Mutex) Exit(ctx context.Context) (released bool, err error) {
	ctx, span := tracer.Start(ctx, "Mutex.Exit")
	span.SetAttributes(
		attribute.String("objmutex.lock", m.lockKey),
		attribute.String("objmutex.session", m.identity.SessionID),
	)
	defer func() {
		if err != nil {
			metrics.LockReleaseTotal.WithLabelValues(m.resource.Scheme, "failure").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("objmutex.released", released))
		span.End()
	}()

	state, err := m.reader.ReadWithTimeout(ctx, m.timeouts.ExitWindow())
	if err != nil {
		return false, err
	}
	if state == nil || !state.Identity.Equal(m.identity) {
		m.log.Info("lock not held by this session, leaving it")
		metrics.LockReleaseTotal.WithLabelValues(m.resource.Scheme, "not_owner").Inc()
		return false, nil
	}

	m.log.Info("deleting lock object")
	if err := m.store.Delete(ctx, m.lockKey); err != nil {
		return false, fmt.Errorf("delete lock %s: %w", m.lockKey, err)
	}
	m.setState(StateReleased)
	metrics.LockReleaseTotal.WithLabelValues(m.resource.Scheme, "released").Inc()
	return true, nil
}
