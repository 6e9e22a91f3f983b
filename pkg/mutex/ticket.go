package mutex

import (
	"context"
	"fmt"
	"strings"
	tm "time"

	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/store"
	"github.com/pixperk/objmutex/pkg/types"
)

// key of the ticket a session writes to queue for lockKey
func TicketKey(lockKey, sessionID string) string {
	return TicketPrefix(lockKey) + sessionID
}

// every ticket for lockKey lives under this prefix, the lock object itself does not
func TicketPrefix(lockKey string) string {
	return lockKey + "."
}

// session id a ticket key was written for
func SessionOf(ticketKey string) string {
	return ticketKey[strings.LastIndex(ticketKey, ".")+1:]
}

// why the own ticket has to be written again
type RefreshReason string

const (
	RefreshNone    RefreshReason = ""
	RefreshMissing RefreshReason = "missing"
	RefreshExpired RefreshReason = "expired"
)

// ticket bookkeeping for one session queueing on one lock
type Tickets struct {
	store    store.Store
	lockKey  string
	ownKey   string
	timeouts config.Timeouts
}

func NewTickets(s store.Store, lockKey, sessionID string, timeouts config.Timeouts) *Tickets {
	return &Tickets{
		store:    s,
		lockKey:  lockKey,
		ownKey:   TicketKey(lockKey, sessionID),
		timeouts: timeouts,
	}
}

func (t *Tickets) OwnKey() string {
	return t.ownKey
}

// writes (or rewrites) the own ticket, its timestamp is the place in line
func (t *Tickets) Register(ctx context.Context) error {
	if err := t.store.Put(ctx, t.ownKey, nil); err != nil {
		return fmt.Errorf("register ticket %s: %w", t.ownKey, err)
	}
	return nil
}

// every ticket for the lock, live or not
func (t *Tickets) List(ctx context.Context) ([]types.ObjectInfo, error) {
	all, err := store.ListAll(ctx, t.store, TicketPrefix(t.lockKey))
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return all, nil
}

// tickets younger than the acquisition timeout
func (t *Tickets) Live(all []types.ObjectInfo, now tm.Time) []types.ObjectInfo {
	var live []types.ObjectInfo
	for _, o := range all {
		if o.Age(now) < t.timeouts.Acquisition {
			live = append(live, o)
		}
	}
	return live
}

// tickets old enough to be deleted by whoever acquires next
func (t *Tickets) Stale(all []types.ObjectInfo, now tm.Time) []types.ObjectInfo {
	var stale []types.ObjectInfo
	for _, o := range all {
		if o.Age(now) >= t.timeouts.Acquisition {
			stale = append(stale, o)
		}
	}
	return stale
}

// the own ticket is renewed one poll interval before others would treat it as stale
func (t *Tickets) NeedsRefresh(all []types.ObjectInfo, now tm.Time) RefreshReason {
	for _, o := range all {
		if o.Key != t.ownKey {
			continue
		}
		if o.Age(now) > t.timeouts.RefreshThreshold() {
			return RefreshExpired
		}
		return RefreshNone
	}
	return RefreshMissing
}
