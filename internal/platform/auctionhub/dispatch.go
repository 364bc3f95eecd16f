package auctionhub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/collectorden/bidclient/internal/domain"
)

// Subscription is an opaque handle for one registered event handler. It is
// the only way to remove a handler, so independent subscribers (e.g. two
// auction views live at once) can never clobber each other's registrations.
type Subscription string

// subKey scopes a handler to one event kind on one auction.
type subKey struct {
	kind      EventKind
	auctionID string
}

// Dispatcher routes inbound hub events to registered handlers, keyed by
// (event kind, auction id). Multiple handlers may be registered for the same
// key. Dispatch is synchronous with frame arrival: handlers run on the
// connection's read goroutine and must not block.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[subKey]map[Subscription]any
	keys map[Subscription]subKey
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subs: make(map[subKey]map[Subscription]any),
		keys: make(map[Subscription]subKey),
	}
}

// OnBidPlaced registers a handler for bid_placed events on an auction.
func (d *Dispatcher) OnBidPlaced(auctionID string, fn func(domain.Bid)) Subscription {
	return d.add(EventBidPlaced, auctionID, fn)
}

// OnBidConfirmed registers a handler for bid_confirmed events on an auction.
func (d *Dispatcher) OnBidConfirmed(auctionID string, fn func(domain.Bid)) Subscription {
	return d.add(EventBidConfirmed, auctionID, fn)
}

// OnStatsUpdated registers a handler for stats_updated events on an auction.
func (d *Dispatcher) OnStatsUpdated(auctionID string, fn func(domain.AuctionStats)) Subscription {
	return d.add(EventStatsUpdated, auctionID, fn)
}

// OnUserTyping registers a handler for user_typing events on an auction.
func (d *Dispatcher) OnUserTyping(auctionID string, fn func(TypingEvent)) Subscription {
	return d.add(EventUserTyping, auctionID, fn)
}

// Off removes a previously registered handler. Unknown handles are a no-op.
func (d *Dispatcher) Off(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, ok := d.keys[sub]
	if !ok {
		return
	}
	delete(d.keys, sub)
	delete(d.subs[key], sub)
	if len(d.subs[key]) == 0 {
		delete(d.subs, key)
	}
}

func (d *Dispatcher) add(kind EventKind, auctionID string, fn any) Subscription {
	sub := Subscription(uuid.NewString())
	key := subKey{kind: kind, auctionID: auctionID}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subs[key] == nil {
		d.subs[key] = make(map[Subscription]any)
	}
	d.subs[key][sub] = fn
	d.keys[sub] = key
	return sub
}

// handlers returns a snapshot of the handlers for one key so dispatch never
// runs user code under the lock.
func (d *Dispatcher) handlers(kind EventKind, auctionID string) []any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set := d.subs[subKey{kind: kind, auctionID: auctionID}]
	if len(set) == 0 {
		return nil
	}
	out := make([]any, 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}

// DispatchBid delivers a bid event to every handler registered for its kind
// and auction. This is the ingestion side, fed by the connection read loop.
func (d *Dispatcher) DispatchBid(kind EventKind, bid domain.Bid) {
	for _, fn := range d.handlers(kind, bid.AuctionID) {
		if h, ok := fn.(func(domain.Bid)); ok {
			h(bid)
		}
	}
}

// DispatchStats delivers a stats snapshot to its auction's handlers.
func (d *Dispatcher) DispatchStats(stats domain.AuctionStats) {
	for _, fn := range d.handlers(EventStatsUpdated, stats.AuctionID) {
		if h, ok := fn.(func(domain.AuctionStats)); ok {
			h(stats)
		}
	}
}

// DispatchTyping delivers a typing indicator to its auction's handlers.
func (d *Dispatcher) DispatchTyping(ev TypingEvent) {
	for _, fn := range d.handlers(EventUserTyping, ev.AuctionID) {
		if h, ok := fn.(func(TypingEvent)); ok {
			h(ev)
		}
	}
}
