package auctionhub

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/collectorden/bidclient/internal/domain"
)

// Rooms tracks per-auction room membership over the shared hub connection.
// Membership is reference counted: two independent views of the same auction
// each take a reference, and the leave command is only sent when the last
// reference is released, so one view closing never evicts another's
// membership.
//
// Rooms re-issues joins for every held auction after a reconnect, because
// server-side membership dies with the transport.
type Rooms struct {
	mgr    *Manager
	logger *slog.Logger

	mu   sync.Mutex
	refs map[string]int
}

// NewRooms creates the room tracker for a Manager and registers its
// rejoin-on-reconnect hook. Create the Rooms before any session subscribes
// to the manager, so membership is restored before sessions resynchronize.
func NewRooms(mgr *Manager, logger *slog.Logger) *Rooms {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rooms{
		mgr:    mgr,
		logger: logger.With(slog.String("component", "auctionhub_rooms")),
		refs:   make(map[string]int),
	}
	mgr.OnReconnected(r.rejoinAll)
	return r
}

// Join takes a reference on an auction room, sending the join command when
// this is the first reference. It fails with domain.ErrNotConnected when the
// hub is down; callers must connect first.
func (r *Rooms) Join(auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs[auctionID] > 0 {
		r.refs[auctionID]++
		return nil
	}

	if err := r.mgr.send(commandFrame{Type: cmdJoinRoom, AuctionID: auctionID}); err != nil {
		return fmt.Errorf("auctionhub: join room %s: %w", auctionID, err)
	}

	r.refs[auctionID] = 1
	r.logger.Debug("joined auction room", slog.String("auction_id", auctionID))
	return nil
}

// Leave releases a reference on an auction room, sending the leave command
// when the last reference is released. Leaving a room that was never joined
// is a no-op. Leaving while disconnected is treated as satisfied: the
// server's membership already died with the connection.
func (r *Rooms) Leave(auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.refs[auctionID]
	if n == 0 {
		return nil
	}
	if n > 1 {
		r.refs[auctionID] = n - 1
		return nil
	}

	delete(r.refs, auctionID)

	if err := r.mgr.send(commandFrame{Type: cmdLeaveRoom, AuctionID: auctionID}); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			return nil
		}
		return fmt.Errorf("auctionhub: leave room %s: %w", auctionID, err)
	}

	r.logger.Debug("left auction room", slog.String("auction_id", auctionID))
	return nil
}

// Joined returns the auction ids currently held, sorted for determinism.
func (r *Rooms) Joined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.refs))
	for id := range r.refs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// rejoinAll re-issues join commands for every held auction. Runs on the
// manager's reconnect notification, before session-level resync.
func (r *Rooms) rejoinAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.refs))
	for id := range r.refs {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := r.mgr.send(commandFrame{Type: cmdJoinRoom, AuctionID: id}); err != nil {
			r.logger.Error("rejoin after reconnect failed",
				slog.String("auction_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}
