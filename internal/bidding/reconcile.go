// Package bidding holds the realtime bidding core: the reconciliation engine
// that merges optimistic, confirmed, and peer bids into one consistent view,
// and the per-auction session controller that drives it.
package bidding

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/collectorden/bidclient/internal/domain"
)

// Engine reconciles bid events for a single auction into an ordered,
// duplicate-free bid list plus aggregate stats. It is a pure reducer: the
// same sequence of operations always yields the same visible list and stats,
// and nothing inside it runs on a timer.
//
// Engine is not safe for concurrent use; the session controller serializes
// all access, applying each event atomically.
type Engine struct {
	auctionID   string
	localUserID string

	entries []entry
	stats   domain.AuctionStats
	nextSeq uint64
}

// entry pairs a bid with its arrival sequence number, the tie-breaker when
// timestamps collide at second-level granularity.
type entry struct {
	bid domain.Bid
	seq uint64
}

// NewEngine creates an empty engine for one auction. localUserID identifies
// the bidder whose optimistic entries may be promoted by confirmed bids.
func NewEngine(auctionID, localUserID string) *Engine {
	return &Engine{
		auctionID:   auctionID,
		localUserID: localUserID,
		stats:       domain.AuctionStats{AuctionID: auctionID},
	}
}

// Seed merges a server snapshot (newest first, as returned by the bids API)
// into the engine and replaces the stats wholesale. Bids already present are
// replaced by id, and a confirmed bid in the snapshot promotes a matching
// optimistic entry, so re-seeding after a reconnect never duplicates or
// drops events applied in the meantime.
func (e *Engine) Seed(bids []domain.Bid, stats domain.AuctionStats) {
	// Oldest first, so equal-timestamp bids keep the server's order once
	// the last-in-first tie-break is applied.
	for i := len(bids) - 1; i >= 0; i-- {
		e.Insert(bids[i])
	}
	e.setStats(stats)
}

// Insert applies a confirmed or peer-originated bid.
//
// A bid whose id is already present replaces the existing record in place
// (idempotent re-delivery). A confirmed bid from the local user that matches
// an optimistic entry by (bidder, amount) removes that entry and takes its
// place with the real id. Anything else is inserted as new. The list stays
// sorted newest first.
func (e *Engine) Insert(b domain.Bid) {
	for i := range e.entries {
		if e.entries[i].bid.ID == b.ID {
			e.entries[i].bid = b
			e.sortEntries()
			return
		}
	}

	if b.BidderID == e.localUserID {
		for i := range e.entries {
			existing := e.entries[i].bid
			if existing.IsOptimistic() && existing.BidderID == b.BidderID && existing.Amount == b.Amount {
				e.entries = append(e.entries[:i], e.entries[i+1:]...)
				break
			}
		}
	}

	e.insertNew(b)
}

// InsertOptimistic records a local bid submission before the server has
// acknowledged it. The entry gets a temp id and provisional highest-bid
// status, and the stats are provisionally bumped. It returns the optimistic
// bid and the pre-insert stats snapshot the caller must keep for Rollback.
func (e *Engine) InsertOptimistic(bidderID, bidderName string, amount float64, now time.Time) (domain.Bid, domain.AuctionStats) {
	prev := e.stats

	b := domain.Bid{
		ID:           domain.TempBidPrefix + uuid.NewString(),
		AuctionID:    e.auctionID,
		BidderID:     bidderID,
		BidderName:   bidderName,
		Amount:       amount,
		Timestamp:    now,
		IsHighestBid: true,
	}
	e.insertNew(b)

	e.stats.HighestBid = amount
	e.stats.BidCount++

	return b, prev
}

// Rollback removes a failed optimistic entry and restores the stats snapshot
// captured at insert time. A corrective stats event is not guaranteed after
// a rejected bid, so the revert is explicit.
func (e *Engine) Rollback(tempID string, prev domain.AuctionStats) {
	for i := range e.entries {
		if e.entries[i].bid.ID == tempID {
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			break
		}
	}
	e.stats = prev
}

// SetStats replaces the stats wholesale with an authoritative snapshot,
// correcting any optimistic drift.
func (e *Engine) SetStats(stats domain.AuctionStats) {
	e.setStats(stats)
}

// Bids returns the visible bid list, newest first.
func (e *Engine) Bids() []domain.Bid {
	out := make([]domain.Bid, len(e.entries))
	for i, en := range e.entries {
		out[i] = en.bid
	}
	return out
}

// Stats returns the current aggregate stats.
func (e *Engine) Stats() domain.AuctionStats {
	return e.stats
}

func (e *Engine) setStats(stats domain.AuctionStats) {
	if stats.AuctionID == "" {
		stats.AuctionID = e.auctionID
	}
	e.stats = stats
}

func (e *Engine) insertNew(b domain.Bid) {
	e.nextSeq++
	e.entries = append(e.entries, entry{bid: b, seq: e.nextSeq})
	e.sortEntries()
}

// sortEntries orders by timestamp descending; equal timestamps fall back to
// arrival order, last in first.
func (e *Engine) sortEntries() {
	sort.Slice(e.entries, func(i, j int) bool {
		ti, tj := e.entries[i].bid.Timestamp, e.entries[j].bid.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return e.entries[i].seq > e.entries[j].seq
	})
}
