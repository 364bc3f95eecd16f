package auctionhub

import "github.com/collectorden/bidclient/internal/domain"

// EventKind identifies an inbound event from the bidding hub.
type EventKind string

const (
	// EventBidPlaced is a newly observed bid, not yet guaranteed final.
	EventBidPlaced EventKind = "bid_placed"
	// EventBidConfirmed is the server's authoritative echo of a bid,
	// including bids the local user placed.
	EventBidConfirmed EventKind = "bid_confirmed"
	// EventStatsUpdated carries a new aggregate stats snapshot.
	EventStatsUpdated EventKind = "stats_updated"
	// EventUserTyping signals that a bidder is preparing (or stopped
	// preparing) a bid.
	EventUserTyping EventKind = "user_typing"
)

// Outbound command types accepted by the hub.
const (
	cmdJoinRoom  = "join_room"
	cmdLeaveRoom = "leave_room"
	cmdTyping    = "typing"
)

// commandFrame is an outbound hub invocation. All three commands share the
// same shape; IsTyping is only meaningful for cmdTyping.
type commandFrame struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId"`
	IsTyping  bool   `json:"isTyping,omitempty"`
}

// eventEnvelope is the outer shape of every inbound frame, read first to
// route the payload.
type eventEnvelope struct {
	Type string `json:"type"`
}

// bidEventFrame carries bid_placed and bid_confirmed payloads.
type bidEventFrame struct {
	Type string     `json:"type"`
	Bid  domain.Bid `json:"bid"`
}

// statsEventFrame carries stats_updated payloads.
type statsEventFrame struct {
	Type  string              `json:"type"`
	Stats domain.AuctionStats `json:"stats"`
}

// typingEventFrame carries user_typing payloads.
type typingEventFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	AuctionID string `json:"auctionId"`
	IsTyping  bool   `json:"isTyping"`
}

// TypingEvent is a user_typing event as delivered to subscribers.
type TypingEvent struct {
	UserID    string
	UserName  string
	AuctionID string
	IsTyping  bool
}
