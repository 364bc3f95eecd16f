package domain

import (
	"strings"
	"time"
)

// TempBidPrefix marks locally-originated optimistic bids. An optimistic bid
// keeps a temp id until the server's confirmed record (with the real id)
// replaces it, or until the submission fails and the entry is rolled back.
const TempBidPrefix = "temp-"

// Bid is one bid event on an auction. Bids are immutable once created; the
// reconciliation engine replaces whole records rather than mutating fields.
type Bid struct {
	ID           string    `json:"id"`
	AuctionID    string    `json:"auctionId"`
	BidderID     string    `json:"bidderId"`
	BidderName   string    `json:"bidderName"`
	Amount       float64   `json:"amount"`
	Timestamp    time.Time `json:"timestamp"`
	IsHighestBid bool      `json:"isHighestBid"`
}

// IsOptimistic reports whether the bid is a local optimistic entry that has
// not yet been confirmed by the server.
func (b Bid) IsOptimistic() bool {
	return strings.HasPrefix(b.ID, TempBidPrefix)
}

// AuctionStats is the server-computed aggregate view of an auction's bidding
// activity. It is replaced wholesale by stats-update events; optimistic local
// bumps are provisional and corrected by the next snapshot.
type AuctionStats struct {
	AuctionID  string  `json:"auctionId"`
	HighestBid float64 `json:"highestBid"`
	BidCount   int     `json:"bidCount"`
}

// BidResult is the server's response to a bid placement request.
type BidResult struct {
	BidID     string  `json:"bidId"`
	AuctionID string  `json:"auctionId"`
	Amount    float64 `json:"amount"`
	Message   string  `json:"message"`
}

// PagedBids is one page of an auction's bid history, newest first.
type PagedBids struct {
	Data       []Bid `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int   `json:"totalCount"`
}
