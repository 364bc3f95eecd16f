package domain

import "time"

// AuctionCategory is the marketplace category an auction is listed under.
type AuctionCategory string

const (
	CategoryComics        AuctionCategory = "comics"
	CategoryTradingCards  AuctionCategory = "trading-cards"
	CategoryActionFigures AuctionCategory = "action-figures"
	CategoryVintageToys   AuctionCategory = "vintage-toys"
	CategoryGaming        AuctionCategory = "gaming"
	CategoryMovies        AuctionCategory = "movies"
	CategoryMusic         AuctionCategory = "music"
	CategorySports        AuctionCategory = "sports"
)

// ItemCondition grades the physical condition of a collectible.
type ItemCondition string

const (
	ConditionMint     ItemCondition = "mint"
	ConditionNearMint ItemCondition = "near-mint"
	ConditionVeryFine ItemCondition = "very-fine"
	ConditionFine     ItemCondition = "fine"
	ConditionVeryGood ItemCondition = "very-good"
	ConditionGood     ItemCondition = "good"
	ConditionFair     ItemCondition = "fair"
	ConditionPoor     ItemCondition = "poor"
)

// AuctionStatus is the lifecycle state of a listing.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusScheduled AuctionStatus = "scheduled"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
	StatusSold      AuctionStatus = "sold"
)

// Auction is a marketplace listing as returned by the catalog read API.
type Auction struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    AuctionCategory `json:"category"`
	Condition   ItemCondition   `json:"condition"`
	StartingBid float64         `json:"startingBid"`
	CurrentBid  float64         `json:"currentBid"`
	BuyNowPrice float64         `json:"buyNowPrice,omitempty"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     time.Time       `json:"endTime"`
	SellerID    string          `json:"sellerId"`
	Status      AuctionStatus   `json:"status"`
	BidCount    int             `json:"bidCount"`
	Watchers    int             `json:"watchers"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SearchParams are the catalog search/browse filters.
type SearchParams struct {
	Query     string          `json:"query,omitempty"`
	Category  AuctionCategory `json:"category,omitempty"`
	Condition ItemCondition   `json:"condition,omitempty"`
	MinPrice  float64         `json:"minPrice,omitempty"`
	MaxPrice  float64         `json:"maxPrice,omitempty"`
	Status    AuctionStatus   `json:"status,omitempty"`
	Sort      string          `json:"sort,omitempty"`
	Page      int             `json:"page,omitempty"`
	PageSize  int             `json:"pageSize,omitempty"`
}

// SearchResult is one page of catalog search results.
type SearchResult struct {
	Data       []Auction `json:"data"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalCount int       `json:"totalCount"`
}
