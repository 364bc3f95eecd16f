package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collectorden/bidclient/internal/domain"
)

// TTLs per entry class. Listings move fast while an auction is live, search
// results faster still; profiles barely change.
const (
	auctionTTL = time.Minute
	searchTTL  = 30 * time.Second
	profileTTL = 5 * time.Minute
)

// CatalogCache stores catalog read-side responses (listings, search pages,
// user profiles) as JSON strings with per-class TTLs.
//
// Key schema:
//
//	auction:{id}     - JSON-serialized Auction
//	search:{key}     - JSON-serialized SearchResult for one filter combination
//	user:{id}        - JSON-serialized UserProfile
type CatalogCache struct {
	rdb *redis.Client
}

// NewCatalogCache creates a CatalogCache on the given go-redis client.
func NewCatalogCache(rdb *redis.Client) *CatalogCache {
	return &CatalogCache{rdb: rdb}
}

func auctionKey(id string) string { return "auction:" + id }
func searchKey(key string) string { return "search:" + key }
func profileKey(id string) string { return "user:" + id }

// SearchKey derives a stable cache key from one filter combination.
func SearchKey(p domain.SearchParams) string {
	return fmt.Sprintf("%s|%s|%s|%g|%g|%s|%s|%d|%d",
		p.Query, p.Category, p.Condition, p.MinPrice, p.MaxPrice, p.Status, p.Sort, p.Page, p.PageSize)
}

// SetAuction stores a listing.
func (cc *CatalogCache) SetAuction(ctx context.Context, a domain.Auction) error {
	return cc.set(ctx, auctionKey(a.ID), a, auctionTTL)
}

// GetAuction retrieves a listing by id. Returns domain.ErrNotFound on a miss.
func (cc *CatalogCache) GetAuction(ctx context.Context, id string) (domain.Auction, error) {
	var a domain.Auction
	if err := cc.get(ctx, auctionKey(id), &a); err != nil {
		return domain.Auction{}, err
	}
	return a, nil
}

// InvalidateAuction drops a listing entry, e.g. after the auction ends.
func (cc *CatalogCache) InvalidateAuction(ctx context.Context, id string) error {
	if err := cc.rdb.Del(ctx, auctionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate auction %s: %w", id, err)
	}
	return nil
}

// SetSearch stores one page of search results under the given key.
func (cc *CatalogCache) SetSearch(ctx context.Context, key string, res domain.SearchResult) error {
	return cc.set(ctx, searchKey(key), res, searchTTL)
}

// GetSearch retrieves a search page. Returns domain.ErrNotFound on a miss.
func (cc *CatalogCache) GetSearch(ctx context.Context, key string) (domain.SearchResult, error) {
	var res domain.SearchResult
	if err := cc.get(ctx, searchKey(key), &res); err != nil {
		return domain.SearchResult{}, err
	}
	return res, nil
}

// SetProfile stores a user profile.
func (cc *CatalogCache) SetProfile(ctx context.Context, p domain.UserProfile) error {
	return cc.set(ctx, profileKey(p.ID), p, profileTTL)
}

// GetProfile retrieves a user profile. Returns domain.ErrNotFound on a miss.
func (cc *CatalogCache) GetProfile(ctx context.Context, id string) (domain.UserProfile, error) {
	var p domain.UserProfile
	if err := cc.get(ctx, profileKey(id), &p); err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

func (cc *CatalogCache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}
	if err := cc.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (cc *CatalogCache) get(ctx context.Context, key string, out any) error {
	data, err := cc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return nil
}
