// Package catalog is the cached read-side for marketplace browsing: listing
// detail, search, and user profiles. Reads go cache-first with the REST API
// as the source of truth; cache failures degrade to direct API reads.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/collectorden/bidclient/internal/domain"
)

// API is the slice of the REST client the catalog reads through.
type API interface {
	GetAuction(ctx context.Context, auctionID string) (domain.Auction, error)
	SearchAuctions(ctx context.Context, params domain.SearchParams) (domain.SearchResult, error)
	GetUserProfile(ctx context.Context, userID string) (domain.UserProfile, error)
}

// Cache is the read-through cache contract. Implementations return
// domain.ErrNotFound on a miss.
type Cache interface {
	GetAuction(ctx context.Context, id string) (domain.Auction, error)
	SetAuction(ctx context.Context, a domain.Auction) error
	GetSearch(ctx context.Context, key string) (domain.SearchResult, error)
	SetSearch(ctx context.Context, key string, res domain.SearchResult) error
	GetProfile(ctx context.Context, id string) (domain.UserProfile, error)
	SetProfile(ctx context.Context, p domain.UserProfile) error
}

// SearchKeyer derives the cache key for one filter combination; wired to
// the redis cache's SearchKey to keep the key scheme in one place.
type SearchKeyer func(domain.SearchParams) string

// Service serves catalog reads. A nil cache disables caching entirely.
type Service struct {
	api       API
	cache     Cache
	searchKey SearchKeyer
	logger    *slog.Logger
}

// NewService creates a catalog Service. cache and keyer may be nil.
func NewService(api API, cache Cache, keyer SearchKeyer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:       api,
		cache:     cache,
		searchKey: keyer,
		logger:    logger.With(slog.String("component", "catalog")),
	}
}

// GetAuction returns one listing, from cache when fresh.
func (s *Service) GetAuction(ctx context.Context, auctionID string) (domain.Auction, error) {
	if s.cache != nil {
		a, err := s.cache.GetAuction(ctx, auctionID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("auction cache read failed", slog.String("error", err.Error()))
		}
	}

	a, err := s.api.GetAuction(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetAuction(ctx, a); err != nil {
			s.logger.Debug("auction cache write failed", slog.String("error", err.Error()))
		}
	}
	return a, nil
}

// Search returns one page of listings matching the filters.
func (s *Service) Search(ctx context.Context, params domain.SearchParams) (domain.SearchResult, error) {
	var key string
	if s.cache != nil && s.searchKey != nil {
		key = s.searchKey(params)
		res, err := s.cache.GetSearch(ctx, key)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("search cache read failed", slog.String("error", err.Error()))
		}
	}

	res, err := s.api.SearchAuctions(ctx, params)
	if err != nil {
		return domain.SearchResult{}, err
	}

	if s.cache != nil && key != "" {
		if err := s.cache.SetSearch(ctx, key, res); err != nil {
			s.logger.Debug("search cache write failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// GetUserProfile returns a user's public profile, from cache when fresh.
func (s *Service) GetUserProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.cache != nil {
		p, err := s.cache.GetProfile(ctx, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("profile cache read failed", slog.String("error", err.Error()))
		}
	}

	p, err := s.api.GetUserProfile(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetProfile(ctx, p); err != nil {
			s.logger.Debug("profile cache write failed", slog.String("error", err.Error()))
		}
	}
	return p, nil
}
